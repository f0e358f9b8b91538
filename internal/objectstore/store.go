// Package objectstore fetches and stores raw object bytes in an
// S3-compatible object store.
package objectstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Driver selects the client implementation.
type Driver string

const (
	DriverS3    Driver = "s3"
	DriverMinIO Driver = "minio"
)

// Store reads and writes objects.
type Store interface {
	// Get returns the bytes of the object at loc, unmodified.
	Get(ctx context.Context, loc Location) ([]byte, error)

	// Put writes data to loc, creating the bucket if needed.
	Put(ctx context.Context, loc Location, data []byte) error

	// EnsureBucket creates the bucket unless it already exists.
	// It is safe to call repeatedly.
	EnsureBucket(ctx context.Context, bucket string) error
}

type Config struct {
	// Driver is the client implementation to use.
	Driver Driver

	// EndpointURL overrides the default AWS endpoint,
	// e.g. http://localhost:4566.
	EndpointURL string

	// Region is the bucket region.
	Region string

	// AccessKeyID, SecretAccessKey and SessionToken are static
	// credentials. When unset the default credential chain is used.
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// ForcePathStyle addresses buckets as a path segment
	// instead of a subdomain.
	ForcePathStyle bool

	// MaxAttempts bounds the client's retries. Zero keeps the
	// client default.
	MaxAttempts int
}

// New creates a store for the configured driver.
func New(ctx context.Context, cfg Config, log *zap.Logger) (Store, error) {
	log = log.Named("objectstore").With(
		zap.String("driver", string(cfg.Driver)),
		zap.String("endpoint", cfg.EndpointURL),
		zap.String("region", cfg.Region),
	)

	switch cfg.Driver {
	case DriverS3, "":
		return newS3Store(ctx, cfg, log)
	case DriverMinIO:
		return newMinIOStore(cfg, log)
	default:
		return nil, fmt.Errorf("unknown object store driver %q", cfg.Driver)
	}
}
