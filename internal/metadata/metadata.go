// Package metadata resolves instance identity from the EC2 instance
// metadata service.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"go.uber.org/zap"
)

// ErrUnavailable is returned when the metadata service cannot be
// reached or does not answer the query.
var ErrUnavailable = errors.New("instance metadata unavailable")

const (
	DefaultEndpoint = "http://169.254.169.254"

	pathInstanceID = "instance-id"
	pathLocalIPv4  = "local-ipv4"
)

type Config struct {
	// Endpoint is the metadata service base URL.
	Endpoint string

	// Timeout bounds each metadata query.
	Timeout time.Duration

	// MaxAttempts bounds retries per query. Zero keeps the
	// client default.
	MaxAttempts int
}

// Resolver queries the metadata service lazily and memoises each
// answer for its lifetime.
type Resolver struct {
	client  *imds.Client
	timeout time.Duration

	mu    sync.Mutex
	cache map[string]string

	log *zap.Logger
}

func New(cfg Config, log *zap.Logger) *Resolver {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	opts := imds.Options{
		Endpoint:          strings.TrimSuffix(endpoint, "/"),
		ClientEnableState: imds.ClientEnabled,
	}
	if cfg.MaxAttempts > 0 {
		opts.Retryer = retry.AddWithMaxAttempts(retry.NewStandard(), cfg.MaxAttempts)
	}

	return &Resolver{
		client:  imds.New(opts),
		timeout: cfg.Timeout,
		cache:   map[string]string{},
		log:     log.Named("metadata").With(zap.String("endpoint", endpoint)),
	}
}

// InstanceID returns the instance identifier, e.g. i-1234567890abcdef0.
func (r *Resolver) InstanceID(ctx context.Context) (string, error) {
	return r.get(ctx, pathInstanceID)
}

// LocalIPv4 returns the instance's private IPv4 address.
func (r *Resolver) LocalIPv4(ctx context.Context) (string, error) {
	return r.get(ctx, pathLocalIPv4)
}

func (r *Resolver) get(ctx context.Context, path string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if value, ok := r.cache[path]; ok {
		return value, nil
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	out, err := r.client.GetMetadata(ctx, &imds.GetMetadataInput{Path: path})
	if err != nil {
		r.log.Warn("metadata query failed", zap.String("path", path), zap.Error(err))
		return "", fmt.Errorf("%w: %s: %w", ErrUnavailable, path, err)
	}
	defer out.Content.Close()

	body, err := io.ReadAll(out.Content)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrUnavailable, path, err)
	}

	value := strings.TrimSpace(string(body))
	if value == "" {
		return "", fmt.Errorf("%w: %s: empty response", ErrUnavailable, path)
	}

	r.log.Debug("metadata resolved", zap.String("path", path), zap.String("value", value))
	r.cache[path] = value

	return value, nil
}
