package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/encrypt"
	"go.uber.org/zap"
)

const defaultAWSEndpoint = "https://s3.amazonaws.com"

type minioStore struct {
	client *minio.Client
	region string
	log    *zap.Logger
}

var _ Store = (*minioStore)(nil)

func newMinIOStore(cfg Config, log *zap.Logger) (*minioStore, error) {
	endpoint := cfg.EndpointURL
	if endpoint == "" {
		endpoint = defaultAWSEndpoint
	}

	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid endpoint url %q", endpoint)
	}

	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}

	var creds *credentials.Credentials
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		creds = credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)
	} else {
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.IAM{Client: &http.Client{Transport: http.DefaultTransport}},
		})
	}

	lookup := minio.BucketLookupAuto
	if cfg.ForcePathStyle {
		lookup = minio.BucketLookupPath
	}

	opts := &minio.Options{
		Creds:        creds,
		Secure:       u.Scheme == "https",
		Region:       region,
		BucketLookup: lookup,
		Transport:    newTransport(),
	}
	if cfg.MaxAttempts > 0 {
		opts.MaxRetries = cfg.MaxAttempts
	}

	client, err := minio.New(u.Host, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	log.Debug("minio store initialized", zap.Bool("secure", opts.Secure))

	return &minioStore{
		client: client,
		region: region,
		log:    log,
	}, nil
}

func (s *minioStore) Get(ctx context.Context, loc Location) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, loc.Bucket, loc.Key, minio.GetObjectOptions{})
	if err != nil {
		return nil, newError("get", loc, isMinIONotFound(err), err)
	}
	defer obj.Close()

	if _, err := obj.Stat(); err != nil {
		return nil, newError("get", loc, isMinIONotFound(err), err)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, newError("get", loc, isMinIONotFound(err), err)
	}

	s.log.Debug("object retrieved",
		zap.Stringer("object", loc),
		zap.Int("size", len(data)),
	)

	return data, nil
}

func (s *minioStore) Put(ctx context.Context, loc Location, data []byte) error {
	if err := s.EnsureBucket(ctx, loc.Bucket); err != nil {
		return err
	}

	_, err := s.client.PutObject(
		ctx,
		loc.Bucket,
		loc.Key,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{ServerSideEncryption: encrypt.NewSSE()},
	)
	if err != nil {
		return newError("put", loc, false, err)
	}

	s.log.Debug("object stored",
		zap.Stringer("object", loc),
		zap.Int("size", len(data)),
	)

	return nil
}

func (s *minioStore) EnsureBucket(ctx context.Context, bucket string) error {
	loc := Location{Bucket: bucket}

	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return newError("head bucket", loc, false, err)
	}
	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		if minio.ToErrorResponse(err).Code == "BucketAlreadyOwnedByYou" {
			return nil
		}
		return newError("create bucket", loc, false, err)
	}

	s.log.Info("bucket created", zap.String("bucket", bucket))

	return nil
}

func isMinIONotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return true
	}
	return resp.StatusCode == http.StatusNotFound
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
