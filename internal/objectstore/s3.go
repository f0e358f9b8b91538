package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

const defaultRegion = "us-east-1"

type s3Store struct {
	client *s3.Client
	region string
	log    *zap.Logger
}

var _ Store = (*s3Store)(nil)

func newS3Store(ctx context.Context, cfg Config, log *zap.Logger) (*s3Store, error) {
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				cfg.SessionToken,
			),
		))
	}

	if cfg.MaxAttempts > 0 {
		opts = append(opts, config.WithRetryMaxAttempts(cfg.MaxAttempts))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	log.Debug("s3 store initialized", zap.Bool("path_style", cfg.ForcePathStyle))

	return &s3Store{
		client: client,
		region: region,
		log:    log,
	}, nil
}

func (s *s3Store) Get(ctx context.Context, loc Location) ([]byte, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		return nil, newError("get", loc, isS3NotFound(err), err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, newError("get", loc, false, fmt.Errorf("failed to read object body: %w", err))
	}

	s.log.Debug("object retrieved",
		zap.Stringer("object", loc),
		zap.Int("size", len(data)),
	)

	return data, nil
}

func (s *s3Store) Put(ctx context.Context, loc Location, data []byte) error {
	if err := s.EnsureBucket(ctx, loc.Bucket); err != nil {
		return err
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(loc.Bucket),
		Key:                  aws.String(loc.Key),
		Body:                 bytes.NewReader(data),
		ContentLength:        aws.Int64(int64(len(data))),
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return newError("put", loc, false, err)
	}

	s.log.Debug("object stored",
		zap.Stringer("object", loc),
		zap.Int("size", len(data)),
	)

	return nil
}

func (s *s3Store) EnsureBucket(ctx context.Context, bucket string) error {
	loc := Location{Bucket: bucket}

	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		return nil
	}
	if !isS3NotFound(err) {
		return newError("head bucket", loc, false, err)
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	if s.region != defaultRegion {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}

	if _, err := s.client.CreateBucket(ctx, input); err != nil {
		if hasErrorCode(err, "BucketAlreadyOwnedByYou") {
			return nil
		}
		return newError("create bucket", loc, false, err)
	}

	s.log.Info("bucket created", zap.String("bucket", bucket))

	return nil
}

func isS3NotFound(err error) bool {
	return hasErrorCode(err, "NoSuchKey", "NoSuchBucket", "NotFound")
}

func hasErrorCode(err error, codes ...string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, code := range codes {
		if apiErr.ErrorCode() == code {
			return true
		}
	}
	return false
}
