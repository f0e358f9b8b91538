package entrypoint

import (
	"time"

	"github.com/infrablocks/concourse-aws-entrypoint/internal/environ"
	"github.com/infrablocks/concourse-aws-entrypoint/internal/metadata"
	"github.com/infrablocks/concourse-aws-entrypoint/internal/objectstore"
	"github.com/infrablocks/concourse-aws-entrypoint/internal/secrets"
	"github.com/infrablocks/concourse-aws-entrypoint/internal/server"
	"github.com/infrablocks/concourse-aws-entrypoint/internal/supervisor"
	"github.com/infrablocks/concourse-aws-entrypoint/util"
	"github.com/infrablocks/concourse-aws-entrypoint/util/conf"
)

const DefaultBinary = "/opt/concourse/bin/concourse"

type Config struct {
	// Binary is the path of the concourse binary
	Binary string `conf:"binary"`

	// SecretsDir is the canonical directory for fetched secrets
	SecretsDir string `conf:"secrets_dir"`

	// ObjectStore selects the object store driver
	ObjectStore objectstore.Driver `conf:"object_store"`

	// DryRun prints the assembled command instead of running it
	DryRun bool `conf:"dry_run"`

	// Supervisor configures launch and readiness
	Supervisor supervisor.Config `conf:",squash"`

	// Health configures the optional health endpoint
	Health server.HttpConfig `conf:"health"`
}

var DefaultConfig = conf.DefaultConfig{
	"binary":        DefaultBinary,
	"secrets_dir":   secrets.DefaultDir,
	"object_store":  string(objectstore.DriverS3),
	"log_file":      supervisor.DefaultLogPath,
	"ready_timeout": supervisor.DefaultTimeout,
	"poll_interval": supervisor.DefaultPollInterval,
	"stop_timeout":  supervisor.DefaultStopTimeout,
	"tail_lines":    supervisor.DefaultTailLines,
}

var DefaultHealthConfig = conf.DefaultConfig{
	"host": "0.0.0.0",
	"port": 0,
}

// CloudConfig is the object store and metadata configuration read
// from the AWS_* variables of an environment.
type CloudConfig struct {
	S3EndpointURL       string `conf:"s3_endpoint_url"`
	S3BucketRegion      string `conf:"s3_bucket_region"`
	S3EnvFileObjectPath string `conf:"s3_env_file_object_path"`
	S3ForcePathStyle    string `conf:"s3_force_path_style"`
	MetadataServiceURL  string `conf:"metadata_service_url"`
	AccessKeyID         string `conf:"access_key_id"`
	SecretAccessKey     string `conf:"secret_access_key"`
	SessionToken        string `conf:"session_token"`
}

const (
	cloudEnvPrefix = "AWS_"

	DefaultRegion = "us-east-1"

	metadataTimeout = 5 * time.Second
)

// ParseCloudConfig reads the cloud configuration out of env.
func ParseCloudConfig(env environ.Environment) (CloudConfig, error) {
	return conf.Parse[CloudConfig](conf.ParseOptions{
		Defaults: conf.DefaultConfig{
			"s3_bucket_region":     DefaultRegion,
			"metadata_service_url": metadata.DefaultEndpoint,
		},
		EnvPrefix: cloudEnvPrefix,
		Environ:   env,
	})
}

// StoreConfig returns the object store configuration for driver.
func (c CloudConfig) StoreConfig(driver objectstore.Driver) objectstore.Config {
	forcePathStyle := c.S3EndpointURL != ""
	if c.S3ForcePathStyle != "" {
		forcePathStyle = util.Truthy(c.S3ForcePathStyle)
	}

	return objectstore.Config{
		Driver:          driver,
		EndpointURL:     c.S3EndpointURL,
		Region:          c.S3BucketRegion,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		SessionToken:    c.SessionToken,
		ForcePathStyle:  forcePathStyle,
	}
}

// MetadataConfig returns the instance metadata configuration.
func (c CloudConfig) MetadataConfig() metadata.Config {
	return metadata.Config{
		Endpoint: c.MetadataServiceURL,
		Timeout:  metadataTimeout,
	}
}
