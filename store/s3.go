package store

import (
	"bytes"
	"context"
	"errors"
	"path"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds configuration for the S3 storage backend.
type S3Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string
	// Prefix is the key prefix within the bucket (optional).
	Prefix string
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom S3 endpoint URL for S3-compatible providers
	// (e.g. Cloudflare R2, MinIO). Empty uses the default AWS endpoint.
	Endpoint string
	// UsePathStyle forces path-style addressing (bucket in path, not
	// subdomain). Required by most S3-compatible providers.
	UsePathStyle bool
}

// Validate checks that required S3 configuration is present.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	return nil
}

// s3API is the subset of the S3 client the sink needs. Narrowed for
// testability.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads artifacts to an S3 bucket under a key prefix.
type S3Sink struct {
	client s3API
	cfg    S3Config
}

// NewS3Sink creates an S3 sink using the AWS SDK default credential chain
// (env vars, shared config, IAM role).
func NewS3Sink(ctx context.Context, cfg S3Config) (*S3Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, WrapInitError(err, cfg.Bucket)
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, WrapInitError(err, cfg.Bucket)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &S3Sink{client: s3.NewFromConfig(awsConfig, s3Opts...), cfg: cfg}, nil
}

// newS3SinkWithClient wires a pre-built client, for tests.
func newS3SinkWithClient(client s3API, cfg S3Config) *S3Sink {
	return &S3Sink{client: client, cfg: cfg}
}

// Put uploads data to the bucket at <prefix>/<name>.
func (s *S3Sink) Put(ctx context.Context, name string, data []byte) error {
	if err := validateName(name); err != nil {
		return WrapWriteError(err, name)
	}

	key := name
	if s.cfg.Prefix != "" {
		key = path.Join(s.cfg.Prefix, name)
	}
	bucket := s.cfg.Bucket
	contentType := contentTypeFor(name)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return WrapWriteError(err, "s3://"+bucket+"/"+key)
	}
	return nil
}

// Close implements Sink. The SDK client holds no per-sink resources.
func (s *S3Sink) Close() error {
	return nil
}

func contentTypeFor(name string) string {
	switch path.Ext(name) {
	case ".epub":
		return "application/epub+zip"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

var _ Sink = (*S3Sink)(nil)
