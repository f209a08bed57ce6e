package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// DefaultS3Region is used when S3Config.Region is empty.
const DefaultS3Region = "us-east-1"

// S3Config configures the S3 client built by NewS3Client.
type S3Config struct {
	Region string `yaml:"region"`

	// Endpoint overrides the service endpoint, e.g. for MinIO.
	Endpoint string `yaml:"endpoint"`

	// AccessKeyID and SecretAccessKey are static credentials. When both
	// are empty requests are unsigned.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`

	// UsePathStyle addresses buckets as endpoint/bucket/key.
	UsePathStyle bool `yaml:"use_path_style"`
}

// S3API is the subset of the S3 client used by S3Source.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// NewS3Client builds an S3 client from static configuration.
func NewS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		UsePathStyle: cfg.UsePathStyle,
	}
	if opts.Region == "" {
		opts.Region = DefaultS3Region
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKeyID != "" || cfg.SecretAccessKey != "" {
		creds := aws.Credentials{
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			Source:          "webadb config",
		}
		opts.Credentials = aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return creds, nil
		})
	} else {
		opts.Credentials = aws.AnonymousCredentials{}
	}
	return s3.New(opts)
}

// S3Source downloads an artifact from an S3 bucket.
type S3Source struct {
	Client S3API
	Bucket string
	Key    string
}

// Open fetches the object.
func (s *S3Source) Open(ctx context.Context) (io.ReadCloser, int64, error) {
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, s)
		}
		return nil, 0, fmt.Errorf("get %s: %w", s, err)
	}
	size := int64(-1)
	if out.ContentLength != nil {
		size = aws.ToInt64(out.ContentLength)
	}
	return out.Body, size, nil
}

func (s *S3Source) String() string {
	return "s3://" + s.Bucket + "/" + s.Key
}

var (
	_ Source = (*S3Source)(nil)
	_ S3API  = (*s3.Client)(nil)
)
