package document

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const s3Scheme = "s3://"

// Source fetches raw document bytes.
type Source interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
}

// Local reads from the file system.
type Local struct{}

func (Local) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

type S3Config struct {
	EndpointURL string
	Region      string
	AccessKey   string
	SecretKey   string
}

type objectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3 reads s3://bucket/key paths from an S3 compatible store.
type S3 struct {
	Client objectGetter
}

func NewS3(ctx context.Context, conf S3Config) (*S3, error) {
	opts := []func(*config.LoadOptions) error{}
	if conf.Region != "" {
		opts = append(opts, config.WithRegion(conf.Region))
	}
	if conf.AccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(conf.AccessKey, conf.SecretKey, "")
		opts = append(opts, config.WithCredentialsProvider(creds))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 config: %w", err)
	}

	if conf.EndpointURL != "" {
		cfg.BaseEndpoint = aws.String(conf.EndpointURL)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	return &S3{Client: client}, nil
}

func (s *S3) ReadFile(ctx context.Context, path string) ([]byte, error) {
	bucket, key, err := ParseS3Path(path)
	if err != nil {
		return nil, err
	}

	result, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer result.Body.Close()

	body, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}

	return body, nil
}

// Router sends s3:// paths to Remote and everything else to the local file system.
// Remote is only needed when s3 paths are used.
type Router struct {
	Remote Source
}

func (r Router) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if !IsS3Path(path) {
		return Local{}.ReadFile(ctx, path)
	}
	if r.Remote == nil {
		return nil, fmt.Errorf("no s3 source configured for %s", path)
	}
	return r.Remote.ReadFile(ctx, path)
}

func IsS3Path(path string) bool {
	return strings.HasPrefix(path, s3Scheme)
}

func ParseS3Path(path string) (bucket, key string, err error) {
	if !IsS3Path(path) {
		return "", "", fmt.Errorf("not an s3 path: %s", path)
	}

	bucket, key, _ = strings.Cut(strings.TrimPrefix(path, s3Scheme), "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 path must look like s3://bucket/key: %s", path)
	}
	return bucket, key, nil
}
