// Package s3 implements an alternate checkpoint backend on Amazon S3 (or
// any S3-compatible service), in place of the default local-disk layout.
package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/filegrid/filegrid/pkg/filestore"
)

// Config holds the S3 checkpoint store settings.
type Config struct {
	// Bucket is the S3 bucket name.
	Bucket string

	// Prefix is prepended to every checkpoint key.
	Prefix string

	// Region is the AWS region (optional, uses SDK default if empty).
	Region string

	// Endpoint is the S3 endpoint URL (optional, for S3-compatible
	// services such as MinIO).
	Endpoint string

	// AccessKey/SecretKey select static credentials. Leave both empty to
	// use the SDK's default credential chain.
	AccessKey string
	SecretKey string

	// ForcePathStyle forces path-style addressing (required for
	// Localstack/MinIO).
	ForcePathStyle bool
}

// Store implements filestore.CheckpointStore against an S3 bucket.
type Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// New builds a Store from cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &Store{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (s *Store) key(file, tag string) string {
	return path.Join(s.prefix, file, tag)
}

func (s *Store) Put(file, tag string, data []byte) error {
	_, err := s.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(file, tag)),
		Body:   bytes.NewReader(data),
	})
	return err
}

func (s *Store) Get(file, tag string) ([]byte, error) {
	out, err := s.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(file, tag)),
	})
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return nil, filestore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *Store) List(file string) ([]string, error) {
	prefix := s.key(file, "") + "/"
	out, err := s.client.ListObjectsV2(context.Background(), &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, err
	}
	tags := make([]string, 0, len(out.Contents))
	for _, obj := range out.Contents {
		tags = append(tags, path.Base(*obj.Key))
	}
	return tags, nil
}
