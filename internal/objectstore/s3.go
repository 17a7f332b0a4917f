package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/interviewrt/core/internal/clockid"
)

// S3Config configures the S3-backed object store.
type S3Config struct {
	Bucket string
	Region string
}

// S3Store writes blobs to a single S3 bucket under
// prefix/<name>-<nonce>, so the two backends are interchangeable
// behind the Store interface. Unlike LocalStore, the nonce follows the
// whole suggested name, extension included.
type S3Store struct {
	client *s3.Client
	bucket string
}

func NewS3Store(cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("objectstore: S3_BUCKET is required for the s3 backend")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("objectstore: load aws config: %w", err)
	}
	return &S3Store{client: s3.NewFromConfig(awsCfg), bucket: cfg.Bucket}, nil
}

func (s *S3Store) Put(ctx context.Context, prefix, suggestedName string, r io.Reader) (string, error) {
	key := fmt.Sprintf("%s/%s-%s", prefix, suggestedName, clockid.NewNonce())

	buf, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("objectstore: read body: %w", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
		Body:   bytes.NewReader(buf),
		// S3 naturally refuses nothing here, but every key is unique
		// (random-token suffixed) so collisions cannot occur.
	})
	if err != nil {
		return "", fmt.Errorf("objectstore: put object: %w", err)
	}
	return key, nil
}

func (s *S3Store) Get(ctx context.Context, ref string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &ref})
	if err != nil {
		return nil, fmt.Errorf("objectstore: get object: %w", err)
	}
	return out.Body, nil
}

func (s *S3Store) Delete(ctx context.Context, ref string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &ref})
	if err != nil {
		return fmt.Errorf("objectstore: delete object: %w", err)
	}
	return nil
}

func (s *S3Store) URL(ref string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, ref)
}
