package export

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// BundleStore persists exported proof bundles.
type BundleStore interface {
	// Put stores a canonical bundle and returns its content hash.
	Put(ctx context.Context, data []byte) (string, error)
	// Get retrieves a bundle by its content hash.
	Get(ctx context.Context, hash string) ([]byte, error)
}

// S3BundleStore stores proof bundles in S3, keyed by SHA-256 content hash so
// re-exporting the same record is idempotent.
type S3BundleStore struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3Config holds configuration for S3BundleStore.
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string // optional custom endpoint (MinIO, LocalStack)
	Prefix   string // optional key prefix
}

// NewS3BundleStore creates an S3-backed bundle store.
func NewS3BundleStore(ctx context.Context, cfg S3Config) (*S3BundleStore, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	clientOpts := func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // required for MinIO/LocalStack
		}
	}

	return &S3BundleStore{
		client: s3.NewFromConfig(awsCfg, clientOpts),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// Put stores the canonical bundle bytes and returns "sha256:<hex>".
func (s *S3BundleStore) Put(ctx context.Context, data []byte) (string, error) {
	sum := sha256.Sum256(data)
	hashStr := hex.EncodeToString(sum[:])
	key := s.prefix + hashStr + ".json"

	// Content addressing makes re-upload a no-op.
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return "sha256:" + hashStr, nil
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put failed: %w", err)
	}

	return "sha256:" + hashStr, nil
}

// Get retrieves bundle bytes by content hash.
func (s *S3BundleStore) Get(ctx context.Context, hash string) ([]byte, error) {
	if len(hash) < 8 || hash[:7] != "sha256:" {
		return nil, fmt.Errorf("invalid hash format: %s", hash)
	}
	key := s.prefix + hash[7:] + ".json"

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get failed for %s: %w", hash, err)
	}
	defer func() { _ = result.Body.Close() }()

	return io.ReadAll(result.Body)
}
