// Package objectstore wraps an S3-compatible bucket used for report archives.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds object storage connection settings
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
	Bucket    string
}

// Client writes objects into a single bucket
type Client struct {
	mc     *minio.Client
	bucket string
	region string
	logger *slog.Logger
}

// New creates a client; it does not contact the server
func New(cfg *Config, logger *slog.Logger) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}
	return &Client{mc: mc, bucket: cfg.Bucket, region: cfg.Region, logger: logger}, nil
}

// EnsureBucket creates the bucket when it does not exist yet
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %q: %w", c.bucket, err)
	}
	if exists {
		return nil
	}
	if err := c.mc.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{Region: c.region}); err != nil {
		return fmt.Errorf("failed to create bucket %q: %w", c.bucket, err)
	}
	c.logger.Info("Created report bucket",
		slog.String("bucket", c.bucket),
	)
	return nil
}

// PutObject uploads body under key
func (c *Client) PutObject(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := c.mc.PutObject(ctx, c.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s/%s: %w", c.bucket, key, err)
	}
	return nil
}
