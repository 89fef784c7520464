package clients

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// StorageClient provides S3-compatible object storage access for artifact
// archives.
type StorageClient struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// NewStorageClient creates a new MinIO/S3 storage client.
func NewStorageClient(endpoint, accessKey, secretKey, bucket string, useSSL bool, logger *slog.Logger) (*StorageClient, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}

	return &StorageClient{
		client: client,
		bucket: bucket,
		logger: logger,
	}, nil
}

// UploadArchive stores a packaged artifact at the given object path.
func (c *StorageClient) UploadArchive(ctx context.Context, objectPath string, archive []byte) error {
	c.logger.Debug("uploading archive to storage",
		slog.String("bucket", c.bucket),
		slog.String("path", objectPath),
		slog.Int("bytes", len(archive)),
	)

	reader := bytes.NewReader(archive)
	info, err := c.client.PutObject(ctx, c.bucket, objectPath, reader, int64(len(archive)), minio.PutObjectOptions{
		ContentType: "application/gzip",
	})
	if err != nil {
		return fmt.Errorf("uploading to storage: %w", err)
	}

	c.logger.Debug("upload complete",
		slog.Int64("bytes", info.Size),
		slog.String("etag", info.ETag),
	)
	return nil
}

// PresignedDownloadURL returns a time-limited URL for downloading a stored
// artifact without catalog credentials.
func (c *StorageClient) PresignedDownloadURL(ctx context.Context, objectPath string, expiry time.Duration) (string, error) {
	presigned, err := c.client.PresignedGetObject(ctx, c.bucket, objectPath, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presigning download: %w", err)
	}
	return presigned.String(), nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (c *StorageClient) EnsureBucket(ctx context.Context) error {
	exists, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("checking bucket existence: %w", err)
	}

	if !exists {
		err = c.client.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("creating bucket: %w", err)
		}
		c.logger.Info("created storage bucket", slog.String("bucket", c.bucket))
	}

	return nil
}

// Close is a no-op for the MinIO client as it doesn't maintain persistent connections.
// This method is provided for consistency with other clients in the package.
func (c *StorageClient) Close() error {
	return nil
}
