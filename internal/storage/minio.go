// Package storage archives uploaded invoice documents in MinIO.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/facturaIA/purchase-invoice-ingest/internal/models"
)

// ErrNotConfigured is returned by New when no endpoint is set
var ErrNotConfigured = errors.New("storage not configured")

// Archive stores original documents under {bucket}/YYYY/MM/{uuid}-{filename}
type Archive struct {
	client *minio.Client
	bucket string
}

// New connects to MinIO and verifies the bucket exists
func New(ctx context.Context, cfg models.StorageConfig) (*Archive, error) {
	if cfg.Endpoint == "" {
		return nil, ErrNotConfigured
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", cfg.Bucket)
	}

	return &Archive{client: client, bucket: cfg.Bucket}, nil
}

// ObjectName builds the object key for an upload made at now
func ObjectName(now time.Time, filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" {
		base = "document.pdf"
	}
	return fmt.Sprintf("%d/%02d/%s-%s", now.Year(), now.Month(), uuid.NewString(), base)
}

// Store uploads a document and returns its "bucket/object" path
func (a *Archive) Store(ctx context.Context, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	objectName := ObjectName(time.Now(), filename)

	_, err := a.client.PutObject(ctx, a.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload document: %w", err)
	}

	return a.bucket + "/" + objectName, nil
}

// PresignedURL generates a 24h download link for an archived document
func (a *Archive) PresignedURL(ctx context.Context, objectPath string) (string, error) {
	url, err := a.client.PresignedGetObject(ctx, a.bucket, a.objectName(objectPath), 24*time.Hour, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return url.String(), nil
}

// Remove deletes an archived document
func (a *Archive) Remove(ctx context.Context, objectPath string) error {
	return a.client.RemoveObject(ctx, a.bucket, a.objectName(objectPath), minio.RemoveObjectOptions{})
}

func (a *Archive) objectName(objectPath string) string {
	return strings.TrimPrefix(objectPath, a.bucket+"/")
}
