package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"studyvault/pkg/domain"
)

// ObjectStore provides access to the content and exam-file buckets.
// Keys are opaque paths; callers never see raw bucket URLs, only
// presigned time-limited ones.
type ObjectStore interface {
	Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	PresignGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
	Delete(ctx context.Context, bucket, key string) error
}

// Buckets names the three storage areas. Selection by content type is a
// thin routing rule: video uploads land in Videos, pdf/notes in Notes,
// syllabus and past papers in Exam.
type Buckets struct {
	Videos string
	Notes  string
	Exam   string
}

// ForContentType routes a content type to its bucket.
func (b Buckets) ForContentType(t domain.ContentType) string {
	if t == domain.TypeVideo {
		return b.Videos
	}
	return b.Notes
}

// MinioStore implements ObjectStore for MinIO/S3 compatible storage.
type MinioStore struct {
	client  *minio.Client
	buckets Buckets
}

// NewMinioStore connects to MinIO and ensures all buckets exist.
func NewMinioStore(endpoint, accessKey, secretKey string, buckets Buckets, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, bucket := range []string{buckets.Videos, buckets.Notes, buckets.Exam} {
		exists, err := client.BucketExists(ctx, bucket)
		if err != nil {
			return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
				return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
	}
	return &MinioStore{client: client, buckets: buckets}, nil
}

// Buckets returns the configured bucket names.
func (m *MinioStore) Buckets() Buckets {
	return m.buckets
}

// Put uploads an object.
func (m *MinioStore) Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

// Get streams an object back.
func (m *MinioStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	return obj, nil
}

// PresignGet generates a pre-signed GET URL.
func (m *MinioStore) PresignGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	url, err := m.client.PresignedGetObject(ctx, bucket, key, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return url.String(), nil
}

// Delete removes an object.
func (m *MinioStore) Delete(ctx context.Context, bucket, key string) error {
	if err := m.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// ContentURL issues the time-limited access grant for purchased content.
// Satisfies the ledger's GrantIssuer.
func (m *MinioStore) ContentURL(ctx context.Context, c domain.Content, ttl time.Duration) (string, error) {
	return m.PresignGet(ctx, m.buckets.ForContentType(c.ContentType), c.StorageKey, ttl)
}
