package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStoreOptions configures the S3-compatible backend.
type ObjectStoreOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string
}

// ObjectStore persists artifacts in an S3-compatible bucket. The bucket is
// created lazily on first write.
type ObjectStore struct {
	client     *minio.Client
	bucket     string
	publicBase string

	ensureOnce sync.Once
	ensureErr  error
}

func NewObjectStore(opts ObjectStoreOptions) (*ObjectStore, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: minio client: %w", err)
	}
	publicBase := strings.TrimRight(opts.PublicURL, "/")
	if publicBase == "" {
		scheme := "http"
		if opts.UseSSL {
			scheme = "https"
		}
		publicBase = fmt.Sprintf("%s://%s/%s", scheme, opts.Endpoint, opts.Bucket)
	}
	return &ObjectStore{client: client, bucket: opts.Bucket, publicBase: publicBase}, nil
}

func (s *ObjectStore) ensureBucket(ctx context.Context) error {
	s.ensureOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.ensureErr = fmt.Errorf("storage: check bucket: %w", err)
			return
		}
		if exists {
			return
		}
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			s.ensureErr = fmt.Errorf("storage: create bucket: %w", err)
		}
	})
	return s.ensureErr
}

func (s *ObjectStore) Write(ctx context.Context, key string, data []byte) (string, error) {
	key = sanitizeKey(key)
	if key == "" {
		return "", fmt.Errorf("storage: empty key")
	}
	if err := s.ensureBucket(ctx); err != nil {
		return "", err
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "image/png",
	})
	if err != nil {
		return "", fmt.Errorf("storage: put %s: %w", key, err)
	}
	return s.publicBase + "/" + key, nil
}
