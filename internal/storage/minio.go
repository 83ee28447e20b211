package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"time"

	"intizar/internal/config"
	"intizar/internal/models"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// PresignExpiry bounds the lifetime of the download links handed out by
// PresignGet. Catalog rows never hold them.
const PresignExpiry = 15 * time.Minute

// Presigner mints a short-lived download link for a stored key. The server
// redirects FilesRoute requests through it, so stored URLs stay valid.
type Presigner interface {
	PresignGet(ctx context.Context, key string) (string, error)
}

// MinIOStore keeps files in an S3-compatible bucket (MinIO, AWS S3, etc.).
type MinIOStore struct {
	client    *minio.Client
	bucket    string
	prefix    string
	bucketURL string
	filesURL  string
}

// NewMinIO validates connectivity and creates the bucket when missing.
func NewMinIO(ctx context.Context, cfg config.StorageConfig) (*MinIOStore, error) {
	mc := cfg.MinIO
	if mc.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if mc.AccessKey == "" || mc.SecretKey == "" {
		return nil, fmt.Errorf("minio credentials are required")
	}
	if mc.Bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}

	cli, err := minio.New(mc.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(mc.AccessKey, mc.SecretKey, ""),
		Secure: mc.UseSSL,
		Region: mc.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	exists, err := cli.BucketExists(ctx, mc.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, mc.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return newMinIOStore(cli, cfg), nil
}

func newMinIOStore(cli *minio.Client, cfg config.StorageConfig) *MinIOStore {
	return &MinIOStore{
		client:    cli,
		bucket:    cfg.MinIO.Bucket,
		prefix:    cfg.FolderName,
		bucketURL: cfg.MinIO.PublicURL,
		filesURL:  cfg.PublicBaseURL + FilesRoute,
	}
}

func (m *MinIOStore) Name() string { return "minio" }

func (m *MinIOStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (models.StoredFile, error) {
	key, err := cleanKey(key)
	if err != nil {
		return models.StoredFile{}, err
	}
	object := m.objectName(key)
	info, err := m.client.PutObject(ctx, m.bucket, object, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return models.StoredFile{}, fmt.Errorf("put object: %w", err)
	}
	return models.StoredFile{
		Ref:      key,
		Name:     path.Base(key),
		URL:      m.link(key),
		MimeType: contentType,
		Size:     info.Size,
	}, nil
}

func (m *MinIOStore) Delete(ctx context.Context, key string) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	return m.client.RemoveObject(ctx, m.bucket, m.objectName(key), minio.RemoveObjectOptions{})
}

func (m *MinIOStore) objectName(key string) string {
	if m.prefix == "" {
		return key
	}
	return m.prefix + "/" + key
}

// link is the permanent URL stored with the catalog row: the public bucket
// when one is configured, otherwise the server route that presigns on request.
func (m *MinIOStore) link(key string) string {
	if m.bucketURL != "" {
		return joinURL(m.bucketURL, m.bucket+"/"+m.objectName(key))
	}
	return joinURL(m.filesURL, key)
}

// PresignGet returns a download link for key that expires after PresignExpiry.
func (m *MinIOStore) PresignGet(ctx context.Context, key string) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	u, err := m.client.PresignedGetObject(ctx, m.bucket, m.objectName(key), PresignExpiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return u.String(), nil
}
