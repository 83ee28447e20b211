package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"intizar/internal/config"
	"intizar/internal/models"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

var ErrObjectExists = errors.New("object already exists")

// GCSStore keeps files in a Cloud Storage bucket using application default
// credentials.
type GCSStore struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
	prefix string
}

func NewGCS(ctx context.Context, cfg config.StorageConfig) (*GCSStore, error) {
	if cfg.GCSBucket == "" {
		return nil, fmt.Errorf("gcs bucket must be provided")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	bucket := client.Bucket(cfg.GCSBucket)

	attrsCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := bucket.Attrs(attrsCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("check bucket %s: %w", cfg.GCSBucket, err)
	}
	return &GCSStore{client: client, bucket: bucket, name: cfg.GCSBucket, prefix: cfg.FolderName}, nil
}

func (g *GCSStore) Name() string { return "gcs" }

func (g *GCSStore) Close() error { return g.client.Close() }

// Put writes the object only if it does not exist yet.
func (g *GCSStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (models.StoredFile, error) {
	key, err := cleanKey(key)
	if err != nil {
		return models.StoredFile{}, err
	}
	object := g.objectName(key)
	writer := g.bucket.Object(object).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = contentType

	written, err := io.Copy(writer, r)
	if err != nil {
		_ = writer.Close()
		return models.StoredFile{}, fmt.Errorf("failed to write to GCS: %w", mapGCSError(err))
	}
	if err := writer.Close(); err != nil {
		return models.StoredFile{}, fmt.Errorf("failed to finalize GCS write: %w", mapGCSError(err))
	}
	return models.StoredFile{
		Ref:      key,
		Name:     path.Base(key),
		URL:      joinURL("https://storage.googleapis.com", g.name+"/"+object),
		MimeType: contentType,
		Size:     written,
	}, nil
}

func (g *GCSStore) Delete(ctx context.Context, key string) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	err = g.bucket.Object(g.objectName(key)).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func (g *GCSStore) objectName(key string) string {
	if g.prefix == "" {
		return key
	}
	return g.prefix + "/" + key
}

func mapGCSError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
		return ErrObjectExists
	}
	return err
}
