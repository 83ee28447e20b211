package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"intizar/internal/config"
	"intizar/internal/models"
)

// FileStore keeps uploaded and generated binaries. Keys are slash separated
// and chosen by the caller.
type FileStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (models.StoredFile, error)
	Delete(ctx context.Context, key string) error
	Name() string
}

var ErrInvalidKey = errors.New("invalid object key")

// NewFileStore builds the configured backend and makes sure its folder or
// bucket exists.
func NewFileStore(ctx context.Context, cfg config.StorageConfig) (FileStore, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalStore(cfg)
	case "minio":
		return NewMinIO(ctx, cfg)
	case "gcs":
		return NewGCS(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported file store: %s", cfg.Backend)
	}
}

// cleanKey rejects absolute and parent-relative keys.
func cleanKey(key string) (string, error) {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	if key == "" || strings.HasPrefix(key, "/") {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}

// joinURL appends the escaped key segments to base.
func joinURL(base, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(segments, "/")
}
