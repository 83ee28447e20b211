package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"intizar/internal/config"
	"intizar/internal/models"
)

// FilesRoute is where the HTTP server exposes the local folder.
const FilesRoute = "/files"

// LocalStore writes files under <base_dir>/<folder_name>.
type LocalStore struct {
	root    string
	baseURL string
}

func NewLocalStore(cfg config.StorageConfig) (*LocalStore, error) {
	root := filepath.Join(cfg.BaseDir, cfg.FolderName)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage folder: %w", err)
	}
	return &LocalStore{root: root, baseURL: cfg.PublicBaseURL + FilesRoute}, nil
}

func (s *LocalStore) Name() string { return "local" }

// Root is the directory served under FilesRoute.
func (s *LocalStore) Root() string { return s.root }

func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader, _ int64, contentType string) (models.StoredFile, error) {
	key, err := cleanKey(key)
	if err != nil {
		return models.StoredFile{}, err
	}
	dst := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return models.StoredFile{}, fmt.Errorf("create folder: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return models.StoredFile{}, fmt.Errorf("create temp file: %w", err)
	}
	written, err := io.Copy(tmp, readerWithContext(ctx, r))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return models.StoredFile{}, fmt.Errorf("write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return models.StoredFile{}, fmt.Errorf("finalize file: %w", err)
	}
	return models.StoredFile{
		Ref:      key,
		Name:     filepath.Base(dst),
		URL:      joinURL(s.baseURL, key),
		MimeType: contentType,
		Size:     written,
	}, nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	dst := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.Remove(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove file: %w", err)
	}
	// drop the per-document folder when it is empty
	if dir := filepath.Dir(dst); dir != s.root {
		_ = os.Remove(dir)
	}
	return nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}
