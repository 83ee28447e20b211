package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"intizar/internal/client"
	"intizar/internal/models"
)

// DefaultSessionLength applies when the backend does not report expiresIn.
const DefaultSessionLength = time.Hour

var (
	ErrLoginRequired   = errors.New("login required")
	ErrSessionExpired  = errors.New("session expired, please login again")
	ErrUnsupportedFile = errors.New("only .pdf and .docx files can be uploaded")
	ErrMissingFields   = errors.New("username and password are required")
)

// Backend is the subset of the API client the admin flow uses.
type Backend interface {
	Login(ctx context.Context, username, password string) (client.Session, error)
	Logout(ctx context.Context, token string) error
	Upload(ctx context.Context, token string, u client.Upload) (client.StoredDocument, error)
	GeneratePdf(ctx context.Context, token, title, author, text string) (client.StoredDocument, error)
}

type savedSession struct {
	Token  string    `json:"token"`
	Expiry time.Time `json:"expiry"`
	Name   string    `json:"name"`
}

// Admin holds one admin session and performs the admin-only actions with it.
type Admin struct {
	backend     Backend
	sessionPath string
	now         func() time.Time

	mu      sync.Mutex
	session savedSession
}

type AdminOption func(*Admin)

// WithSessionFile persists the session at path between runs.
func WithSessionFile(path string) AdminOption {
	return func(a *Admin) { a.sessionPath = path }
}

func WithAdminClock(now func() time.Time) AdminOption {
	return func(a *Admin) { a.now = now }
}

// NewAdmin restores a saved session when a session file is configured.
func NewAdmin(backend Backend, opts ...AdminOption) *Admin {
	a := &Admin{backend: backend, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	if a.sessionPath != "" {
		if s, err := readSession(a.sessionPath); err == nil {
			a.session = s
		}
	}
	return a
}

// Name is the username of the current session, or empty.
func (a *Admin) Name() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session.Name
}

// LoggedIn reports whether a non-expired token is held.
func (a *Admin) LoggedIn() bool {
	_, err := a.token()
	return err == nil
}

func (a *Admin) Login(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return ErrMissingFields
	}
	s, err := a.backend.Login(ctx, username, password)
	if err != nil {
		return err
	}
	length := time.Duration(s.ExpiresIn) * time.Second
	if length <= 0 {
		length = DefaultSessionLength
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.session = savedSession{Token: s.Token, Expiry: a.now().Add(length), Name: username}
	return a.persistLocked()
}

// Logout revokes the token on the backend and always clears it locally.
func (a *Admin) Logout(ctx context.Context) error {
	a.mu.Lock()
	token := a.session.Token
	a.session = savedSession{}
	persistErr := a.persistLocked()
	a.mu.Unlock()

	if token == "" {
		return persistErr
	}
	if err := a.backend.Logout(ctx, token); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return persistErr
}

// Upload sends the file at path with its MIME type taken from the extension.
func (a *Admin) Upload(ctx context.Context, path, title, author string) (client.StoredDocument, error) {
	token, err := a.token()
	if err != nil {
		return client.StoredDocument{}, err
	}
	mimeType, err := MimeTypeFor(path)
	if err != nil {
		return client.StoredDocument{}, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return client.StoredDocument{}, fmt.Errorf("read %s: %w", path, err)
	}
	res, err := a.backend.Upload(ctx, token, client.Upload{
		FileName: filepath.Base(path),
		MimeType: mimeType,
		Content:  content,
		Title:    title,
		Author:   author,
	})
	return res, a.checkRejected(err)
}

// Generate asks the backend to render text as a PDF document.
func (a *Admin) Generate(ctx context.Context, title, author, text string) (client.StoredDocument, error) {
	token, err := a.token()
	if err != nil {
		return client.StoredDocument{}, err
	}
	res, err := a.backend.GeneratePdf(ctx, token, title, author, text)
	return res, a.checkRejected(err)
}

// checkRejected drops the local session when the backend no longer accepts
// the token.
func (a *Admin) checkRejected(err error) error {
	var apiErr *client.Error
	if errors.As(err, &apiErr) && strings.HasSuffix(apiErr.Message, "Please login again.") {
		a.mu.Lock()
		a.session = savedSession{}
		_ = a.persistLocked()
		a.mu.Unlock()
	}
	return err
}

// MimeTypeFor maps .pdf and .docx file names to their upload MIME type.
func MimeTypeFor(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return models.MimePDF, nil
	case ".docx":
		return models.MimeDOCX, nil
	}
	return "", ErrUnsupportedFile
}

// token returns the held token, clearing it when it has expired locally.
func (a *Admin) token() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session.Token == "" {
		return "", ErrLoginRequired
	}
	if !a.now().Before(a.session.Expiry) {
		a.session = savedSession{}
		_ = a.persistLocked()
		return "", ErrSessionExpired
	}
	return a.session.Token, nil
}

func (a *Admin) persistLocked() error {
	if a.sessionPath == "" {
		return nil
	}
	if a.session.Token == "" {
		if err := os.Remove(a.sessionPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove session file: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(a.sessionPath), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	data, err := json.Marshal(a.session)
	if err != nil {
		return err
	}
	if err := os.WriteFile(a.sessionPath, data, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

func readSession(path string) (savedSession, error) {
	var s savedSession
	data, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return savedSession{}, err
	}
	return s, nil
}
