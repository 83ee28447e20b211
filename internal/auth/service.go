package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"intizar/internal/config"
	"intizar/internal/redis"

	"golang.org/x/crypto/bcrypt"
)

const (
	keyPrefix     = "admin:"
	sessionMarker = "authenticated"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUnavailable        = errors.New("session store unavailable")
)

// Service issues, validates, and revokes admin session tokens. Expiry is
// delegated to the backing store's TTL.
type Service struct {
	cache        redis.Store
	tokenTTL     time.Duration
	username     string
	password     string
	passwordHash []byte
	headerName   string
}

// NewService constructs an auth service with the supplied session lifetime.
func NewService(cache redis.Store, admin config.AdminConfig, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = time.Duration(config.DefaultSessionTTL) * time.Minute
	}
	s := &Service{
		cache:      cache,
		tokenTTL:   ttl,
		username:   admin.Username,
		password:   admin.Password,
		headerName: "Authorization",
	}
	if admin.PasswordHash != "" {
		s.passwordHash = []byte(admin.PasswordHash)
	}
	return s
}

// CreateSession mints a new random token and stores it with the session TTL.
func (s *Service) CreateSession(ctx context.Context) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	if err := s.cache.Set(ctx, keyPrefix+token, sessionMarker, s.tokenTTL); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return token, nil
}

// IsValidSession is true iff token is non-empty and still present in the store.
// Store failures count as invalid.
func (s *Service) IsValidSession(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}
	v, err := s.cache.Get(ctx, keyPrefix+token)
	if err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			slog.Warn("session lookup failed", "error", err)
		}
		return false
	}
	return v == sessionMarker
}

// DestroySession removes the token if present. Empty or unknown tokens are a no-op.
func (s *Service) DestroySession(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.cache.Del(ctx, keyPrefix+token); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}

// Authenticate checks the single configured admin identity.
func (s *Service) Authenticate(username, password string) bool {
	if s.username == "" || (s.password == "" && len(s.passwordHash) == 0) {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	var passOK bool
	if len(s.passwordHash) > 0 {
		passOK = bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)) == nil
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(password), []byte(s.password)) == 1
	}
	return userOK && passOK
}

// Login verifies credentials and issues a session. It returns the token and
// its lifetime in seconds.
func (s *Service) Login(ctx context.Context, username, password string) (string, int, error) {
	if !s.Authenticate(username, password) {
		return "", 0, ErrInvalidCredentials
	}
	token, err := s.CreateSession(ctx)
	if err != nil {
		return "", 0, err
	}
	return token, int(s.tokenTTL / time.Second), nil
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
