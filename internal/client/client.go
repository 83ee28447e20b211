// Package client talks to the library backend over its single action
// endpoint.
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"intizar/internal/models"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultTimeout = 60 * time.Second

	maxResponseBytes = 32 << 20
)

// Error is a failure reported by the backend through success:false.
type Error struct {
	Action           string
	Message          string
	AvailableActions []string
}

func (e *Error) Error() string {
	return e.Message
}

// Health is the health action payload.
type Health struct {
	Status    string          `json:"status"`
	Timestamp string          `json:"timestamp"`
	Services  map[string]bool `json:"services"`
}

// Session is a freshly issued admin token.
type Session struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expiresIn"`
}

// StoredDocument is the upload and generatePdf payload.
type StoredDocument struct {
	FileID   string          `json:"fileId"`
	FileURL  string          `json:"fileUrl"`
	FileName string          `json:"fileName"`
	Message  string          `json:"message"`
	Document models.Document `json:"document"`
}

// Answer is the ai action payload. Timestamp is empty when the question was
// redirected as off-topic.
type Answer struct {
	Response  string `json:"response"`
	Timestamp string `json:"timestamp"`
}

// Upload describes one file for the upload action. Content is raw bytes;
// the client encodes it.
type Upload struct {
	FileName string
	MimeType string
	Content  []byte
	Title    string
	Author   string
}

// Client calls the backend actions.
type Client struct {
	baseURL string
	http    *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default traced client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New returns a client for the endpoint at baseURL, e.g.
// http://localhost:8090/exec.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	err := c.get(ctx, "health", nil, &out)
	return out, err
}

// Documents returns the catalog as the backend lists it, newest first.
func (c *Client) Documents(ctx context.Context) ([]models.Document, error) {
	var out struct {
		Documents []models.Document `json:"documents"`
	}
	if err := c.get(ctx, "getDocuments", nil, &out); err != nil {
		return nil, err
	}
	return out.Documents, nil
}

// Login posts form-encoded credentials.
func (c *Client) Login(ctx context.Context, username, password string) (Session, error) {
	var out Session
	err := c.postForm(ctx, "login", url.Values{"username": {username}, "password": {password}}, &out)
	return out, err
}

func (c *Client) Logout(ctx context.Context, token string) error {
	return c.get(ctx, "logout", url.Values{"token": {token}}, nil)
}

func (c *Client) Upload(ctx context.Context, token string, u Upload) (StoredDocument, error) {
	body := map[string]any{
		"token":      token,
		"fileName":   u.FileName,
		"mimeType":   u.MimeType,
		"fileBase64": base64.StdEncoding.EncodeToString(u.Content),
		"metadata":   map[string]string{"title": u.Title, "author": u.Author},
	}
	var out StoredDocument
	err := c.postJSON(ctx, "upload", body, &out)
	return out, err
}

func (c *Client) GeneratePdf(ctx context.Context, token, title, author, text string) (StoredDocument, error) {
	body := map[string]any{
		"token":    token,
		"formData": map[string]string{"title": title, "author": author, "body": text},
	}
	var out StoredDocument
	err := c.postJSON(ctx, "generatePdf", body, &out)
	return out, err
}

// Ask sends one question to the assistant.
func (c *Client) Ask(ctx context.Context, question string) (Answer, error) {
	var out Answer
	err := c.postForm(ctx, "ai", url.Values{"input": {question}}, &out)
	return out, err
}

func (c *Client) get(ctx context.Context, action string, params url.Values, out any) error {
	q := url.Values{}
	for k, vs := range params {
		q[k] = vs
	}
	q.Set("action", action)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", action, err)
	}
	return c.do(req, action, out)
}

func (c *Client) postForm(ctx context.Context, action string, form url.Values, out any) error {
	body := url.Values{}
	for k, vs := range form {
		body[k] = vs
	}
	body.Set("action", action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(body.Encode()))
	if err != nil {
		return fmt.Errorf("build %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, action, out)
}

func (c *Client) postJSON(ctx context.Context, action string, body map[string]any, out any) error {
	body["action"] = action
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", action, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, action, out)
}

func (c *Client) do(req *http.Request, action string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", action, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read %s response: %w", action, err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("server error: %d %s", resp.StatusCode, strings.TrimSpace(string(snippet(body))))
	}

	var env struct {
		Success          bool     `json:"success"`
		Error            string   `json:"error"`
		AvailableActions []string `json:"availableActions"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode %s response: %w", action, err)
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = action + " failed"
		}
		return &Error{Action: action, Message: msg, AvailableActions: env.AvailableActions}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s payload: %w", action, err)
	}
	return nil
}

func snippet(b []byte) []byte {
	if len(b) > 200 {
		return b[:200]
	}
	return b
}
