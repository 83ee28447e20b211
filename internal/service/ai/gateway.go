package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"intizar/internal/apperr"
	"intizar/internal/config"
	"intizar/internal/scope"
	"intizar/internal/telemetry"
)

const (
	MaxQuestionLength = 1000

	MsgTooShort    = "Please enter a valid question (at least 3 characters)."
	MsgTooLong     = "Question too long. Please keep it under 1000 characters."
	MsgOutOfScope  = "This question does not appear to be related to Mahdawiyyah. I am specialized in topics about Imam Mahdi (AJF), the concept of Intizar, and the Mahdawiyyah movement. Please ask a related question."
	MsgUnavailable = "AI service unavailable. Please try again later."
	MsgNoResponse  = "I apologize, but I could not generate a response. Please try again."
	MsgRateLimited = "Too many questions. Please wait a minute and try again."
)

// DefaultSystemPrompt frames every upstream call.
const DefaultSystemPrompt = "You are an expert on Mahdawiyyah (the doctrine of Imam Mahdi). " +
	"Answer the following question accurately and respectfully. " +
	"If you don't know something, say so honestly."

// Generator produces a completion for one question. Implementations return
// *APIError when the provider answered with an error payload.
type Generator interface {
	Generate(ctx context.Context, system, question string) (string, error)
	Name() string
}

// APIError is an error payload reported by the model provider.
type APIError struct {
	Code   int
	Detail string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("provider error %d: %s", e.Code, e.Detail)
	}
	return "provider error: " + e.Detail
}

// Answer is the gateway result. InScope is false when the question was
// redirected without calling the provider.
type Answer struct {
	Text    string
	InScope bool
}

// Gateway validates and scopes questions before a single bounded upstream call.
type Gateway struct {
	gen     Generator
	filter  scope.Filter
	system  string
	timeout time.Duration
	limiter *rateLimiter
	metrics *telemetry.Metrics
}

type Option func(*Gateway)

func WithMetrics(m *telemetry.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

func WithRateLimit(perMinute int) Option {
	return func(g *Gateway) {
		if perMinute > 0 {
			g.limiter = newRateLimiter(perMinute, time.Minute)
		}
	}
}

func WithSystemPrompt(prompt string) Option {
	return func(g *Gateway) {
		if strings.TrimSpace(prompt) != "" {
			g.system = prompt
		}
	}
}

// NewGateway wires a generator (nil when no provider is configured) with the
// topic filter.
func NewGateway(gen Generator, filter scope.Filter, timeout time.Duration, opts ...Option) *Gateway {
	if timeout <= 0 {
		timeout = time.Duration(config.DefaultAITimeout) * time.Second
	}
	g := &Gateway{gen: gen, filter: filter, system: DefaultSystemPrompt, timeout: timeout}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Configured reports whether an upstream provider is available.
func (g *Gateway) Configured() bool {
	return g != nil && g.gen != nil
}

// Ask answers question on behalf of caller (used only for rate limiting).
func (g *Gateway) Ask(ctx context.Context, caller, question string) (Answer, error) {
	trimmed := strings.TrimSpace(question)
	n := utf8.RuneCountInString(trimmed)
	if n < scope.MinLength {
		g.observe("invalid")
		return Answer{}, apperr.Validation(MsgTooShort)
	}
	if n > MaxQuestionLength {
		g.observe("invalid")
		return Answer{}, apperr.Validation(MsgTooLong)
	}
	if !g.filter.IsInScope(trimmed) {
		g.observe("out_of_scope")
		return Answer{Text: MsgOutOfScope, InScope: false}, nil
	}
	if !g.limiter.Allow(caller) {
		g.observe("rate_limited")
		return Answer{}, apperr.Busy(MsgRateLimited, nil)
	}
	if g.gen == nil {
		g.observe("unconfigured")
		return Answer{}, apperr.Upstream(MsgUnavailable, errors.New("ai provider not configured"))
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	text, err := g.gen.Generate(callCtx, g.system, trimmed)
	logger := slog.With("provider", g.gen.Name(), "latency_ms", time.Since(start).Milliseconds())
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			logger.Error("ai provider returned error", "code", apiErr.Code, "error", apiErr.Detail)
			g.observe("provider_error")
			detail := apiErr.Detail
			if detail == "" {
				detail = "Unknown error"
			}
			return Answer{}, apperr.Upstream("AI service error: "+detail, err)
		}
		logger.Error("ai provider call failed", "error", err)
		g.observe("unavailable")
		return Answer{}, apperr.Upstream(MsgUnavailable, err)
	}
	if strings.TrimSpace(text) == "" {
		logger.Warn("ai provider returned empty content")
		g.observe("empty")
		return Answer{Text: MsgNoResponse, InScope: true}, nil
	}
	g.observe("answered")
	return Answer{Text: text, InScope: true}, nil
}

func (g *Gateway) observe(outcome string) {
	g.metrics.ObserveAI(outcome)
}
