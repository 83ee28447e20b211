package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"intizar/internal/apperr"
	"intizar/internal/config"
	"intizar/internal/scope"
	"intizar/internal/telemetry"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	calls    int
	system   string
	question string
	reply    string
	err      error
	wait     bool
}

func (f *fakeGenerator) Name() string { return "fake" }

func (f *fakeGenerator) Generate(ctx context.Context, system, question string) (string, error) {
	f.calls++
	f.system = system
	f.question = question
	if f.wait {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.reply, f.err
}

func TestAskValidation(t *testing.T) {
	gen := &fakeGenerator{reply: "ok"}
	gw := NewGateway(gen, scope.Default(), time.Second)

	_, err := gw.Ask(context.Background(), "c", "  hi ")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, MsgTooShort, apperr.Message(err, ""))

	_, err = gw.Ask(context.Background(), "c", "What is Mahdi "+strings.Repeat("x", MaxQuestionLength))
	assert.Equal(t, MsgTooLong, apperr.Message(err, ""))
	assert.Zero(t, gen.calls, "invalid questions must not reach the provider")
}

func TestAskOutOfScopeSkipsProvider(t *testing.T) {
	gen := &fakeGenerator{reply: "ok"}
	gw := NewGateway(gen, scope.Default(), time.Second)

	answer, err := gw.Ask(context.Background(), "c", "How are you today")
	require.NoError(t, err)
	assert.False(t, answer.InScope)
	assert.Equal(t, MsgOutOfScope, answer.Text)
	assert.Zero(t, gen.calls)
}

func TestAskInScope(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := telemetry.NewMetrics(reg)
	require.NoError(t, err)

	gen := &fakeGenerator{reply: "The awaited one."}
	gw := NewGateway(gen, scope.Default(), time.Second, WithMetrics(metrics))

	answer, err := gw.Ask(context.Background(), "c", "  What is Mahdi  ")
	require.NoError(t, err)
	assert.True(t, answer.InScope)
	assert.Equal(t, "The awaited one.", answer.Text)
	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, "What is Mahdi", gen.question)
	assert.Equal(t, DefaultSystemPrompt, gen.system)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AIRequests.WithLabelValues("answered")))
}

func TestAskErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		gen  *fakeGenerator
		want string
	}{
		{"api error", &fakeGenerator{err: &APIError{Code: 400, Detail: "API key not valid"}}, "AI service error: API key not valid"},
		{"api error without detail", &fakeGenerator{err: &APIError{Code: 500}}, "AI service error: Unknown error"},
		{"transport", &fakeGenerator{err: errors.New("dial tcp: refused")}, MsgUnavailable},
		{"timeout", &fakeGenerator{wait: true}, MsgUnavailable},
	}
	for _, tc := range cases {
		gw := NewGateway(tc.gen, scope.Default(), 20*time.Millisecond)
		_, err := gw.Ask(context.Background(), "c", "What is Mahdi")
		if assert.Error(t, err, tc.name) {
			assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err), tc.name)
			assert.Equal(t, tc.want, apperr.Message(err, ""), tc.name)
		}
		assert.Equal(t, 1, tc.gen.calls, "%s: exactly one attempt", tc.name)
	}
}

func TestAskEmptyReplyApologises(t *testing.T) {
	gw := NewGateway(&fakeGenerator{reply: "   "}, scope.Default(), time.Second)
	answer, err := gw.Ask(context.Background(), "c", "What is Mahdi")
	require.NoError(t, err)
	assert.Equal(t, MsgNoResponse, answer.Text)
}

func TestAskUnconfigured(t *testing.T) {
	gw := NewGateway(nil, scope.Default(), time.Second)
	assert.False(t, gw.Configured())
	_, err := gw.Ask(context.Background(), "c", "What is Mahdi")
	assert.Equal(t, MsgUnavailable, apperr.Message(err, ""))

	answer, err := gw.Ask(context.Background(), "c", "How are you today")
	require.NoError(t, err, "out of scope answers do not need a provider")
	assert.Equal(t, MsgOutOfScope, answer.Text)
}

func TestAskRateLimited(t *testing.T) {
	gen := &fakeGenerator{reply: "ok"}
	gw := NewGateway(gen, scope.Default(), time.Second, WithRateLimit(2))

	for i := 0; i < 2; i++ {
		_, err := gw.Ask(context.Background(), "1.2.3.4", "What is Mahdi")
		require.NoError(t, err)
	}
	_, err := gw.Ask(context.Background(), "1.2.3.4", "What is Mahdi")
	assert.Equal(t, apperr.KindBusy, apperr.KindOf(err))
	assert.Equal(t, MsgRateLimited, apperr.Message(err, ""))

	_, err = gw.Ask(context.Background(), "5.6.7.8", "What is Mahdi")
	assert.NoError(t, err, "limit is per caller")
	assert.Equal(t, 3, gen.calls)
}

func TestRateLimiterWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newRateLimiter(1, time.Minute)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	now = now.Add(time.Minute + time.Second)
	assert.True(t, l.Allow("a"))

	var disabled *rateLimiter
	assert.True(t, disabled.Allow("a"))
}

func TestRateLimiterRefillsSteadily(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newRateLimiter(2, time.Minute)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"), "burst spent")

	now = now.Add(30 * time.Second)
	assert.True(t, l.Allow("a"), "one token back after half a window")
	assert.False(t, l.Allow("a"))
}

func TestRateLimiterForgetsIdleCallers(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newRateLimiter(1, time.Minute)
	l.now = func() time.Time { return now }

	for i := 0; i <= maxTrackedCallers; i++ {
		l.Allow(fmt.Sprintf("10.0.%d.%d", i/256, i%256))
	}
	require.Len(t, l.callers, maxTrackedCallers+1)

	now = now.Add(2 * time.Minute)
	assert.True(t, l.Allow("fresh"))
	assert.Len(t, l.callers, 1)
}

func TestGeminiGenerator(t *testing.T) {
	var captured map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(string(body), "bad question") {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":{"code":400,"message":"quota exhausted","status":"INVALID_ARGUMENT"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"Intizar means awaiting."}]}}]}`)
	}))
	defer ts.Close()

	gen, err := newGeminiGenerator(context.Background(), config.ProviderConfig{APIKey: "test-key", BaseURL: ts.URL + "/"})
	require.NoError(t, err)
	assert.Equal(t, "gemini:"+config.DefaultGeminiModel, gen.Name())

	text, err := gen.Generate(context.Background(), DefaultSystemPrompt, "What is intizar")
	require.NoError(t, err)
	assert.Equal(t, "Intizar means awaiting.", text)

	genCfg, _ := captured["generationConfig"].(map[string]any)
	require.NotNil(t, genCfg)
	assert.EqualValues(t, 2048, genCfg["maxOutputTokens"])
	assert.EqualValues(t, 40, genCfg["topK"])
	safety, _ := captured["safetySettings"].([]any)
	assert.Len(t, safety, 2)

	_, err = gen.Generate(context.Background(), DefaultSystemPrompt, "bad question")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.Code)
	assert.Equal(t, "quota exhausted", apiErr.Detail)
}

func TestNewGeneratorWithoutKey(t *testing.T) {
	cfg := &config.Config{AI: config.AIConfig{Provider: "gemini"}}
	gen, err := NewGenerator(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, gen)

	cfg = &config.Config{
		AI:        config.AIConfig{Provider: "unknown"},
		Providers: map[string]config.ProviderConfig{"unknown": {APIKey: "k"}},
	}
	_, err = NewGenerator(context.Background(), cfg)
	assert.Error(t, err)
}
