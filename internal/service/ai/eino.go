package ai

import (
	"context"
	"fmt"
	"net/http"

	"intizar/internal/config"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxOutputTokens = 2048

// einoGenerator adapts an eino chat model to Generator.
type einoGenerator struct {
	chat model.BaseChatModel
	name string
}

func newOpenAIGenerator(ctx context.Context, p config.ProviderConfig) (*einoGenerator, error) {
	maxTokens := maxOutputTokens
	chat, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL:     p.BaseURL,
		Model:       p.Model,
		APIKey:      p.APIKey,
		HTTPClient:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		Temperature: float32Ptr(0.7),
		TopP:        float32Ptr(0.95),
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("new openai chat model: %w", err)
	}
	return &einoGenerator{chat: chat, name: "openai:" + p.Model}, nil
}

func newClaudeGenerator(ctx context.Context, p config.ProviderConfig) (*einoGenerator, error) {
	var baseURLPtr *string
	if p.BaseURL != "" {
		baseURLPtr = &p.BaseURL
	}
	topK := int32(40)
	chat, err := claude.NewChatModel(ctx, &claude.Config{
		APIKey:      p.APIKey,
		Model:       p.Model,
		BaseURL:     baseURLPtr,
		MaxTokens:   maxOutputTokens,
		Temperature: float32Ptr(0.7),
		TopP:        float32Ptr(0.95),
		TopK:        &topK,
	})
	if err != nil {
		return nil, fmt.Errorf("new claude chat model: %w", err)
	}
	return &einoGenerator{chat: chat, name: "claude:" + p.Model}, nil
}

func (e *einoGenerator) Name() string { return e.name }

func (e *einoGenerator) Generate(ctx context.Context, system, question string) (string, error) {
	resp, err := e.chat.Generate(ctx, []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(question),
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("generate: %w", ctx.Err())
		}
		return "", err
	}
	if resp == nil {
		return "", nil
	}
	return resp.Content, nil
}

func float32Ptr(v float32) *float32 { return &v }
