package ai

import (
	"context"
	"fmt"

	"intizar/internal/config"
)

// NewGenerator builds the generator for the configured provider. It returns
// nil without error when the provider has no API key, which leaves the
// gateway unconfigured.
func NewGenerator(ctx context.Context, cfg *config.Config) (Generator, error) {
	name, p := cfg.ActiveProvider()
	if p.APIKey == "" {
		return nil, nil
	}
	var (
		gen Generator
		err error
	)
	switch name {
	case "gemini":
		gen, err = newGeminiGenerator(ctx, p)
	case "openai":
		gen, err = newOpenAIGenerator(ctx, p)
	case "claude":
		gen, err = newClaudeGenerator(ctx, p)
	default:
		return nil, fmt.Errorf("invalid provider: %s", name)
	}
	if err != nil {
		return nil, err
	}
	return gen, nil
}
