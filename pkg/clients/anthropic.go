package clients

import (
	"errors"

	"github.com/tmc/langchaingo/llms/anthropic"
)

const (
	DefaultAnthropicModel = "claude-sonnet-4-20250514"
)

// AnthropicAI returns a Claude-backed chat model.
func AnthropicAI(apiKey, model string) (*anthropic.LLM, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic API key is missing")
	}
	if model == "" {
		model = DefaultAnthropicModel
	}

	return anthropic.New(anthropic.WithToken(apiKey), anthropic.WithModel(model))
}
