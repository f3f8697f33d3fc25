// Package clients builds the langchaingo chat models the engine reasons with.
package clients

import (
	"context"
	"errors"

	"github.com/tmc/langchaingo/llms/googleai"
)

const (
	// DefaultGoogleModel is used when no model name is configured.
	DefaultGoogleModel = "gemini-3-flash-preview"
	ProGoogleModel     = "gemini-3-pro-preview"
)

// GoogleAI returns a Gemini-backed chat model.
// See https://ai.google.dev/gemini-api/docs/models/gemini for possible models
func GoogleAI(ctx context.Context, apiKey, model string) (*googleai.GoogleAI, error) {
	if apiKey == "" {
		return nil, errors.New("google API key is missing")
	}
	if model == "" {
		model = DefaultGoogleModel
	}

	return googleai.New(ctx, googleai.WithAPIKey(apiKey), googleai.WithDefaultModel(model))
}
