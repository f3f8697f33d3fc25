package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// complete calls the completion capability and validates the output through
// the provided function. It retries once on failure or invalid output, so a
// single flaky completion never decides anything on its own.
func (r *run) complete(ctx context.Context, system, user string, jsonMode bool, validate func(string) error) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			r.e.logger.Warn("retrying completion", "last_error", lastErr)
		}

		callCtx, cancel := context.WithTimeout(ctx, r.budget.PerCallTimeout)
		msgs := []llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeSystem, system),
			llms.TextParts(llms.ChatMessageTypeHuman, user),
		}
		var opts []llms.CallOption
		if jsonMode {
			opts = append(opts, llms.WithJSONMode())
		}
		resp, err := r.e.llm.GenerateContent(callCtx, msgs, opts...)
		cancel()

		if err != nil {
			lastErr = fmt.Errorf("completion failed: %w", err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = errors.New("completion returned no choices")
			continue
		}
		if err := validate(resp.Choices[0].Content); err != nil {
			lastErr = fmt.Errorf("invalid completion: %w", err)
			continue
		}
		return nil
	}
	return lastErr
}

// stripCodeFence unwraps ```json ... ``` fenced output some models emit even
// in JSON mode.
func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
