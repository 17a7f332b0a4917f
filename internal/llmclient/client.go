// Package llmclient wraps the Anthropic SDK behind the narrow
// contracts the Dialogue Controller (C7) and Coding Round Evaluator
// (C11) need: question generation, answer classification, follow-up
// judgment, and code review. Grounded in
// intelligencedev-manifold's internal/llm/anthropic/client.go
// (SDK construction, System/Messages/MaxTokens param shape, content
// block extraction).
package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/interviewrt/core/internal/observability"
)

const defaultMaxTokens int64 = 1024

// Client is a thin JSON-structured-output wrapper over the Anthropic
// Messages API: every call sends a system prompt instructing the model
// to reply with exactly one JSON object, then unmarshals the first
// text block into the caller's target type.
type Client struct {
	sdk   anthropic.Client
	model string
}

func New(apiKey, model string) *Client {
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	return &Client{
		sdk:   anthropic.NewClient(option.WithAPIKey(strings.TrimSpace(apiKey))),
		model: model,
	}
}

// Complete sends systemPrompt + userPrompt and unmarshals the model's
// reply into out. Callers are expected to wrap ctx with their own
// deadline (20s for dialogue calls).
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string, out any) error {
	ctx, span := observability.StartSpan(ctx, "llmclient.Complete")
	defer span.End()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: defaultMaxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt))},
	}

	resp, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return fmt.Errorf("llmclient: complete: %w", err)
	}

	text := extractText(resp)
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("llmclient: empty response")
	}
	if err := json.Unmarshal([]byte(extractJSON(text)), out); err != nil {
		return fmt.Errorf("llmclient: unmarshal response: %w", err)
	}
	return nil
}

func extractText(resp *anthropic.Message) string {
	if resp == nil {
		return ""
	}
	var sb strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	return sb.String()
}

// extractJSON trims any prose a model might wrap around the JSON
// object despite instructions, by slicing to the outermost braces.
func extractJSON(text string) string {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return text
	}
	return text[start : end+1]
}
