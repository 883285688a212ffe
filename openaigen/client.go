// Package openaigen adapts any OpenAI-compatible chat-completions endpoint
// to the streamhost Generator interface.
package openaigen

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/skosovsky/streamhost"
)

// Client wraps an openai-go client for single-prompt generation.
// Implements streamhost.Generator.
type Client struct {
	client openai.Client
	model  string
}

var _ streamhost.Generator = (*Client)(nil)

// NewClient creates a generator for model. baseURL and apiKey are optional:
// an empty baseURL targets api.openai.com, an empty apiKey relies on the
// environment.
func NewClient(baseURL, apiKey, model string) *Client {
	var opts []option.RequestOption
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &Client{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// Generate sends the prompt as a single user message and returns the first
// choice.
func (c *Client) Generate(ctx context.Context, req streamhost.GenerateRequest) (*streamhost.GenerateResponse, error) {
	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
	}
	if req.Temperature > 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	if len(req.StopSequences) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{
			OfStringArray: req.StopSequences,
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: response has no choices")
	}

	choice := resp.Choices[0]
	out := &streamhost.GenerateResponse{
		Text:         choice.Message.Content,
		FinishReason: string(choice.FinishReason),
	}
	if resp.Usage.TotalTokens > 0 {
		out.Usage = &streamhost.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		}
	}
	return out, nil
}
