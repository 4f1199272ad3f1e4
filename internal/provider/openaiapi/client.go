// Package openaiapi calls OpenAI-compatible endpoints through the Responses API.
package openaiapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/rs/zerolog/log"
)

// Client sends one Responses API request per task.
type Client struct {
	cfg    Config
	client openai.Client
}

// NewClient validates cfg and builds a client. A nil httpClient uses the SDK default.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	cfg, err := cfg.normalized()
	if err != nil {
		return nil, err
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	client := &Client{client: openai.NewClient(opts...), cfg: cfg}
	client.cfg.APIKey = ""
	return client, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

// Complete sends req and returns the trimmed output text. An empty output is an error.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	params := responses.ResponseNewParams{
		Model: c.cfg.Model,
		Input: responses.ResponseNewParamsInputUnion{OfString: openai.String(req.Input)},
	}
	if instructions := strings.TrimSpace(req.Instructions); instructions != "" {
		params.Instructions = openai.String(instructions)
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("openai responses.create: %w", err)
	}
	if msg := strings.TrimSpace(resp.Error.Message); msg != "" {
		return CompletionResponse{}, fmt.Errorf("openai response failed: %s", msg)
	}

	out := CompletionResponse{
		OutputText:   strings.TrimSpace(resp.OutputText()),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}
	if out.OutputText == "" {
		return CompletionResponse{}, fmt.Errorf("openai response did not contain output text")
	}
	log.Debug().
		Str("model", c.cfg.Model).
		Int64("input_tokens", out.InputTokens).
		Int64("output_tokens", out.OutputTokens).
		Msg("openaiapi: completed")
	return out, nil
}
