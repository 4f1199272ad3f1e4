// Package gemini calls Gemini models through the genai SDK.
package gemini

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

// Config configures a Gemini API client.
type Config struct {
	Model   string
	APIKey  string
	BaseURL string
	// Timeout bounds each HTTP request when set. Zero leaves the deadline to ctx.
	Timeout time.Duration
}

// CompletionRequest is a single generateContent request.
type CompletionRequest struct {
	Instructions string
	Input        string
}

// CompletionResponse is the text of the first candidate.
type CompletionResponse struct {
	OutputText string
}

// Client wraps genai for single-shot task calls.
type Client struct {
	model  string
	client *genai.Client
}

// NewClient validates the config and builds a client.
func NewClient(ctx context.Context, cfg Config, httpClient *http.Client) (*Client, error) {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("gemini model is required")
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	httpOpts := genai.HTTPOptions{BaseURL: strings.TrimSpace(cfg.BaseURL)}
	if cfg.Timeout > 0 {
		timeout := cfg.Timeout
		httpOpts.Timeout = &timeout
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  httpClient,
		HTTPOptions: httpOpts,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Client{model: model, client: client}, nil
}

// Complete sends one request and returns the output text.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	var config *genai.GenerateContentConfig
	if strings.TrimSpace(req.Instructions) != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(req.Instructions, genai.RoleUser),
		}
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(req.Input), config)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("gemini generateContent: %w", err)
	}

	output := strings.TrimSpace(resp.Text())
	if output == "" {
		return CompletionResponse{}, fmt.Errorf("gemini response did not contain output text")
	}
	return CompletionResponse{OutputText: output}, nil
}
