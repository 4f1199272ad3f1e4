package openaiapi

import (
	"fmt"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Config configures an OpenAI-compatible Responses API client.
type Config struct {
	Model   string
	BaseURL string
	// APIKey is sent as is, including the "nokey" placeholder.
	APIKey string
	// Timeout bounds each HTTP request when set. Zero leaves the deadline to ctx.
	Timeout time.Duration
	// MaxRetries is zero by default: a failed task is reported, not retried.
	MaxRetries int
}

func (c Config) normalized() (Config, error) {
	c.Model = strings.TrimSpace(c.Model)
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")

	switch {
	case c.Model == "":
		return Config{}, fmt.Errorf("openai model is required")
	case c.APIKey == "":
		return Config{}, fmt.Errorf("openai api key is required")
	case c.MaxRetries < 0:
		return Config{}, fmt.Errorf("openai max retries must not be negative")
	case c.Timeout < 0:
		return Config{}, fmt.Errorf("openai timeout must not be negative")
	}
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	return c, nil
}

// CompletionRequest is a single Responses API request.
type CompletionRequest struct {
	Instructions string
	Input        string
}

// CompletionResponse is a single Responses API response.
type CompletionResponse struct {
	OutputText   string
	InputTokens  int64
	OutputTokens int64
}
