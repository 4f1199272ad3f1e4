// Package provider hides the LLM call behind one interface.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/metalagman/rolecall/internal/modelcfg"
	"github.com/metalagman/rolecall/internal/provider/execagent"
	"github.com/metalagman/rolecall/internal/provider/gemini"
	"github.com/metalagman/rolecall/internal/provider/openaiapi"
)

// Request is one task invocation.
type Request struct {
	TaskKey string
	// Instructions describe the agent persona.
	Instructions string
	Prompt       string
	// Context holds the outputs of dependency tasks and recalled memory.
	Context string
	Tools   []string
}

// Input renders the prompt, context and tools as one user message.
func (r Request) Input() string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(r.Prompt))
	if ctx := strings.TrimSpace(r.Context); ctx != "" {
		b.WriteString("\n\nContext:\n")
		b.WriteString(ctx)
	}
	if len(r.Tools) > 0 {
		b.WriteString("\n\nAvailable tools: ")
		b.WriteString(strings.Join(r.Tools, ", "))
	}
	return b.String()
}

// Response is the textual output of a call.
type Response struct {
	Output string
}

// Provider performs a single completion.
type Provider interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Func adapts a function to Provider.
type Func func(ctx context.Context, req Request) (Response, error)

// Complete calls f.
func (f Func) Complete(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// Options tune provider construction.
type Options struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	// WorkDir is where CLI agents get their run directories.
	WorkDir string
}

// New returns the provider for the model's provider tag.
func New(ctx context.Context, cfg modelcfg.ModelConfig, opts Options) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "gemini", "google":
		client, err := gemini.NewClient(ctx, gemini.Config{
			Model:   cfg.ModelName,
			APIKey:  cfg.APIKey.Value(),
			BaseURL: cfg.BaseURL,
			Timeout: opts.Timeout,
		}, opts.HTTPClient)
		if err != nil {
			return nil, fmt.Errorf("create gemini provider: %w", err)
		}
		return Func(func(ctx context.Context, req Request) (Response, error) {
			out, err := client.Complete(ctx, gemini.CompletionRequest{Instructions: req.Instructions, Input: req.Input()})
			return Response{Output: out.OutputText}, err
		}), nil
	case "cli":
		agent, err := execagent.New(execagent.Config{Spec: cfg.ModelName, WorkDir: opts.WorkDir})
		if err != nil {
			return nil, fmt.Errorf("create cli provider: %w", err)
		}
		log.Debug().Strs("command", agent.Command()).Msg("provider: cli agent ready")
		return Func(func(ctx context.Context, req Request) (Response, error) {
			out, err := agent.Complete(ctx, execagent.Request{
				TaskKey:      req.TaskKey,
				Instructions: req.Instructions,
				Prompt:       req.Prompt,
				Context:      req.Context,
				Tools:        req.Tools,
			})
			return Response{Output: out}, err
		}), nil
	default:
		client, err := openaiapi.NewClient(openaiapi.Config{
			Model:   cfg.ModelName,
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey.Value(),
			Timeout: opts.Timeout,
		}, opts.HTTPClient)
		if err != nil {
			return nil, fmt.Errorf("create openai provider: %w", err)
		}
		return Func(func(ctx context.Context, req Request) (Response, error) {
			out, err := client.Complete(ctx, openaiapi.CompletionRequest{Instructions: req.Instructions, Input: req.Input()})
			return Response{Output: out.OutputText}, err
		}), nil
	}
}
