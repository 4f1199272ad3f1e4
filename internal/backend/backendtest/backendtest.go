// Package backendtest provides graphs and scripted providers for adapter tests.
package backendtest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/metalagman/rolecall/internal/backend"
	"github.com/metalagman/rolecall/internal/config"
	"github.com/metalagman/rolecall/internal/graph"
	"github.com/metalagman/rolecall/internal/modelcfg"
	"github.com/metalagman/rolecall/internal/provider"
)

// Graph parses doc and builds its graph with sentinel credentials.
func Graph(t testing.TB, doc string) *graph.Graph {
	t.Helper()

	cfg, err := config.Parse([]byte(doc))
	require.NoError(t, err)

	resolver := modelcfg.NewResolverWithEnv(func(string) (string, bool) { return "", false })
	models := make(map[string]modelcfg.ModelConfig, len(cfg.Roles))
	for _, r := range cfg.Roles {
		models[r.Key] = resolver.Resolve(r.LLM, "")
	}

	g, err := graph.Build(cfg, models)
	require.NoError(t, err)
	return g
}

// Call is one recorded provider invocation.
type Call struct {
	Agent   string
	Request provider.Request
}

// Handler answers one call.
type Handler func(ctx context.Context, agent string, req provider.Request) (string, error)

// Script is a provider factory answering per task key. Tasks without a
// handler return "<task> done".
type Script struct {
	mu       sync.Mutex
	handlers map[string]Handler
	calls    []Call
}

// NewScript returns an empty script.
func NewScript() *Script {
	return &Script{handlers: map[string]Handler{}}
}

// On sets the handler of a task.
func (s *Script) On(task string, h Handler) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[task] = h
	return s
}

// Fail makes a task fail for every agent.
func (s *Script) Fail(task string, err error) *Script {
	return s.On(task, func(context.Context, string, provider.Request) (string, error) {
		return "", err
	})
}

// Calls returns the invocations so far, in call order.
func (s *Script) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CalledTasks returns task keys in call order.
func (s *Script) CalledTasks() []string {
	var out []string
	for _, c := range s.Calls() {
		out = append(out, c.Request.TaskKey)
	}
	return out
}

// Factory returns the provider factory for RunOptions.
func (s *Script) Factory() backend.ProviderFactory {
	return func(_ context.Context, agent *graph.Agent) (provider.Provider, error) {
		key := agent.Key
		return provider.Func(func(ctx context.Context, req provider.Request) (provider.Response, error) {
			s.mu.Lock()
			s.calls = append(s.calls, Call{Agent: key, Request: req})
			h := s.handlers[req.TaskKey]
			s.mu.Unlock()

			if h == nil {
				return provider.Response{Output: fmt.Sprintf("%s done", req.TaskKey)}, nil
			}
			out, err := h(ctx, key, req)
			return provider.Response{Output: out}, err
		}), nil
	}
}
