package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalagman/rolecall/internal/modelcfg"
)

func TestRequest_Input(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  Request
		want string
	}{
		{name: "prompt only", req: Request{Prompt: " search "}, want: "search"},
		{
			name: "with context and tools",
			req:  Request{Prompt: "summarize", Context: "### research\nfacts", Tools: []string{"a", "b"}},
			want: "summarize\n\nContext:\n### research\nfacts\n\nAvailable tools: a, b",
		},
		{name: "blank context", req: Request{Prompt: "x", Context: "  "}, want: "x"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, tc.req.Input())
		})
	}
}

func TestNew_DispatchesOnProvider(t *testing.T) {
	t.Parallel()

	resolver := modelcfg.NewResolverWithEnv(func(string) (string, bool) { return "", false })

	_, err := New(context.Background(), resolver.Resolve("cli/unknown", ""), Options{})
	require.Error(t, err)

	_, err = New(context.Background(), resolver.Resolve("gemini/gemini-2.0-flash", "k"), Options{})
	require.NoError(t, err)

	_, err = New(context.Background(), resolver.Resolve("groq/llama3.1-8b-instant", ""), Options{})
	require.NoError(t, err)
}

func TestNew_OpenAICompatibleSendsSentinel(t *testing.T) {
	t.Parallel()

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"output":[{"type":"message","role":"assistant","content":[{"type":"output_text","text":"done","annotations":[]}]}]}`))
	}))
	t.Cleanup(srv.Close)

	resolver := modelcfg.NewResolverWithEnv(func(string) (string, bool) { return "", false })
	cfg := resolver.Resolve("openai/gpt-4o-mini", "", modelcfg.WithBaseURL(srv.URL))
	require.True(t, cfg.APIKey.IsSentinel())

	p, err := New(context.Background(), cfg, Options{HTTPClient: srv.Client()})
	require.NoError(t, err)

	resp, err := p.Complete(context.Background(), Request{Prompt: "go"})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Output)
	assert.Equal(t, "Bearer "+modelcfg.SentinelKey, gotAuth)
}

func TestFunc(t *testing.T) {
	t.Parallel()

	p := Func(func(_ context.Context, req Request) (Response, error) {
		return Response{Output: req.TaskKey}, nil
	})
	resp, err := p.Complete(context.Background(), Request{TaskKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "k", resp.Output)
}
