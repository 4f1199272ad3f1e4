package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientComplete(t *testing.T) {
	t.Parallel()

	var gotPath, gotKey string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"a summary"}]}}]}`))
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(context.Background(), Config{
		Model:   "gemini-2.0-flash",
		APIKey:  "test-key",
		BaseURL: srv.URL,
	}, srv.Client())
	require.NoError(t, err)

	out, err := client.Complete(context.Background(), CompletionRequest{
		Instructions: "You are Writer.",
		Input:        "summarize",
	})
	require.NoError(t, err)
	assert.Equal(t, "a summary", out.OutputText)
	assert.True(t, strings.HasSuffix(gotPath, "models/gemini-2.0-flash:generateContent"), gotPath)
	assert.Equal(t, "test-key", gotKey)
	assert.Contains(t, gotBody, "systemInstruction")
}

func TestClientComplete_ErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`))
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(context.Background(), Config{Model: "gemini-2.0-flash", APIKey: "nokey", BaseURL: srv.URL}, srv.Client())
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), CompletionRequest{Input: "hi"})
	require.Error(t, err)
}

func TestNewClient_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewClient(context.Background(), Config{APIKey: "k"}, nil)
	require.Error(t, err)
	_, err = NewClient(context.Background(), Config{Model: "gemini-2.0-flash"}, nil)
	require.Error(t, err)
}
