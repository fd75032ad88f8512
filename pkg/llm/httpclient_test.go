package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/modelmux/pkg/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	t.Setenv("TEST_LLM_KEY", "sk-test")
	return NewHTTPClient(&config.LLMConfig{
		BaseURL:        server.URL,
		APIKeyEnv:      "TEST_LLM_KEY",
		RequestTimeout: 5 * time.Second,
	})
}

func TestInvoke(t *testing.T) {
	var captured chatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Write([]byte(`{
			"choices": [{"message": {"role": "assistant", "content": "answer text"}}],
			"usage": {"total_tokens": 17}
		}`))
	})

	schema, err := NewSchema("verdict", map[string]any{"type": "object"})
	require.NoError(t, err)

	resp, err := client.Invoke(context.Background(), Request{
		Backend:   "gpt-mini",
		System:    "be terse",
		Prompt:    "what is up",
		Schema:    schema,
		MaxTokens: 128,
	})

	require.NoError(t, err)
	assert.Equal(t, "answer text", resp.Content)
	assert.Equal(t, 17, resp.TokensUsed)

	assert.Equal(t, "gpt-mini", captured.Model)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "user", captured.Messages[1].Role)
	assert.Equal(t, 128, captured.MaxTokens)
	require.NotNil(t, captured.ResponseFormat)
	assert.Equal(t, "json_schema", captured.ResponseFormat.Type)
	assert.Equal(t, "verdict", captured.ResponseFormat.JSONSchema.Name)
}

func TestInvokeClassifiesStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   ErrorClass
	}{
		{"rate limited", http.StatusTooManyRequests, ErrClassTransient},
		{"server error", http.StatusInternalServerError, ErrClassTransient},
		{"gateway timeout", http.StatusGatewayTimeout, ErrClassTransient},
		{"bad request", http.StatusBadRequest, ErrClassInput},
		{"unauthorized", http.StatusUnauthorized, ErrClassInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			})

			_, err := client.Invoke(context.Background(), Request{Backend: "m", Prompt: "p"})
			require.Error(t, err)
			assert.Equal(t, tt.want, ClassOf(err))
		})
	}
}

func TestInvokeEmptyChoices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	})

	_, err := client.Invoke(context.Background(), Request{Backend: "m", Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, ErrClassTransient, ClassOf(err))
}

func TestInvokeStream(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(`data: {"choices":[{"delta":{"content":"Hel"}}]}` + "\n\n"))
		w.Write([]byte(`data: {"choices":[{"delta":{"content":"lo"}}]}` + "\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	})

	chunks, errs := client.InvokeStream(context.Background(), Request{Backend: "m", Prompt: "p"})

	var content string
	var sawFinal bool
	for chunk := range chunks {
		content += chunk.Content
		if chunk.IsFinal {
			sawFinal = true
		}
	}
	assert.NoError(t, <-errs)
	assert.Equal(t, "Hello", content)
	assert.True(t, sawFinal)
}

func TestInvokeStreamTransportError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	chunks, errs := client.InvokeStream(context.Background(), Request{Backend: "m", Prompt: "p"})

	for range chunks {
	}
	err := <-errs
	require.Error(t, err)
	assert.Equal(t, ErrClassTransient, ClassOf(err))
}
