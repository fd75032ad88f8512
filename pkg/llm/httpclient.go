package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/codeready-toolchain/modelmux/pkg/config"
)

// HTTPClient is the reference Client implementation for OpenAI-compatible
// chat-completions endpoints. The backend name maps to the provider model
// field.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

// NewHTTPClient creates a client from the LLM config section.
// The API key is read from the environment variable named by cfg.APIKeyEnv.
func NewHTTPClient(cfg *config.LLMConfig) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  os.Getenv(cfg.APIKeyEnv),
		http: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: slog.Default().With("component", "llm-client"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Stream         bool            `json:"stream,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type       string          `json:"type"`
	JSONSchema *jsonSchemaSpec `json:"json_schema,omitempty"`
}

type jsonSchemaSpec struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
		Delta   chatMessage `json:"delta"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func buildChatRequest(req Request, stream bool) *chatRequest {
	cr := &chatRequest{
		Model:     req.Backend,
		MaxTokens: req.MaxTokens,
		Stream:    stream,
	}
	if req.System != "" {
		cr.Messages = append(cr.Messages, chatMessage{Role: "system", Content: req.System})
	}
	cr.Messages = append(cr.Messages, chatMessage{Role: "user", Content: req.Prompt})
	if req.Schema != nil {
		cr.ResponseFormat = &responseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchemaSpec{
				Name:   req.Schema.Name,
				Schema: req.Schema.Document,
			},
		}
	}
	return cr
}

// Invoke performs a unary chat-completions call.
func (c *HTTPClient) Invoke(ctx context.Context, req Request) (*Response, error) {
	resp, err := c.post(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewBackendError(req.Backend, ErrClassTransient,
			fmt.Errorf("reading response: %w", err))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, NewBackendError(req.Backend, ErrClassTransient,
			fmt.Errorf("decoding response: %w", err))
	}
	if len(parsed.Choices) == 0 {
		return nil, NewBackendError(req.Backend, ErrClassTransient,
			fmt.Errorf("response contained no choices"))
	}

	return &Response{
		Content:    parsed.Choices[0].Message.Content,
		TokensUsed: parsed.Usage.TotalTokens,
	}, nil
}

// InvokeStream performs a streaming call, decoding SSE `data:` lines into
// StreamChunks. Follows the chunk/error channel pair convention.
func (c *HTTPClient) InvokeStream(ctx context.Context, req Request) (<-chan StreamChunk, <-chan error) {
	chunks := make(chan StreamChunk, 100)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		resp, err := c.post(ctx, req, true)
		if err != nil {
			errs <- err
			return
		}
		defer func() { _ = resp.Body.Close() }()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "[DONE]" {
				select {
				case chunks <- StreamChunk{IsFinal: true}:
				case <-ctx.Done():
					errs <- ctx.Err()
				}
				return
			}

			var parsed chatResponse
			if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
				c.logger.Warn("Skipping malformed stream chunk", "error", err)
				continue
			}
			if len(parsed.Choices) == 0 {
				continue
			}

			select {
			case chunks <- StreamChunk{Content: parsed.Choices[0].Delta.Content}:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errs <- NewBackendError(req.Backend, ErrClassTransient,
				fmt.Errorf("stream read: %w", err))
		}
	}()

	return chunks, errs
}

// post sends the request and classifies HTTP-level failures.
func (c *HTTPClient) post(ctx context.Context, req Request, stream bool) (*http.Response, error) {
	body, err := json.Marshal(buildChatRequest(req, stream))
	if err != nil {
		return nil, NewBackendError(req.Backend, ErrClassInput,
			fmt.Errorf("encoding request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, NewBackendError(req.Backend, ErrClassInput, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, NewBackendError(req.Backend, ErrClassTransient, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		class := ErrClassInput
		if resp.StatusCode == http.StatusTooManyRequests ||
			resp.StatusCode == http.StatusRequestTimeout ||
			resp.StatusCode >= 500 {
			class = ErrClassTransient
		}
		return nil, NewBackendError(req.Backend, class,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}
	return resp, nil
}
