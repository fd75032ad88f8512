// Package llm defines the backend client contract and the structured-output
// schema machinery. Backends themselves are external; this package ships a
// reference adapter for OpenAI-compatible HTTP endpoints.
package llm

import "context"

// Request is a single backend invocation.
type Request struct {
	// Backend names the model endpoint to invoke (router-selected).
	Backend string

	// System is the system prompt; may be empty.
	System string

	// Prompt is the user content.
	Prompt string

	// Schema, when set, constrains the response to a structured output
	// matching the declared JSON schema.
	Schema *Schema

	// MaxTokens caps the response length; 0 means provider default.
	MaxTokens int
}

// Response is a completed unary invocation.
type Response struct {
	// Content is the raw response text. When Request.Schema was set this is
	// the JSON document (validate with a Validator before trusting it).
	Content string

	// TokensUsed is the provider-reported total token count, 0 if unknown.
	TokensUsed int
}

// StreamChunk is one increment of a streaming response.
type StreamChunk struct {
	Content string
	IsFinal bool
	Error   string
}

// Client is the backend invocation contract. Implementations must be safe
// for concurrent use.
type Client interface {
	// Invoke performs a unary call. Errors are classified (see BackendError).
	Invoke(ctx context.Context, req Request) (*Response, error)

	// InvokeStream performs a streaming call. The chunk channel is closed
	// when the stream ends; at most one error is delivered on the error
	// channel, which is closed alongside the chunk channel.
	InvokeStream(ctx context.Context, req Request) (<-chan StreamChunk, <-chan error)
}
