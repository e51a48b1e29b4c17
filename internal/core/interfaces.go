package core

import (
	"context"
	"io"
)

// ProviderIdentity names one of the three backends the gateway fronts.
// It is resolved exactly once per request from the model string.
type ProviderIdentity string

const (
	ProviderWorkersAI ProviderIdentity = "workers-ai"
	ProviderOpenAI    ProviderIdentity = "openai"
	ProviderGemini    ProviderIdentity = "gemini"
)

// ModelType classifies what input shape a Workers AI model expects.
// It is only meaningful for the Workers AI provider, which hosts models
// with heterogeneous input contracts.
type ModelType string

const (
	// ModelTypeChat accepts a structured chat message array.
	ModelTypeChat ModelType = "chat"
	// ModelTypeTemplated expects a single prompt string in the model
	// family's instruction template.
	ModelTypeTemplated ModelType = "templated"
	// ModelTypeGeneric expects a plain flattened prompt string.
	ModelTypeGeneric ModelType = "generic"
)

// ResolvedRequest is the per-request state the completion router hands to
// an invoker: the original request, the concrete provider model id, the
// model type and the provider-shaped message payload. All fields are local
// to one request's execution.
type ResolvedRequest struct {
	Request *ChatRequest
	Model   string
	Type    ModelType
	Payload Payload
}

// Invoker owns the full request/response lifecycle against one backend:
// request construction, non-streaming extraction and streaming
// normalization into OpenAI-shaped SSE.
type Invoker interface {
	// ChatCompletion executes a non-streaming chat completion request.
	ChatCompletion(ctx context.Context, req *ResolvedRequest) (*ChatResponse, error)

	// StreamChatCompletion returns an OpenAI-shaped SSE stream terminated
	// by a [DONE] sentinel (caller must close).
	StreamChatCompletion(ctx context.Context, req *ResolvedRequest) (io.ReadCloser, error)

	// ListModels returns the models available from this backend.
	ListModels(ctx context.Context) ([]Model, error)
}
