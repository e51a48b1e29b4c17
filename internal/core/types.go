package core

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ChatRequest represents the incoming chat completion request.
// Unknown top-level fields are preserved in Extra so provider-specific
// options can pass through to backends that understand them.
type ChatRequest struct {
	Model            string          `json:"model"`
	Messages         []Message       `json:"messages"`
	Stream           bool            `json:"stream,omitempty"`
	MaxTokens        *int            `json:"max_tokens,omitempty"`
	Temperature      *float64        `json:"temperature,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64        `json:"presence_penalty,omitempty"`
	ResponseFormat   *ResponseFormat `json:"response_format,omitempty"`
	MemoryKeyword    string          `json:"memory_keyword,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// knownChatRequestFields lists the JSON keys bound to struct fields above.
// Anything else lands in Extra.
var knownChatRequestFields = map[string]bool{
	"model": true, "messages": true, "stream": true, "max_tokens": true,
	"temperature": true, "top_p": true, "frequency_penalty": true,
	"presence_penalty": true, "response_format": true, "memory_keyword": true,
}

// UnmarshalJSON decodes the known fields and collects every unknown
// top-level key into Extra.
func (r *ChatRequest) UnmarshalJSON(data []byte) error {
	type alias ChatRequest
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key := range raw {
		if knownChatRequestFields[key] {
			delete(raw, key)
		}
	}
	if len(raw) > 0 {
		a.Extra = raw
	}

	*r = ChatRequest(a)
	return nil
}

// Message represents a single message in the chat.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat mirrors OpenAI's response_format request field.
// Type is one of "text", "json_object" or "json_schema".
type ResponseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *SchemaSpec `json:"json_schema,omitempty"`
}

// SchemaSpec carries a caller-supplied JSON Schema for structured output.
type SchemaSpec struct {
	Name   string         `json:"name,omitempty"`
	Strict *bool          `json:"strict,omitempty"`
	Schema map[string]any `json:"schema,omitempty"`
}

// StructuredOutputSpec is the normalized structured-output request derived
// from ResponseFormat. Provider invokers encode it into their native form.
type StructuredOutputSpec struct {
	Schema map[string]any
	Strict bool
	Name   string
}

// StructuredSpec returns the structured-output spec for the request, or nil
// when the request does not ask for schema-constrained output.
func (r *ChatRequest) StructuredSpec() *StructuredOutputSpec {
	if r.ResponseFormat == nil || r.ResponseFormat.Type != "json_schema" || r.ResponseFormat.JSONSchema == nil {
		return nil
	}
	js := r.ResponseFormat.JSONSchema
	spec := &StructuredOutputSpec{
		Schema: js.Schema,
		Name:   js.Name,
		Strict: true,
	}
	if spec.Name == "" {
		spec.Name = "structured_output"
	}
	if js.Strict != nil {
		spec.Strict = *js.Strict
	}
	return spec
}

// Payload is the provider-shaped message payload produced by the message
// format adapter. Either Messages carries the structured chat shape, or
// Prompt carries the flattened conversation (Flat reports which).
type Payload struct {
	Messages []Message
	Prompt   string
	Flat     bool
}

// ChatResponse represents the chat completion response.
type ChatResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice represents a single completion choice.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage represents token usage information. All fields are zero for
// backends that do not report token counts.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Text returns the assistant text of the first choice, or "".
func (r *ChatResponse) Text() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// NewCompletionID generates an OpenAI-style completion id.
func NewCompletionID() string {
	return "chatcmpl-" + uuid.NewString()
}

// NewChatResponse builds a single-choice OpenAI-shaped response.
func NewChatResponse(model, content string, usage Usage) *ChatResponse {
	return &ChatResponse{
		ID:      NewCompletionID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []Choice{
			{
				Index:        0,
				Message:      Message{Role: "assistant", Content: content},
				FinishReason: "stop",
			},
		},
		Usage: usage,
	}
}

// Model represents a single model in the models list.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
	Created int64  `json:"created"`
}

// ModelsResponse represents the response from the /v1/models endpoint.
type ModelsResponse struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}
