// Package openai provides OpenAI API integration for the gateway. Since
// the gateway speaks the OpenAI surface natively, this invoker is mostly a
// pass-through: it strips gateway-internal fields, forwards everything
// else, and translates structured-output requests for models that lack
// native json_schema support.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"edgegate/internal/core"
	"edgegate/internal/httpclient"
	"edgegate/internal/schema"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	providerName   = "openai"
)

// Invoker implements the core.Invoker interface for OpenAI.
type Invoker struct {
	httpClient       *http.Client
	apiKey           string
	baseURL          string
	structuredModels map[string]bool
}

// New creates a new OpenAI invoker. structuredModels lists the models with
// native json_schema response_format support.
func New(apiKey string, structuredModels []string) *Invoker {
	return NewWithHTTPClient(apiKey, structuredModels, httpclient.NewDefaultHTTPClient())
}

// NewWithHTTPClient creates a new OpenAI invoker with a custom HTTP
// client. If client is nil, http.DefaultClient is used.
func NewWithHTTPClient(apiKey string, structuredModels []string, client *http.Client) *Invoker {
	if client == nil {
		client = http.DefaultClient
	}
	allowed := make(map[string]bool, len(structuredModels))
	for _, m := range structuredModels {
		allowed[strings.ToLower(m)] = true
	}
	return &Invoker{
		apiKey:           apiKey,
		baseURL:          defaultBaseURL,
		structuredModels: allowed,
		httpClient:       client,
	}
}

// SetBaseURL allows configuring a custom base URL for the invoker.
func (p *Invoker) SetBaseURL(url string) {
	p.baseURL = url
}

// SupportsNativeStructuredOutput reports whether the model can take a
// json_schema response_format directly.
func (p *Invoker) SupportsNativeStructuredOutput(model string) bool {
	return p.structuredModels[strings.ToLower(model)]
}

func (p *Invoker) checkCredentials() error {
	if p.apiKey == "" {
		return core.NewMissingCredentialsError(providerName, "OPENAI_API_KEY")
	}
	return nil
}

// buildBody constructs the outbound request body. Gateway-internal fields
// are stripped; unknown caller fields pass through untouched. The second
// return value reports whether the forced-tool structured-output fallback
// was engaged.
func (p *Invoker) buildBody(req *core.ResolvedRequest, stream bool) (map[string]any, bool) {
	r := req.Request

	body := map[string]any{
		"model":    req.Model,
		"messages": req.Payload.Messages,
	}
	if stream {
		body["stream"] = true
	}
	if r.MaxTokens != nil {
		body["max_tokens"] = *r.MaxTokens
	}
	if r.Temperature != nil {
		body["temperature"] = *r.Temperature
	}
	if r.TopP != nil {
		body["top_p"] = *r.TopP
	}
	if r.FrequencyPenalty != nil {
		body["frequency_penalty"] = *r.FrequencyPenalty
	}
	if r.PresencePenalty != nil {
		body["presence_penalty"] = *r.PresencePenalty
	}
	for key, raw := range r.Extra {
		body[key] = raw
	}

	spec := r.StructuredSpec()
	if spec == nil {
		if r.ResponseFormat != nil {
			body["response_format"] = r.ResponseFormat
		}
		return body, false
	}

	closed := schema.EnforceClosedObjects(spec.Schema)

	if p.SupportsNativeStructuredOutput(req.Model) {
		body["response_format"] = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   spec.Name,
				"strict": spec.Strict,
				"schema": closed,
			},
		}
		return body, false
	}

	// Models without native json_schema support get one forced function
	// call whose parameters are the caller's schema. The arguments string
	// is spliced back into message content after the call.
	body["tools"] = []map[string]any{{
		"type": "function",
		"function": map[string]any{
			"name":        spec.Name,
			"description": "Produce the structured output.",
			"strict":      true,
			"parameters":  closed,
		},
	}}
	body["tool_choice"] = map[string]any{
		"type":     "function",
		"function": map[string]any{"name": spec.Name},
	}
	return body, true
}

func (p *Invoker) dispatch(ctx context.Context, body map[string]any) (*http.Response, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, core.NewInvalidRequestError("failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(encoded))
	if err != nil {
		return nil, core.NewInvalidRequestError("failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, core.NewAPIError(providerName, "failed to reach OpenAI", err.Error(), err)
	}
	return resp, nil
}

// upstreamResponse is the subset of the OpenAI response the invoker needs
// to read; the full response is rebuilt from it.
type upstreamResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Created int64  `json:"created"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role      string `json:"role"`
			Content   string `json:"content"`
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage core.Usage `json:"usage"`
}

// ChatCompletion sends a non-streaming request to OpenAI. When the
// forced-tool fallback was used, the tool call's arguments string becomes
// the message content, so callers always find their JSON in the same place.
func (p *Invoker) ChatCompletion(ctx context.Context, req *core.ResolvedRequest) (*core.ChatResponse, error) {
	if err := p.checkCredentials(); err != nil {
		return nil, err
	}

	body, usedFallback := p.buildBody(req, false)

	resp, err := p.dispatch(ctx, body)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close() //nolint:errcheck
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewAPIError(providerName, "failed to read response", err.Error(), err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, core.ParseProviderError(providerName, resp.StatusCode, respBody)
	}

	var upstream upstreamResponse
	if err := json.Unmarshal(respBody, &upstream); err != nil {
		return nil, core.NewAPIError(providerName, "failed to parse response", err.Error(), err)
	}
	if len(upstream.Choices) == 0 {
		return nil, core.NewAPIError(providerName, "response contained no choices", string(respBody), nil)
	}

	out := &core.ChatResponse{
		ID:      upstream.ID,
		Object:  "chat.completion",
		Created: upstream.Created,
		Model:   upstream.Model,
		Usage:   upstream.Usage,
	}
	if out.ID == "" {
		out.ID = core.NewCompletionID()
	}

	for _, choice := range upstream.Choices {
		content := choice.Message.Content
		finish := choice.FinishReason
		if usedFallback {
			if len(choice.Message.ToolCalls) == 0 {
				return nil, core.NewAPIError(providerName,
					"structured output fallback produced no tool call",
					fmt.Sprintf("finish_reason=%s", choice.FinishReason), nil)
			}
			content = choice.Message.ToolCalls[0].Function.Arguments
			finish = "stop"
		}
		out.Choices = append(out.Choices, core.Choice{
			Index:        choice.Index,
			Message:      core.Message{Role: "assistant", Content: content},
			FinishReason: finish,
		})
	}

	return out, nil
}

// StreamChatCompletion streams from OpenAI. The upstream frames are already
// in the gateway's wire format, so the body is returned as-is.
//
// Limitation: when the structured-output tool fallback is engaged, the
// stream carries tool-call argument deltas rather than content deltas;
// they are not rewritten mid-stream.
func (p *Invoker) StreamChatCompletion(ctx context.Context, req *core.ResolvedRequest) (io.ReadCloser, error) {
	if err := p.checkCredentials(); err != nil {
		return nil, err
	}

	body, _ := p.buildBody(req, true)

	resp, err := p.dispatch(ctx, body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		respBody, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			respBody = []byte("failed to read error response")
		}
		_ = resp.Body.Close() //nolint:errcheck
		return nil, core.ParseProviderError(providerName, resp.StatusCode, respBody)
	}

	return resp.Body, nil
}

// ListModels retrieves the available models from OpenAI.
func (p *Invoker) ListModels(ctx context.Context) ([]core.Model, error) {
	if err := p.checkCredentials(); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return nil, core.NewInvalidRequestError("failed to create request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, core.NewAPIError(providerName, "failed to reach OpenAI", err.Error(), err)
	}
	defer func() {
		_ = resp.Body.Close() //nolint:errcheck
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewAPIError(providerName, "failed to read response", err.Error(), err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, core.ParseProviderError(providerName, resp.StatusCode, respBody)
	}

	var envelope core.ModelsResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, core.NewAPIError(providerName, "failed to parse model list", err.Error(), err)
	}
	for i := range envelope.Data {
		if envelope.Data[i].OwnedBy == "" {
			envelope.Data[i].OwnedBy = providerName
		}
	}
	return envelope.Data, nil
}
