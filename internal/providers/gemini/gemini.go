// Package gemini provides Google Gemini API integration for the gateway.
// Gemini's request shape differs from the OpenAI surface in role naming
// and message structure, so messages are remapped on the way in and
// responses are rebuilt into OpenAI form on the way out.
package gemini

import (
	"bufio"
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
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	providerName   = "gemini"
)

// Invoker implements the core.Invoker interface for Google Gemini.
type Invoker struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

// New creates a new Gemini invoker.
func New(apiKey string) *Invoker {
	return NewWithHTTPClient(apiKey, httpclient.NewDefaultHTTPClient())
}

// NewWithHTTPClient creates a new Gemini invoker with a custom HTTP
// client. If client is nil, http.DefaultClient is used.
func NewWithHTTPClient(apiKey string, client *http.Client) *Invoker {
	if client == nil {
		client = http.DefaultClient
	}
	return &Invoker{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: client,
	}
}

// SetBaseURL allows configuring a custom base URL for the invoker.
func (p *Invoker) SetBaseURL(url string) {
	p.baseURL = url
}

func (p *Invoker) checkCredentials() error {
	if p.apiKey == "" {
		return core.NewMissingCredentialsError(providerName, "GEMINI_API_KEY")
	}
	return nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type generationConfig struct {
	Temperature      *float64             `json:"temperature,omitempty"`
	TopP             *float64             `json:"topP,omitempty"`
	MaxOutputTokens  *int                 `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string               `json:"responseMimeType,omitempty"`
	ResponseSchema   *schema.GeminiSchema `json:"responseSchema,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent   `json:"contents"`
	SystemInstruction *geminiContent    `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

// convertMessages remaps OpenAI chat messages into Gemini contents.
// System messages become the systemInstruction; "assistant" becomes
// "model"; everything else is sent as "user".
func convertMessages(messages []core.Message) ([]geminiContent, *geminiContent) {
	var system []string
	contents := make([]geminiContent, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			system = append(system, msg.Content)
		case "assistant":
			contents = append(contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: msg.Content}}})
		default:
			contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: msg.Content}}})
		}
	}

	var instruction *geminiContent
	if len(system) > 0 {
		instruction = &geminiContent{Parts: []geminiPart{{Text: strings.Join(system, "\n")}}}
	}
	return contents, instruction
}

func buildRequest(req *core.ResolvedRequest) geminiRequest {
	r := req.Request
	contents, instruction := convertMessages(req.Payload.Messages)

	out := geminiRequest{
		Contents:          contents,
		SystemInstruction: instruction,
	}

	cfg := &generationConfig{
		Temperature:     r.Temperature,
		TopP:            r.TopP,
		MaxOutputTokens: r.MaxTokens,
	}
	if spec := r.StructuredSpec(); spec != nil {
		cfg.ResponseMimeType = "application/json"
		cfg.ResponseSchema = schema.ToGeminiSchema(spec.Schema)
	} else if r.ResponseFormat != nil && r.ResponseFormat.Type == "json_object" {
		cfg.ResponseMimeType = "application/json"
	}
	if cfg.Temperature != nil || cfg.TopP != nil || cfg.MaxOutputTokens != nil || cfg.ResponseMimeType != "" {
		out.GenerationConfig = cfg
	}
	return out
}

func (p *Invoker) dispatch(ctx context.Context, req *core.ResolvedRequest, action string) (*http.Response, error) {
	body, err := json.Marshal(buildRequest(req))
	if err != nil {
		return nil, core.NewInvalidRequestError("failed to marshal request", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:%s", p.baseURL, req.Model, action)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, core.NewInvalidRequestError("failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, core.NewAPIError(providerName, "failed to reach Gemini", err.Error(), err)
	}
	return resp, nil
}

// geminiResponse is the subset of the Gemini response the invoker reads.
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

func (r *geminiResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, part := range r.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String()
}

// ChatCompletion sends a non-streaming request to Gemini and rebuilds the
// response in OpenAI form. Gemini does not report token usage through
// this path, so usage is zero.
func (p *Invoker) ChatCompletion(ctx context.Context, req *core.ResolvedRequest) (*core.ChatResponse, error) {
	if err := p.checkCredentials(); err != nil {
		return nil, err
	}

	resp, err := p.dispatch(ctx, req, "generateContent")
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

	var upstream geminiResponse
	if err := json.Unmarshal(respBody, &upstream); err != nil {
		return nil, core.NewAPIError(providerName, "failed to parse response", err.Error(), err)
	}
	if len(upstream.Candidates) == 0 {
		return nil, core.NewAPIError(providerName, "response contained no candidates", string(respBody), nil)
	}

	return core.NewChatResponse(req.Model, upstream.text(), core.Usage{}), nil
}

// StreamChatCompletion streams from Gemini, converting its SSE chunks into
// OpenAI delta frames and appending the terminal stop and [DONE] frames.
func (p *Invoker) StreamChatCompletion(ctx context.Context, req *core.ResolvedRequest) (io.ReadCloser, error) {
	if err := p.checkCredentials(); err != nil {
		return nil, err
	}

	resp, err := p.dispatch(ctx, req, "streamGenerateContent?alt=sse")
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

	pr, pw := io.Pipe()
	go p.pump(resp.Body, pw, req.Model)
	return pr, nil
}

// pump converts the Gemini SSE stream into the gateway wire format. It
// owns the writer end and closes both it and the upstream body on every
// exit path.
func (p *Invoker) pump(upstream io.ReadCloser, pw *io.PipeWriter, model string) {
	defer func() {
		_ = upstream.Close() //nolint:errcheck
		_ = pw.Close()       //nolint:errcheck
	}()

	id := core.NewCompletionID()
	scanner := bufio.NewScanner(upstream)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}

		var chunk geminiResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		text := chunk.text()
		if text == "" {
			continue
		}
		if _, err := io.WriteString(pw, core.ContentFrame(id, model, text)); err != nil {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		_, _ = io.WriteString(pw, core.ErrorFrame("stream read failed: " + err.Error())) //nolint:errcheck
		return
	}

	_, _ = io.WriteString(pw, core.StopFrame(id, model)) //nolint:errcheck
	_, _ = io.WriteString(pw, core.DoneFrame)            //nolint:errcheck
}

// ListModels retrieves the available models from Gemini. Gemini names
// models "models/{id}"; the prefix is stripped to match the gateway's
// model ids.
func (p *Invoker) ListModels(ctx context.Context) ([]core.Model, error) {
	if err := p.checkCredentials(); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return nil, core.NewInvalidRequestError("failed to create request", err)
	}
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, core.NewAPIError(providerName, "failed to reach Gemini", err.Error(), err)
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

	var envelope struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, core.NewAPIError(providerName, "failed to parse model list", err.Error(), err)
	}

	models := make([]core.Model, 0, len(envelope.Models))
	for _, m := range envelope.Models {
		models = append(models, core.Model{
			ID:      strings.TrimPrefix(m.Name, "models/"),
			Object:  "model",
			OwnedBy: "google",
		})
	}
	return models, nil
}
