// Package workersai provides Cloudflare Workers AI integration for the
// gateway. Workers AI hosts models with heterogeneous input contracts, so
// the request payload is keyed on the resolved model type, and the
// response text is extracted through an ordered chain of candidate fields
// because the response shape varies by model family.
package workersai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"edgegate/internal/core"
	"edgegate/internal/httpclient"
	"edgegate/internal/schema"
)

const (
	defaultBaseURL = "https://api.cloudflare.com/client/v4"
	providerName   = "workers-ai"
)

// Invoker implements the core.Invoker interface for Cloudflare Workers AI.
type Invoker struct {
	httpClient *http.Client
	accountID  string
	apiToken   string
	baseURL    string
}

// New creates a new Workers AI invoker.
func New(accountID, apiToken string) *Invoker {
	return &Invoker{
		accountID:  accountID,
		apiToken:   apiToken,
		baseURL:    defaultBaseURL,
		httpClient: httpclient.NewDefaultHTTPClient(),
	}
}

// NewWithHTTPClient creates a new Workers AI invoker with a custom HTTP
// client. If client is nil, http.DefaultClient is used.
func NewWithHTTPClient(accountID, apiToken string, client *http.Client) *Invoker {
	if client == nil {
		client = http.DefaultClient
	}
	return &Invoker{
		accountID:  accountID,
		apiToken:   apiToken,
		baseURL:    defaultBaseURL,
		httpClient: client,
	}
}

// SetBaseURL allows configuring a custom base URL for the invoker.
func (p *Invoker) SetBaseURL(url string) {
	p.baseURL = url
}

// checkCredentials is the pre-flight configuration check.
func (p *Invoker) checkCredentials() error {
	if p.accountID == "" {
		return core.NewMissingCredentialsError(providerName, "CF_ACCOUNT_ID")
	}
	if p.apiToken == "" {
		return core.NewMissingCredentialsError(providerName, "CF_API_TOKEN")
	}
	return nil
}

// responseFormat is Workers AI's structured-output request field.
type responseFormat struct {
	Type       string         `json:"type"`
	JSONSchema map[string]any `json:"json_schema,omitempty"`
}

// chatPayload is the request body for chat-capable models.
type chatPayload struct {
	Messages       []core.Message  `json:"messages"`
	Stream         bool            `json:"stream,omitempty"`
	MaxTokens      *int            `json:"max_tokens,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
	TopP           *float64        `json:"top_p,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

// promptPayload is the request body for templated and generic models,
// which take a single flattened prompt string.
type promptPayload struct {
	Prompt      string   `json:"prompt"`
	Stream      bool     `json:"stream,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// buildPayload constructs the provider-native request body, keyed on the
// resolved model type.
func buildPayload(req *core.ResolvedRequest, stream bool) any {
	if req.Payload.Flat {
		return promptPayload{
			Prompt:      req.Payload.Prompt,
			Stream:      stream,
			MaxTokens:   req.Request.MaxTokens,
			Temperature: req.Request.Temperature,
		}
	}

	payload := chatPayload{
		Messages:    req.Payload.Messages,
		Stream:      stream,
		MaxTokens:   req.Request.MaxTokens,
		Temperature: req.Request.Temperature,
		TopP:        req.Request.TopP,
	}

	if rf := req.Request.ResponseFormat; rf != nil {
		switch rf.Type {
		case "json_object":
			payload.ResponseFormat = &responseFormat{Type: "json_object"}
		case "json_schema":
			if spec := req.Request.StructuredSpec(); spec != nil {
				payload.ResponseFormat = &responseFormat{
					Type:       "json_schema",
					JSONSchema: schema.EnforceClosedObjects(spec.Schema),
				}
			}
		}
	}

	return payload
}

// textExtractors is the ordered chain of candidate response fields. The
// edge platform's response shape varies by model family and is not
// contractually stable, so each extractor is tried in sequence until one
// yields a non-empty result.
var textExtractors = []func(result gjson.Result) string{
	func(r gjson.Result) string { return r.Get("choices.0.message.content").String() },
	func(r gjson.Result) string { return r.Get("response").String() },
	func(r gjson.Result) string { return r.Get("result").String() },
	func(r gjson.Result) string { return r.Get("text").String() },
	func(r gjson.Result) string {
		if r.Type == gjson.String {
			return r.String()
		}
		return ""
	},
}

// extractText applies the extractor chain with a final
// stringify-whole-object fallback, making the function total.
func extractText(result gjson.Result) string {
	for _, extract := range textExtractors {
		if text := extract(result); text != "" {
			return text
		}
	}
	return result.Raw
}

func (p *Invoker) runURL(model string) string {
	return fmt.Sprintf("%s/accounts/%s/ai/run/%s", p.baseURL, url.PathEscape(p.accountID), model)
}

func (p *Invoker) dispatch(ctx context.Context, req *core.ResolvedRequest, stream bool) (*http.Response, error) {
	body, err := json.Marshal(buildPayload(req, stream))
	if err != nil {
		return nil, core.NewInvalidRequestError("failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.runURL(req.Model), bytes.NewReader(body))
	if err != nil {
		return nil, core.NewInvalidRequestError("failed to create request", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiToken)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, core.NewAPIError(providerName, "failed to reach Workers AI", err.Error(), err)
	}
	return resp, nil
}

// ChatCompletion sends a non-streaming request to Workers AI and extracts
// the completion text from whichever field the backend populated.
func (p *Invoker) ChatCompletion(ctx context.Context, req *core.ResolvedRequest) (*core.ChatResponse, error) {
	if err := p.checkCredentials(); err != nil {
		return nil, err
	}

	resp, err := p.dispatch(ctx, req, false)
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

	parsed := gjson.ParseBytes(respBody)
	if success := parsed.Get("success"); success.Exists() && !success.Bool() {
		details := parsed.Get("errors.0.message").String()
		if details == "" {
			details = string(respBody)
		}
		return nil, core.NewAPIError(providerName, "Workers AI reported failure", details, nil)
	}

	text := extractText(parsed.Get("result"))

	// Workers AI does not report token counts; zero usage is an honest
	// "unknown", not an estimate.
	return core.NewChatResponse(req.Model, text, core.Usage{}), nil
}

// StreamChatCompletion streams from Workers AI, normalizing the backend's
// SSE frames into OpenAI chunk frames and appending the terminal stop and
// [DONE] frames. The returned stream is fed by a pump goroutine that
// closes the writer on every exit path.
func (p *Invoker) StreamChatCompletion(ctx context.Context, req *core.ResolvedRequest) (io.ReadCloser, error) {
	if err := p.checkCredentials(); err != nil {
		return nil, err
	}

	resp, err := p.dispatch(ctx, req, true)
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

// pump reads the upstream SSE stream and writes normalized frames to the
// pipe. It owns the writer end and guarantees both the writer and the
// upstream body are closed on every exit path.
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
		if data == "" || data == "[DONE]" {
			// The terminal frames are synthesized below so the sentinel
			// is always last, after the stop frame.
			continue
		}

		frame := normalizeFrame(id, model, data)
		if frame == "" {
			continue
		}
		if _, err := io.WriteString(pw, frame); err != nil {
			// Reader is gone (client disconnect); stop pumping.
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

// normalizeFrame converts one upstream data payload into an OpenAI chunk
// frame. Frames that are already OpenAI-shaped pass through unmodified.
func normalizeFrame(id, model, data string) string {
	parsed := gjson.Parse(data)
	if parsed.Get("object").String() == "chat.completion.chunk" {
		return "data: " + data + "\n\n"
	}
	if text := parsed.Get("response").String(); text != "" {
		return core.ContentFrame(id, model, text)
	}
	return ""
}

// modelsResult is one entry in the Workers AI model search response.
type modelsResult struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ListModels retrieves the available models from the Workers AI catalog.
func (p *Invoker) ListModels(ctx context.Context) ([]core.Model, error) {
	if err := p.checkCredentials(); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/accounts/%s/ai/models/search", p.baseURL, url.PathEscape(p.accountID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, core.NewInvalidRequestError("failed to create request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiToken)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, core.NewAPIError(providerName, "failed to reach Workers AI", err.Error(), err)
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
		Result []modelsResult `json:"result"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, core.NewAPIError(providerName, "failed to parse model list", err.Error(), err)
	}

	now := time.Now().Unix()
	models := make([]core.Model, 0, len(envelope.Result))
	for _, m := range envelope.Result {
		models = append(models, core.Model{
			ID:      m.Name,
			Object:  "model",
			OwnedBy: "cloudflare",
			Created: now,
		})
	}
	return models, nil
}
