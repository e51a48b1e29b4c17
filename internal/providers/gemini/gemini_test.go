package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"edgegate/internal/core"
)

func resolvedRequest(model string, messages []core.Message) *core.ResolvedRequest {
	return &core.ResolvedRequest{
		Request: &core.ChatRequest{Model: model, Messages: messages},
		Model:   model,
		Type:    core.ModelTypeChat,
		Payload: core.Payload{Messages: messages},
	}
}

func TestConvertMessages(t *testing.T) {
	messages := []core.Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi"},
		{Role: "user", Content: "and again"},
	}

	contents, instruction := convertMessages(messages)

	if len(contents) != 3 {
		t.Fatalf("len(contents) = %d, want 3 (system messages are lifted out)", len(contents))
	}
	if contents[0].Role != "user" || contents[1].Role != "model" || contents[2].Role != "user" {
		t.Errorf("roles = %q/%q/%q, want user/model/user", contents[0].Role, contents[1].Role, contents[2].Role)
	}
	if contents[1].Parts[0].Text != "hi" {
		t.Errorf("model turn text = %q", contents[1].Parts[0].Text)
	}

	if instruction == nil {
		t.Fatal("system message should become the systemInstruction")
	}
	if instruction.Parts[0].Text != "be brief" {
		t.Errorf("instruction = %q", instruction.Parts[0].Text)
	}
}

func TestConvertMessagesNoSystem(t *testing.T) {
	_, instruction := convertMessages([]core.Message{{Role: "user", Content: "hi"}})
	if instruction != nil {
		t.Error("instruction should be nil without system messages")
	}
}

func TestBuildRequestGenerationConfig(t *testing.T) {
	temp := 0.4
	maxTokens := 128
	req := resolvedRequest("gemini-2.0-flash", []core.Message{{Role: "user", Content: "hi"}})
	req.Request.Temperature = &temp
	req.Request.MaxTokens = &maxTokens
	req.Request.ResponseFormat = &core.ResponseFormat{
		Type: "json_schema",
		JSONSchema: &core.SchemaSpec{
			Schema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"name": map[string]any{"type": "string"}},
			},
		},
	}

	out := buildRequest(req)

	cfg := out.GenerationConfig
	if cfg == nil {
		t.Fatal("generationConfig missing")
	}
	if cfg.ResponseMimeType != "application/json" {
		t.Errorf("responseMimeType = %q", cfg.ResponseMimeType)
	}
	if cfg.ResponseSchema == nil || cfg.ResponseSchema.Type != "OBJECT" {
		t.Error("responseSchema should be the translated OBJECT schema")
	}
	if cfg.Temperature == nil || *cfg.Temperature != temp {
		t.Error("temperature should carry through")
	}
	if cfg.MaxOutputTokens == nil || *cfg.MaxOutputTokens != maxTokens {
		t.Error("maxOutputTokens should carry through")
	}
}

func TestBuildRequestNoConfigWhenUnset(t *testing.T) {
	out := buildRequest(resolvedRequest("gemini-2.0-flash", []core.Message{{Role: "user", Content: "hi"}}))
	if out.GenerationConfig != nil {
		t.Errorf("generationConfig = %+v, want nil", out.GenerationConfig)
	}
}

func TestChatCompletion(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("x-goog-api-key = %q", got)
		}
		if !strings.Contains(r.URL.Path, "/models/gemini-2.0-flash:generateContent") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}

		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Contents) != 1 || req.Contents[0].Role != "user" {
			t.Errorf("contents = %+v", req.Contents)
		}

		_, _ = w.Write([]byte(`{
			"candidates": [{
				"content": {"parts": [{"text": "Hello "}, {"text": "from Gemini"}], "role": "model"},
				"finishReason": "STOP"
			}]
		}`))
	}))
	defer upstream.Close()

	p := NewWithHTTPClient("test-key", upstream.Client())
	p.SetBaseURL(upstream.URL)

	resp, err := p.ChatCompletion(context.Background(),
		resolvedRequest("gemini-2.0-flash", []core.Message{{Role: "user", Content: "hi"}}))
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}

	if resp.Text() != "Hello from Gemini" {
		t.Errorf("Text() = %q: multi-part candidates should concatenate", resp.Text())
	}
	if resp.Object != "chat.completion" {
		t.Errorf("Object = %q", resp.Object)
	}
	if resp.Usage.TotalTokens != 0 {
		t.Error("usage should be zero: this path reports no token counts")
	}
}

func TestChatCompletionNoCandidates(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates": []}`))
	}))
	defer upstream.Close()

	p := NewWithHTTPClient("test-key", upstream.Client())
	p.SetBaseURL(upstream.URL)

	_, err := p.ChatCompletion(context.Background(),
		resolvedRequest("gemini-2.0-flash", []core.Message{{Role: "user", Content: "hi"}}))
	if err == nil {
		t.Fatal("expected error for empty candidates")
	}
}

func TestStreamChatCompletion(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "alt=sse") {
			t.Errorf("query = %q, want alt=sse", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, text := range []string{"The ", "answer"} {
			_, _ = io.WriteString(w, `data: {"candidates":[{"content":{"parts":[{"text":"`+text+`"}]}}]}`+"\n\n")
		}
	}))
	defer upstream.Close()

	p := NewWithHTTPClient("test-key", upstream.Client())
	p.SetBaseURL(upstream.URL)

	stream, err := p.StreamChatCompletion(context.Background(),
		resolvedRequest("gemini-2.0-flash", []core.Message{{Role: "user", Content: "hi"}}))
	if err != nil {
		t.Fatalf("StreamChatCompletion: %v", err)
	}
	defer func() {
		_ = stream.Close() //nolint:errcheck
	}()

	raw, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	out := string(raw)

	if !strings.Contains(out, `"content":"The "`) || !strings.Contains(out, `"content":"answer"`) {
		t.Errorf("stream missing converted deltas:\n%s", out)
	}
	if !strings.Contains(out, `"chat.completion.chunk"`) {
		t.Error("frames should be OpenAI chunk objects")
	}
	if !strings.Contains(out, `"finish_reason":"stop"`) {
		t.Error("stream should end with a stop frame")
	}
	if !strings.HasSuffix(out, "data: [DONE]\n\n") {
		t.Errorf("stream should end with the [DONE] sentinel, got tail %q", out[max(0, len(out)-40):])
	}
}

func TestListModels(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models": [{"name": "models/gemini-2.0-flash"}, {"name": "models/gemini-1.5-pro"}]}`))
	}))
	defer upstream.Close()

	p := NewWithHTTPClient("test-key", upstream.Client())
	p.SetBaseURL(upstream.URL)

	models, err := p.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("len(models) = %d, want 2", len(models))
	}
	if models[0].ID != "gemini-2.0-flash" {
		t.Errorf("ID = %q: models/ prefix should be stripped", models[0].ID)
	}
	if models[0].OwnedBy != "google" {
		t.Errorf("OwnedBy = %q", models[0].OwnedBy)
	}
}

func TestMissingAPIKey(t *testing.T) {
	p := NewWithHTTPClient("", nil)
	_, err := p.ChatCompletion(context.Background(),
		resolvedRequest("gemini-2.0-flash", []core.Message{{Role: "user", Content: "hi"}}))
	if err == nil || !strings.Contains(err.Error(), "GEMINI_API_KEY") {
		t.Errorf("error should name the missing credential: %v", err)
	}
}
