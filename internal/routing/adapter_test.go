package routing

import (
	"strings"
	"testing"

	"edgegate/internal/core"
)

func TestConvertMessagesPassThrough(t *testing.T) {
	messages := []core.Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hello"},
	}

	for _, provider := range []core.ProviderIdentity{core.ProviderOpenAI, core.ProviderGemini} {
		payload := ConvertMessages(messages, provider, core.ModelTypeChat)
		if payload.Flat {
			t.Errorf("provider %q: payload should not be flat", provider)
		}
		if len(payload.Messages) != 2 {
			t.Errorf("provider %q: len(Messages) = %d, want 2", provider, len(payload.Messages))
		}
	}

	payload := ConvertMessages(messages, core.ProviderWorkersAI, core.ModelTypeChat)
	if payload.Flat {
		t.Error("chat-capable workers ai model should keep structured messages")
	}
}

func TestConvertMessagesEmptyListStaysStructured(t *testing.T) {
	payload := ConvertMessages(nil, core.ProviderOpenAI, core.ModelTypeChat)
	if payload.Messages == nil {
		t.Error("Messages should be an empty slice, not nil")
	}
	if len(payload.Messages) != 0 {
		t.Errorf("len(Messages) = %d, want 0", len(payload.Messages))
	}
}

func TestConvertMessagesLlamaTemplate(t *testing.T) {
	messages := []core.Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi"},
	}

	payload := ConvertMessages(messages, core.ProviderWorkersAI, core.ModelTypeTemplated)
	if !payload.Flat {
		t.Fatal("templated models should produce a flat prompt")
	}

	wantParts := []string{
		"<<SYS>>\nbe brief\n<</SYS>>",
		"[INST] hello [/INST]",
		"hi",
	}
	for _, part := range wantParts {
		if !strings.Contains(payload.Prompt, part) {
			t.Errorf("prompt missing %q; got:\n%s", part, payload.Prompt)
		}
	}

	// Order must follow the message list.
	sysIdx := strings.Index(payload.Prompt, "<<SYS>>")
	instIdx := strings.Index(payload.Prompt, "[INST]")
	if sysIdx > instIdx {
		t.Error("system block should precede the user turn")
	}
}

func TestConvertMessagesGenericFlatten(t *testing.T) {
	messages := []core.Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hello"},
	}

	payload := ConvertMessages(messages, core.ProviderWorkersAI, core.ModelTypeGeneric)
	if !payload.Flat {
		t.Fatal("generic models should produce a flat prompt")
	}

	want := "system: be brief\nuser: hello"
	if payload.Prompt != want {
		t.Errorf("Prompt = %q, want %q", payload.Prompt, want)
	}
}

func TestConvertMessagesIsPure(t *testing.T) {
	messages := []core.Message{{Role: "user", Content: "hello"}}

	first := ConvertMessages(messages, core.ProviderWorkersAI, core.ModelTypeGeneric)
	second := ConvertMessages(messages, core.ProviderWorkersAI, core.ModelTypeGeneric)
	if first.Prompt != second.Prompt {
		t.Errorf("conversion not deterministic: %q vs %q", first.Prompt, second.Prompt)
	}
	if messages[0].Content != "hello" {
		t.Error("input messages were mutated")
	}
}
