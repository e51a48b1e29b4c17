package routing

import (
	"fmt"
	"strings"

	"edgegate/internal/core"
)

// ConvertMessages reshapes the ordered message list into whatever payload
// shape the resolved provider and model type expect. It is pure and total
// for any well-formed input: it only reshapes, never validates content.
func ConvertMessages(messages []core.Message, provider core.ProviderIdentity, modelType core.ModelType) core.Payload {
	// OpenAI, Gemini and chat-capable Workers AI models all accept
	// structured chat messages natively.
	if provider != core.ProviderWorkersAI || modelType == core.ModelTypeChat {
		if messages == nil {
			messages = []core.Message{}
		}
		return core.Payload{Messages: messages}
	}

	if modelType == core.ModelTypeTemplated {
		return core.Payload{Prompt: flattenLlama(messages), Flat: true}
	}
	return core.Payload{Prompt: flattenGeneric(messages), Flat: true}
}

// flattenLlama renders the conversation in the llama instruction template,
// one turn per message, newline-joined.
func flattenLlama(messages []core.Message) string {
	turns := make([]string, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			turns = append(turns, fmt.Sprintf("<<SYS>>\n%s\n<</SYS>>", msg.Content))
		case "user":
			turns = append(turns, fmt.Sprintf("[INST] %s [/INST]", msg.Content))
		default:
			turns = append(turns, msg.Content)
		}
	}
	return strings.Join(turns, "\n")
}

// flattenGeneric renders "{role}: {content}" lines, newline-joined.
func flattenGeneric(messages []core.Message) string {
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		lines = append(lines, fmt.Sprintf("%s: %s", msg.Role, msg.Content))
	}
	return strings.Join(lines, "\n")
}
