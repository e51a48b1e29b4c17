package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// DoneFrame is the literal SSE sentinel that terminates every stream.
// A stream that ends without it must be treated as failed by callers.
const DoneFrame = "data: [DONE]\n\n"

// streamChunk is the OpenAI chat.completion.chunk wire shape.
type streamChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []chunkChoice `json:"choices"`
}

type chunkChoice struct {
	Index        int        `json:"index"`
	Delta        chunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

type chunkDelta struct {
	Content string `json:"content,omitempty"`
}

// ContentFrame builds one SSE frame carrying a content delta.
func ContentFrame(id, model, content string) string {
	return encodeFrame(streamChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []chunkChoice{{Index: 0, Delta: chunkDelta{Content: content}}},
	})
}

// StopFrame builds the terminal frame with an empty delta and
// finish_reason "stop". It is always followed by DoneFrame.
func StopFrame(id, model string) string {
	stop := "stop"
	return encodeFrame(streamChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []chunkChoice{{Index: 0, FinishReason: &stop}},
	})
}

// ErrorFrame builds the single in-band error frame emitted when a stream
// fails after headers are committed. The stream is closed right after.
func ErrorFrame(message string) string {
	body := map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    string(ErrorTypeServer),
		},
	}
	data, _ := json.Marshal(body)
	return fmt.Sprintf("data: %s\n\n", data)
}

func encodeFrame(chunk streamChunk) string {
	data, _ := json.Marshal(chunk)
	return fmt.Sprintf("data: %s\n\n", data)
}
