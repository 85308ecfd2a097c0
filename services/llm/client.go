package llm

import "context"

// Message is a single chat turn sent to the model.
type Message struct {
	Role    string `json:"role"` // "system", "user" or "assistant"
	Content string `json:"content"`
}

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any LLM backend.
//
// Complete runs one chat completion and returns the raw assistant text.
// Implementations must classify provider failures into the typed errors
// in errors.go; callers decide behavior with errors.As, never by
// inspecting message strings.
type LLMClient interface {
	Complete(ctx context.Context, messages []Message, params GenerationParams) (string, error)
}

// Float32 returns a pointer to v. Convenience for GenerationParams.
func Float32(v float32) *float32 { return &v }

// Int returns a pointer to v. Convenience for GenerationParams.
func Int(v int) *int { return &v }
