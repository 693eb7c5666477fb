package ai

import (
	"context"
	"encoding/json"
)

// Provider is one upstream LLM.
type Provider interface {
	// Generate sends the request and returns the model output. When req.Schema
	// is set the Content is JSON validated against it, otherwise plain text.
	Generate(ctx context.Context, req Request) (*Response, error)
	// Name identifies the provider and model, e.g. "openai/gpt-4o-mini".
	Name() string
}

type Request struct {
	System      string
	Messages    []Message
	Schema      *Schema
	MaxTokens   int
	Temperature float64
}

type Message struct {
	Role    Role
	Content string
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Schema is a named JSON Schema for structured output.
type Schema struct {
	Name        string
	Description string
	Definition  map[string]any
}

type Response struct {
	Content    json.RawMessage
	Usage      Usage
	Model      string
	StopReason string // "end" or "max_tokens"
}

// Text returns the content as a string.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return string(r.Content)
}

type Usage struct {
	InputTokens  int
	OutputTokens int
}

func userPrompt(system, prompt string, maxTokens int) Request {
	return Request{
		System:    system,
		Messages:  []Message{{Role: RoleUser, Content: prompt}},
		MaxTokens: maxTokens,
	}
}

// resolveModel maps a short alias to a provider model id; unknown names pass through.
func resolveModel(name string, aliases map[string]string, fallback string) string {
	if name == "" {
		return fallback
	}
	if id, ok := aliases[name]; ok {
		return id
	}
	return name
}
