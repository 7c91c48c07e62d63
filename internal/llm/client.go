package llm

import (
	"context"
	"encoding/json"
)

// Message roles used across the advice pipeline.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall // assistant turns only
	ToolCallID string     // tool turns only
	Name       string     // tool turns only
}

// ToolCall is a model request to invoke a named tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON
}

// ToolDef describes a tool the model may call. Parameters is a JSON Schema
// object.
type ToolDef struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// Request is a chat completion request.
type Request struct {
	Model       string
	Messages    []Message
	Tools       []ToolDef
	Temperature float32
	JSONOnly    bool // ask for a JSON object response
}

// Completion is the model's reply: either content, tool calls, or both.
type Completion struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
}

// Client abstracts the upstream model provider. Consumers such as the agent
// loop, the question classifier, and the embed worker use this interface
// instead of depending on a concrete SDK client.
type Client interface {
	// Chat sends messages (and optional tool definitions) and returns the
	// assistant's completion.
	Chat(ctx context.Context, req Request) (Completion, error)

	// ChatStream is Chat with incremental delivery: onDelta is called for
	// each content fragment as it arrives. The full completion is still
	// returned at the end.
	ChatStream(ctx context.Context, req Request, onDelta func(string)) (Completion, error)

	// Embed returns embedding vectors for the given texts, one per input,
	// in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
