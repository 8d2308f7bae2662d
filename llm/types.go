// Package llm provides the provider-abstraction and call-orchestration core.
//
// It normalizes four heterogeneous vendor wire protocols (OpenAI, Anthropic,
// Google, and a local Ollama-style HTTP server) behind one call contract with
// incremental streaming, multi-round tool invocation, and usage/cost
// accounting.
package llm

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a message. The set is closed; adapters map
// these onto vendor-specific role names.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is one turn in a conversation.
//
// Invariants: a RoleTool message always carries ToolCallID; a RoleAssistant
// message carries ToolCalls only when the model actually issued them. Content
// may be empty while a response is still streaming in.
type Message struct {
	ID        string      `json:"id"`
	Role      Role        `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
	ToolCalls []ToolCall  `json:"tool_calls,omitempty"`
	// ToolCallID references the originating call. Set only when Role is RoleTool.
	ToolCallID string       `json:"tool_call_id,omitempty"`
	Meta       *MessageMeta `json:"meta,omitempty"`
}

// MessageMeta carries derived metrics attached once a call completes.
type MessageMeta struct {
	Usage     *TokenUsage `json:"usage,omitempty"`
	ElapsedMs int64       `json:"elapsed_ms,omitempty"`
	CostUSD   *float64    `json:"cost_usd,omitempty"`
}

func newMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return newMessage(RoleUser, content)
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message {
	return newMessage(RoleSystem, content)
}

// NewAssistantMessage creates an assistant message, optionally carrying the
// tool calls the model issued.
func NewAssistantMessage(content string, toolCalls []ToolCall) Message {
	m := newMessage(RoleAssistant, content)
	m.ToolCalls = toolCalls
	return m
}

// NewToolMessage creates a tool-result message answering callID.
func NewToolMessage(callID, content string) Message {
	m := newMessage(RoleTool, content)
	m.ToolCallID = callID
	return m
}

// ToolCall is one concrete invocation request issued by the model.
// Args is the argument mapping, already JSON-decoded. When a vendor omits a
// call id (Google does, Ollama does), the adapter generates one locally.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// NewCallID generates a local tool-call identifier for vendors that omit one.
func NewCallID() string {
	return "call_" + uuid.NewString()
}

// ToolDefinition declares a callable capability to the model.
// Parameters is a JSON-Schema object ({"type":"object","properties":...}).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// TokenUsage is a provider-reported token count for one model invocation.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Normalize recomputes TotalTokens when it does not equal the sum of the
// parts. Upstream totals are verified, never trusted.
func (u *TokenUsage) Normalize() {
	if u.TotalTokens != u.InputTokens+u.OutputTokens {
		u.TotalTokens = u.InputTokens + u.OutputTokens
	}
}

// Add accumulates another invocation's usage field-wise. Summing across
// orchestrator rounds is intentional accounting: each round is a real model
// invocation.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens = u.InputTokens + u.OutputTokens
}

// Result is the uniform adapter output.
// Usage is nil when the vendor reported no counts (typical in streaming mode).
type Result struct {
	Content   string
	ToolCalls []ToolCall
	Usage     *TokenUsage
}

// CallResult is the facade's output for one exchange.
type CallResult struct {
	// Content is the final text answer.
	Content string
	// Usage is the summed usage across all rounds, if any round reported it.
	Usage *TokenUsage
	// ElapsedMs is wall-clock time for the whole exchange.
	ElapsedMs int64
	// CostUSD is derived from Usage via the model catalog; nil without usage.
	CostUSD *float64
	// ToolCalls lists calls issued during the exchange. They were already
	// resolved internally; this is for display.
	ToolCalls []ToolCall
	// Transcript holds the messages produced by the exchange in order
	// (assistant turns, tool results), so callers maintaining history can
	// append them as-is.
	Transcript []Message
}

// CallConfig is the per-call configuration. Model selects the provider via
// the catalog; APIKey and BaseURL are merged in from the provider-scoped
// credential store by the facade.
type CallConfig struct {
	Model       string  `json:"model"`
	APIKey      string  `json:"api_key,omitempty"`
	BaseURL     string  `json:"base_url,omitempty"`
	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}
