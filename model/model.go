package model

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// ToolCall represents a function call request surfaced by a model provider.
// Unified across vendors so downstream logic does not need per-provider branching.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"` // JSON string of arguments
}

// ToolDefinition declaratively exposes a callable function to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// Request captures the normalized model input produced by agents.
type Request struct {
	System string           `json:"system"` // System prompt / instructions
	Prompt string           `json:"prompt"` // Coalesced user prompt
	Tools  []ToolDefinition `json:"tools,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the completed output of one generation call. Structured holds
// the raw JSON object when the model replied with machine-readable content
// (plans, evaluations); Text always carries the textual rendering.
type Response struct {
	Text       string          `json:"text"`
	Structured json.RawMessage `json:"structured,omitempty"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
	Usage      *TokenUsage     `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by agents to drive generation.
// Implementations wrap transient provider failures (rate limits, 5xx) in
// core.TransientError so callers can decide whether to spend another
// iteration on a retry.
type Model interface {
	Generate(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
// Responses can be registered per exact prompt (AddResponse) or scripted as a
// FIFO consumed across calls (EnqueueResponse / EnqueueError), which makes
// iteration loops deterministic.
type MockModel struct {
	mu        sync.Mutex
	info      Info
	responses map[string]string
	script    []scriptEntry
	calls     []Request
}

type scriptEntry struct {
	text string
	err  error
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      provider,
			SupportsTools: true,
		},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// EnqueueResponse appends a scripted completion consumed before any exact
// prompt matches, in FIFO order.
func (m *MockModel) EnqueueResponse(response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scriptEntry{text: response})
}

// EnqueueError appends a scripted failure consumed in FIFO order.
func (m *MockModel) EnqueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scriptEntry{err: err})
}

// Calls returns a copy of all requests seen so far.
func (m *MockModel) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// Generate implements Model; scripted entries win over exact prompt matches,
// otherwise a generic echo response is produced.
func (m *MockModel) Generate(ctx context.Context, req Request) (*Response, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	m.mu.Lock()
	m.calls = append(m.calls, req)
	if len(m.script) > 0 {
		entry := m.script[0]
		m.script = m.script[1:]
		m.mu.Unlock()
		if entry.err != nil {
			return nil, entry.err
		}
		return newMockResponse(entry.text), nil
	}
	text, ok := m.responses[req.Prompt]
	m.mu.Unlock()

	if !ok {
		text = fmt.Sprintf("Mock response to: %s", req.Prompt)
	}
	return newMockResponse(text), nil
}

// newMockResponse builds a Response, surfacing the text as Structured when it
// parses as a JSON object or array.
func newMockResponse(text string) *Response {
	resp := &Response{Text: text}
	if json.Valid([]byte(text)) && len(text) > 0 && (text[0] == '{' || text[0] == '[') {
		resp.Structured = json.RawMessage(text)
	}
	return resp
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }

var _ Model = (*MockModel)(nil)
