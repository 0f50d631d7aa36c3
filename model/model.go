package model

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hupe1980/agentcookbook/core"
)

// ToolCall represents a function call request surfaced by a model provider.
// Unified across vendors so downstream logic does not need per-provider branching.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"` // "function"
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction describes the concrete function target of a tool call.
type ToolCallFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"` // JSON string of arguments
}

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// GenerateConfig carries sampling parameters. Nil / zero fields fall back to
// the adapter defaults.
type GenerateConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"max_output_tokens,omitempty"`
}

// Temperature is a helper returning a pointer for GenerateConfig.Temperature.
func Temperature(t float64) *float64 { return &t }

// Request captures the normalized model input produced by flows.
type Request struct {
	Instructions  string           `json:"instructions"` // Instructions for the model
	Contents      []core.Content   `json:"contents"`     // Higher-level content converted to provider messages
	Tools         []ToolDefinition `json:"tools,omitempty"`
	Stream        bool             `json:"stream,omitempty"`
	Config        GenerateConfig   `json:"config"`
	CodeExecution bool             `json:"code_execution,omitempty"` // enable the provider's built-in code execution tool
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a streaming model.
type Response struct {
	ID           string       `json:"id"`
	Partial      bool         `json:"partial"` // Indicates if this is a partial response
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name                   string `json:"name"`
	Provider               string `json:"provider"` // "gemini", "openai", "anthropic", "mock"
	SupportsTools          bool   `json:"supports_tools"`
	SupportsCodeExecution  bool   `json:"supports_code_execution"`
	SupportsLiveConnection bool   `json:"supports_live_connection"`
}

// Model is the minimal interface required by flows & agents to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Collect drains a Generate call and returns the final (non-partial) response.
func Collect(ctx context.Context, m Model, req Request) (Response, error) {
	respCh, errCh := m.Generate(ctx, req)

	var final *Response
	for resp := range respCh {
		if !resp.Partial {
			r := resp
			final = &r
		}
	}

	if err := <-errCh; err != nil {
		return Response{}, err
	}

	if final == nil {
		return Response{}, fmt.Errorf("model %s returned no final response", m.Info().Name)
	}

	return *final, nil
}

// MockHandler computes a mock reply for a request.
type MockHandler func(req Request) (Response, error)

// MockModel is a lightweight in-memory Model useful for tests & examples.
// Replies are chosen in this order: handler, queued responses, canned
// responses keyed by the last user text, then an echo.
type MockModel struct {
	info      Info
	responses map[string]string

	mu       sync.Mutex
	queue    []Response
	handler  MockHandler
	requests []Request
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info: Info{
			Name:                   name,
			Provider:               provider,
			SupportsTools:          true,
			SupportsLiveConnection: true,
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

// Enqueue appends responses returned by subsequent Generate calls, one per call.
func (m *MockModel) Enqueue(responses ...Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, responses...)
}

// EnqueueText is a shorthand for Enqueue with plain assistant text replies.
func (m *MockModel) EnqueueText(texts ...string) {
	for _, t := range texts {
		m.Enqueue(TextResponse(t))
	}
}

// SetHandler installs a function computing every reply.
func (m *MockModel) SetHandler(h MockHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

// Requests returns a copy of all requests received so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// TextResponse builds a final assistant response with a single text part.
func TextResponse(text string) Response {
	return Response{
		Content:      core.Content{Role: "assistant", Parts: []core.Part{core.TextPart{Text: text}}},
		FinishReason: "stop",
	}
}

// FunctionCallResponse builds a final assistant response requesting a tool call.
func FunctionCallResponse(id, name string, args map[string]any) Response {
	raw, _ := json.Marshal(args)
	return Response{
		Content: core.Content{Role: "assistant", Parts: []core.Part{
			core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: id, Name: name, Arguments: string(raw)}},
		}},
		FinishReason: "tool_calls",
	}
}

// reply selects the response for req.
func (m *MockModel) reply(req Request) (Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	handler := m.handler
	var queued *Response
	if handler == nil && len(m.queue) > 0 {
		r := m.queue[0]
		m.queue = m.queue[1:]
		queued = &r
	}
	m.mu.Unlock()

	if handler != nil {
		return handler(req)
	}
	if queued != nil {
		return *queued, nil
	}

	if len(req.Contents) == 0 {
		return Response{}, fmt.Errorf("no contents provided")
	}
	inputText := lastText(req.Contents)

	m.mu.Lock()
	full := m.responses[inputText]
	m.mu.Unlock()

	if full == "" {
		full = fmt.Sprintf("Mock response to: %s", inputText)
	}

	return TextResponse(full), nil
}

// lastText returns the text of the last content that carries any.
func lastText(contents []core.Content) string {
	for i := len(contents) - 1; i >= 0; i-- {
		c := contents[i]
		if t := c.Text(); t != "" {
			return t
		}
	}
	return ""
}

// Generate implements Model; emits optional streaming char chunks then final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)

		final, err := m.reply(req)
		if err != nil {
			errCh <- err
			return
		}

		if req.Stream {
			for _, r := range final.Content.Text() {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{
					Partial: true,
					Content: core.Content{
						Role:  "assistant",
						Parts: []core.Part{core.TextPart{Text: string(r)}},
					},
				}:
				}
			}
		}

		final.Partial = false
		if final.FinishReason == "" {
			final.FinishReason = "stop"
		}

		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- final:
		}
	}()
	return respCh, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
