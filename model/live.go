package model

import (
	"context"
	"io"
	"sync"

	"github.com/hupe1980/agentcookbook/core"
)

// Response modalities for live sessions.
const (
	ModalityText  = "TEXT"
	ModalityAudio = "AUDIO"
)

// LiveConfig configures a bidirectional streaming session.
type LiveConfig struct {
	ResponseModalities  []string         `json:"response_modalities,omitempty"`
	Voice               string           `json:"voice,omitempty"`
	Instructions        string           `json:"instructions,omitempty"`
	Tools               []ToolDefinition `json:"tools,omitempty"`
	Config              GenerateConfig   `json:"config"`
	InputTranscription  bool             `json:"input_transcription,omitempty"`
	OutputTranscription bool             `json:"output_transcription,omitempty"`
}

// LiveResponse is one server message of a live session.
type LiveResponse struct {
	SetupComplete       bool                `json:"setup_complete,omitempty"`
	Content             *core.Content       `json:"content,omitempty"`
	TurnComplete        bool                `json:"turn_complete,omitempty"`
	Interrupted         bool                `json:"interrupted,omitempty"`
	InputTranscription  string              `json:"input_transcription,omitempty"`
	OutputTranscription string              `json:"output_transcription,omitempty"`
	FunctionCalls       []core.FunctionCall `json:"function_calls,omitempty"`
	GoAway              bool                `json:"go_away,omitempty"`
	Usage               *TokenUsage         `json:"usage,omitempty"`
}

// LiveConnection is an open live session. Receive returns io.EOF once the
// session has been closed.
type LiveConnection interface {
	Send(ctx context.Context, req core.LiveRequest) error
	SendToolResponses(ctx context.Context, responses []core.FunctionResponse) error
	Receive(ctx context.Context) (LiveResponse, error)
	Close() error
}

// LiveModel is a Model that also supports bidirectional streaming.
type LiveModel interface {
	Model
	ConnectLive(ctx context.Context, cfg LiveConfig) (LiveConnection, error)
}

// ConnectLive implements LiveModel. Every content turn is answered through
// the same reply logic as Generate; audio chunks are echoed back.
func (m *MockModel) ConnectLive(_ context.Context, cfg LiveConfig) (LiveConnection, error) {
	conn := &mockLiveConnection{model: m, cfg: cfg, out: make(chan LiveResponse, 64)}
	conn.out <- LiveResponse{SetupComplete: true}
	return conn, nil
}

type mockLiveConnection struct {
	model *MockModel
	cfg   LiveConfig
	out   chan LiveResponse

	turnMu  sync.Mutex
	history []core.Content

	mu     sync.Mutex
	closed bool
}

func (c *mockLiveConnection) push(resp LiveResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.ErrClosedPipe
	}
	c.out <- resp
	return nil
}

func (c *mockLiveConnection) answer() error {
	resp, err := c.model.reply(Request{Instructions: c.cfg.Instructions, Contents: c.history, Tools: c.cfg.Tools, Config: c.cfg.Config})
	if err != nil {
		return err
	}

	c.history = append(c.history, resp.Content)

	var calls []core.FunctionCall
	var parts []core.Part
	for _, p := range resp.Content.Parts {
		if fc, ok := p.(core.FunctionCallPart); ok {
			calls = append(calls, fc.FunctionCall)
			continue
		}
		parts = append(parts, p)
	}

	if len(calls) > 0 {
		return c.push(LiveResponse{FunctionCalls: calls})
	}

	out := LiveResponse{Content: &core.Content{Role: "assistant", Parts: parts}}
	if c.cfg.OutputTranscription {
		out.OutputTranscription = resp.Content.Text()
	}
	if err := c.push(out); err != nil {
		return err
	}
	return c.push(LiveResponse{TurnComplete: true})
}

func (c *mockLiveConnection) Send(_ context.Context, req core.LiveRequest) error {
	switch {
	case req.Close:
		return c.Close()
	case req.Content != nil:
		c.turnMu.Lock()
		defer c.turnMu.Unlock()
		c.history = append(c.history, *req.Content)
		return c.answer()
	case req.Blob != nil:
		echo := core.BlobPart{Blob: core.Blob{Data: req.Blob.Data, MIMEType: req.Blob.MIMEType}}
		if err := c.push(LiveResponse{Content: &core.Content{Role: "assistant", Parts: []core.Part{echo}}}); err != nil {
			return err
		}
		return c.push(LiveResponse{TurnComplete: true})
	default:
		return nil
	}
}

func (c *mockLiveConnection) SendToolResponses(_ context.Context, responses []core.FunctionResponse) error {
	parts := make([]core.Part, 0, len(responses))
	for _, r := range responses {
		parts = append(parts, core.FunctionResponsePart{FunctionResponse: r})
	}
	c.turnMu.Lock()
	defer c.turnMu.Unlock()
	c.history = append(c.history, core.Content{Role: "tool", Parts: parts})
	return c.answer()
}

func (c *mockLiveConnection) Receive(ctx context.Context) (LiveResponse, error) {
	select {
	case <-ctx.Done():
		return LiveResponse{}, ctx.Err()
	case resp, ok := <-c.out:
		if !ok {
			return LiveResponse{}, io.EOF
		}
		return resp, nil
	}
}

func (c *mockLiveConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.out)
	return nil
}
