package flow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/model"
	"github.com/hupe1980/agentcookbook/tool"
)

// Custom metadata keys set on live events.
const (
	MetadataTranscription = "transcription"
	TranscriptionInput    = "input"
	TranscriptionOutput   = "output"
)

// LiveFlow connects a LiveRequestQueue to a live model session. Client
// requests are forwarded as they arrive and every server message becomes an
// event. Audio chunks, turn boundaries and interruptions are emitted as
// partial events so they reach clients without being persisted.
type LiveFlow struct {
	*BaseFlow
}

// NewLiveFlow creates a live flow resolving the agent's instructions once at
// connection time.
func NewLiveFlow(agent FlowAgent) *LiveFlow {
	f := &LiveFlow{BaseFlow: NewBaseFlow(agent)}
	f.AddRequestProcessor(NewInstructionsProcessor())
	f.AddRequestProcessor(NewGlobalInstructionProcessor())
	return f
}

// RunLive blocks until the queue is closed, the model ends the session or
// runCtx is cancelled.
func (f *LiveFlow) RunLive(runCtx *core.RunContext, queue *core.LiveRequestQueue, cfg model.LiveConfig) error {
	lm, ok := f.agent.GetLLM().(model.LiveModel)
	if !ok {
		return fmt.Errorf("model of agent %s does not support live sessions", f.agent.GetName())
	}

	registry := f.toolRegistry()

	req := &model.Request{Tools: toolDefinitions(registry), Config: f.agent.GenerateConfig()}
	for _, processor := range f.requestProcessors {
		if err := processor.ProcessRequest(runCtx, req, f.agent); err != nil {
			return f.emitError(runCtx, ErrorCodeProcessor, fmt.Errorf("request processor %s failed: %w", processor.Name(), err))
		}
	}
	if cfg.Instructions == "" {
		cfg.Instructions = req.Instructions
	}
	if len(cfg.Tools) == 0 {
		cfg.Tools = req.Tools
	}
	if cfg.Config.Temperature == nil && cfg.Config.MaxOutputTokens == 0 {
		cfg.Config = req.Config
	}

	ctx, cancel := context.WithCancel(runCtx.Context)
	defer cancel()

	conn, err := lm.ConnectLive(ctx, cfg)
	if err != nil {
		return f.emitError(runCtx, ErrorCodeModel, fmt.Errorf("connect live: %w", err))
	}
	defer conn.Close() //nolint:errcheck

	// Receive may ignore ctx; closing the connection is what unblocks it.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	runCtx.LogInfo("flow.live.connected", "agent", f.agent.GetName(), "modalities", cfg.ResponseModalities)

	var emitMu sync.Mutex
	emit := func(ev core.Event) error {
		emitMu.Lock()
		defer emitMu.Unlock()
		ev.InvocationID = runCtx.RunID
		setBranch(runCtx, &ev)
		return runCtx.EmitAndWait(ev)
	}

	sendErr := make(chan error, 1)
	go func() {
		err := f.forward(ctx, queue, conn, emit)
		if err != nil {
			cancel()
		}
		sendErr <- err
	}()

	for {
		resp, err := conn.Receive(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			cancel()
			if fwdErr := <-sendErr; fwdErr != nil {
				return fwdErr
			}
			if ctxErr := runCtx.Err(); ctxErr != nil {
				return ctxErr
			}
			return f.emitError(runCtx, ErrorCodeModel, fmt.Errorf("live receive: %w", err))
		}

		if err := f.handle(runCtx, conn, registry, resp, emit); err != nil {
			cancel()
			<-sendErr
			return err
		}

		if resp.GoAway {
			runCtx.LogWarn("flow.live.go_away", "agent", f.agent.GetName())
			break
		}
	}

	cancel()
	if err := <-sendErr; err != nil {
		return err
	}
	return runCtx.Err()
}

// forward sends queued client requests to the connection. User content is
// recorded as an event before it is sent.
func (f *LiveFlow) forward(ctx context.Context, queue *core.LiveRequestQueue, conn model.LiveConnection, emit func(core.Event) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case req, ok := <-queue.Requests():
			if !ok {
				return conn.Close()
			}
			if req.Content != nil {
				content := *req.Content
				if content.Role == "" {
					content.Role = "user"
				}
				if err := emit(core.NewUserContentEvent("", &content)); err != nil {
					return err
				}
			}
			if err := conn.Send(ctx, req); err != nil {
				return fmt.Errorf("live send: %w", err)
			}
			if req.Close {
				return nil
			}
		}
	}
}

// handle turns one server message into events. Function calls are executed
// and their results sent back on the connection.
func (f *LiveFlow) handle(runCtx *core.RunContext, conn model.LiveConnection, registry map[string]tool.Tool, resp model.LiveResponse, emit func(core.Event) error) error {
	name := f.agent.GetName()

	if resp.SetupComplete {
		return nil
	}

	if resp.InputTranscription != "" {
		ev := core.NewUserContentEvent("", core.NewTextContent("user", resp.InputTranscription))
		ev.CustomMetadata = map[string]string{MetadataTranscription: TranscriptionInput}
		if err := emit(ev); err != nil {
			return err
		}
	}

	if resp.Content != nil {
		var media, rest []core.Part
		for _, p := range resp.Content.Parts {
			if _, ok := p.(core.BlobPart); ok {
				media = append(media, p)
				continue
			}
			rest = append(rest, p)
		}
		if len(media) > 0 {
			ev := core.NewEvent("", name)
			ev.Content = &core.Content{Role: "assistant", Parts: media}
			ev.Partial = boolPtr(true)
			if err := emit(ev); err != nil {
				return err
			}
		}
		if len(rest) > 0 {
			ev := core.NewEvent("", name)
			ev.Content = &core.Content{Role: "assistant", Parts: rest}
			if err := emit(ev); err != nil {
				return err
			}
		}
	}

	if resp.OutputTranscription != "" {
		ev := core.NewEvent("", name)
		ev.Content = core.NewTextContent("assistant", resp.OutputTranscription)
		ev.CustomMetadata = map[string]string{MetadataTranscription: TranscriptionOutput}
		if err := emit(ev); err != nil {
			return err
		}
	}

	if len(resp.FunctionCalls) > 0 {
		if err := f.callTools(runCtx, conn, registry, resp.FunctionCalls, emit); err != nil {
			return err
		}
	}

	if resp.Interrupted {
		ev := core.NewEvent("", name)
		ev.Interrupted = boolPtr(true)
		ev.Partial = boolPtr(true)
		if err := emit(ev); err != nil {
			return err
		}
	}

	if resp.TurnComplete {
		ev := core.NewEvent("", name)
		ev.TurnComplete = boolPtr(true)
		ev.Partial = boolPtr(true)
		if err := emit(ev); err != nil {
			return err
		}
	}

	return nil
}

func (f *LiveFlow) callTools(runCtx *core.RunContext, conn model.LiveConnection, registry map[string]tool.Tool, calls []core.FunctionCall, emit func(core.Event) error) error {
	content := core.Content{Role: "assistant"}
	for _, fc := range calls {
		content.Parts = append(content.Parts, core.FunctionCallPart{FunctionCall: fc})
	}
	assignCallIDs(&content)

	callEv := core.NewEvent("", f.agent.GetName())
	callEv.Content = &content
	if err := emit(callEv); err != nil {
		return err
	}

	var (
		responses []core.FunctionResponse
		emitErr   error
	)
	f.executor.Execute(runCtx, f.agent, registry, callEv.GetFunctionCalls(), func(ev core.Event) error {
		if err := emit(ev); err != nil {
			emitErr = err
			return err
		}
		responses = append(responses, ev.GetFunctionResponses()...)
		return nil
	})
	if emitErr != nil {
		return emitErr
	}

	if err := conn.SendToolResponses(runCtx.Context, responses); err != nil {
		return fmt.Errorf("live tool responses: %w", err)
	}
	return nil
}

func boolPtr(b bool) *bool { return &b }
