package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/model"
)

// ConnectLive implements model.LiveModel over the Gemini Live API.
func (m *Model) ConnectLive(ctx context.Context, cfg model.LiveConfig) (model.LiveConnection, error) {
	session, err := m.client.Live.Connect(ctx, m.opts.Model, toLiveConnectConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("gemini live connect: %w", err)
	}
	return &liveConnection{session: session}, nil
}

func toLiveConnectConfig(cfg model.LiveConfig) *genai.LiveConnectConfig {
	out := &genai.LiveConnectConfig{}

	for _, m := range cfg.ResponseModalities {
		out.ResponseModalities = append(out.ResponseModalities, genai.Modality(strings.ToUpper(m)))
	}
	if len(out.ResponseModalities) == 0 {
		out.ResponseModalities = []genai.Modality{genai.ModalityText}
	}

	if cfg.Voice != "" {
		out.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}

	if cfg.Instructions != "" {
		out.SystemInstruction = genai.NewContentFromText(cfg.Instructions, genai.RoleUser)
	}

	if cfg.Config.Temperature != nil {
		t := float32(*cfg.Config.Temperature)
		out.Temperature = &t
	}
	if cfg.Config.MaxOutputTokens > 0 {
		out.MaxOutputTokens = int32(cfg.Config.MaxOutputTokens) //nolint:gosec // bounded by config validation
	}

	out.Tools = toGenaiTools(cfg.Tools, false)

	if cfg.InputTranscription {
		out.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if cfg.OutputTranscription {
		out.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}

	return out
}

// liveConnection adapts a genai live session. genai sessions are not safe
// for concurrent writes, so sends are serialized.
type liveConnection struct {
	session *genai.Session

	sendMu sync.Mutex
	once   sync.Once
}

func (c *liveConnection) Send(_ context.Context, req core.LiveRequest) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	switch {
	case req.Close:
		return c.Close()
	case req.Content != nil:
		contents, _ := toGenaiContents([]core.Content{*req.Content})
		turnComplete := true
		return c.session.SendClientContent(genai.LiveClientContentInput{
			Turns:        contents,
			TurnComplete: &turnComplete,
		})
	case req.Blob != nil:
		return c.session.SendRealtimeInput(genai.LiveRealtimeInput{
			Audio: &genai.Blob{Data: req.Blob.Data, MIMEType: req.Blob.MIMEType},
		})
	case req.ActivityStart:
		return c.session.SendRealtimeInput(genai.LiveRealtimeInput{ActivityStart: &genai.ActivityStart{}})
	case req.ActivityEnd:
		return c.session.SendRealtimeInput(genai.LiveRealtimeInput{ActivityEnd: &genai.ActivityEnd{}})
	default:
		return nil
	}
}

func (c *liveConnection) SendToolResponses(_ context.Context, responses []core.FunctionResponse) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	out := make([]*genai.FunctionResponse, 0, len(responses))
	for _, r := range responses {
		out = append(out, toGenaiFunctionResponse(r))
	}
	return c.session.SendToolResponse(genai.LiveToolResponseInput{FunctionResponses: out})
}

// Receive blocks on the websocket. Cancelling ctx closes the session, which
// ends the connection for good.
func (c *liveConnection) Receive(ctx context.Context) (model.LiveResponse, error) {
	if err := ctx.Err(); err != nil {
		return model.LiveResponse{}, err
	}

	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	msg, err := c.session.Receive()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.LiveResponse{}, ctxErr
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || errors.Is(err, io.EOF) {
			return model.LiveResponse{}, io.EOF
		}
		return model.LiveResponse{}, fmt.Errorf("gemini live receive: %w", err)
	}

	return fromLiveServerMessage(msg), nil
}

func (c *liveConnection) Close() error {
	var err error
	c.once.Do(func() {
		err = c.session.Close()
	})
	return err
}

func fromLiveServerMessage(msg *genai.LiveServerMessage) model.LiveResponse {
	var out model.LiveResponse
	if msg == nil {
		return out
	}

	out.SetupComplete = msg.SetupComplete != nil
	out.GoAway = msg.GoAway != nil

	if sc := msg.ServerContent; sc != nil {
		out.TurnComplete = sc.TurnComplete
		out.Interrupted = sc.Interrupted
		if sc.ModelTurn != nil {
			if parts := fromGenaiParts(sc.ModelTurn.Parts); len(parts) > 0 {
				out.Content = &core.Content{Role: "assistant", Parts: parts}
			}
		}
		if sc.InputTranscription != nil {
			out.InputTranscription = sc.InputTranscription.Text
		}
		if sc.OutputTranscription != nil {
			out.OutputTranscription = sc.OutputTranscription.Text
		}
	}

	if tc := msg.ToolCall; tc != nil {
		for _, p := range fromGenaiParts(functionCallParts(tc.FunctionCalls)) {
			if fc, ok := p.(core.FunctionCallPart); ok {
				out.FunctionCalls = append(out.FunctionCalls, fc.FunctionCall)
			}
		}
	}

	if u := msg.UsageMetadata; u != nil {
		out.Usage = &model.TokenUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.ResponseTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}

	return out
}

func functionCallParts(calls []*genai.FunctionCall) []*genai.Part {
	parts := make([]*genai.Part, 0, len(calls))
	for _, fc := range calls {
		if fc != nil {
			parts = append(parts, &genai.Part{FunctionCall: fc})
		}
	}
	return parts
}
