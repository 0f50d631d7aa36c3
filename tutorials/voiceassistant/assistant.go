// Package voiceassistant is a conversational assistant on a live model
// session. Replies arrive as text or 16 kHz PCM audio depending on the audio
// mode. Text turns fall back to a regular text model when the live session
// fails.
package voiceassistant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentcookbook/agent"
	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/flow"
	"github.com/hupe1980/agentcookbook/logging"
	"github.com/hupe1980/agentcookbook/model"
	"github.com/hupe1980/agentcookbook/runner"
	"github.com/hupe1980/agentcookbook/session"
)

const (
	AppName   = "voice_assistant_app"
	AgentName = "voice_assistant"
	UserID    = "voice_user"

	DefaultVoice    = "Puck"
	Temperature     = 0.8
	MaxOutputTokens = 150

	// InputMIMEType labels microphone chunks sent with SendAudio.
	InputMIMEType = "audio/pcm;rate=16000"

	// FallbackMessage is the reply when neither the live nor the text model
	// answered.
	FallbackMessage = "I can't reach the text model right now. Please check your API access."
)

var errTurnIncomplete = errors.New("live session ended before the turn completed")

const instruction = `You are a friendly voice assistant. Keep answers short and conversational: one to three sentences.
Speak naturally, avoid lists, markdown and long numbers, and ask a short follow-up question when it helps the conversation.`

// NewAgent builds the voice_assistant agent on llm.
func NewAgent(llm model.Model) *agent.ModelAgent {
	return agent.NewModelAgent(AgentName, llm, func(o *agent.ModelAgentOptions) {
		o.Description = "A concise conversational voice assistant"
		o.Instruction = agent.StaticInstruction(instruction)
		o.GenerateConfig = model.GenerateConfig{
			Temperature:     model.Temperature(Temperature),
			MaxOutputTokens: MaxOutputTokens,
		}
		o.EnableStreaming = false
		o.AllowTransfer = false
	})
}

// Options configures an Assistant.
type Options struct {
	// TextModel answers text turns when the live session fails. Defaults to
	// the live model.
	TextModel model.Model

	Voice     string
	AudioMode bool
	UserID    string

	// TurnTimeout bounds a single live turn.
	TurnTimeout time.Duration

	SessionStore core.SessionStore
	Logger       logging.Logger
}

// Reply is the answer to one turn.
type Reply struct {
	Text  string
	Audio [][]byte
	// Fallback is set when the text model answered instead of the live model.
	Fallback bool
}

// PCM concatenates the audio chunks.
func (r Reply) PCM() []byte {
	var n int
	for _, c := range r.Audio {
		n += len(c)
	}
	out := make([]byte, 0, n)
	for _, c := range r.Audio {
		out = append(out, c...)
	}
	return out
}

// Assistant holds one conversation. Turns are serialized.
type Assistant struct {
	live *runner.Runner
	text *runner.Runner
	opts Options

	mu        sync.Mutex
	audioMode bool
	sessionID string
}

// New creates an assistant on the live model llm.
func New(llm model.LiveModel, optFns ...func(o *Options)) *Assistant {
	opts := Options{
		Voice:       DefaultVoice,
		UserID:      UserID,
		TurnTimeout: 30 * time.Second,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.TextModel == nil {
		opts.TextModel = llm
	}
	if opts.SessionStore == nil {
		opts.SessionStore = session.NewInMemoryStore()
	}

	runnerOpts := func(o *runner.Options) {
		o.SessionStore = opts.SessionStore
		o.Logger = opts.Logger
	}

	return &Assistant{
		live:      runner.New(AppName, NewAgent(llm), runnerOpts),
		text:      runner.New(AppName, NewAgent(opts.TextModel), runnerOpts),
		opts:      opts,
		audioMode: opts.AudioMode,
	}
}

// SetAudioMode switches between spoken (true) and text replies.
func (a *Assistant) SetAudioMode(on bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.audioMode = on
}

// AudioMode reports whether replies are spoken.
func (a *Assistant) AudioMode() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.audioMode
}

// SessionID returns the conversation session, empty before the first turn.
func (a *Assistant) SessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessionID
}

// LiveConfig returns the live session configuration for the current mode.
func (a *Assistant) LiveConfig() model.LiveConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.liveConfig()
}

func (a *Assistant) liveConfig() model.LiveConfig {
	cfg := model.LiveConfig{
		ResponseModalities: []string{model.ModalityText},
		Config: model.GenerateConfig{
			Temperature:     model.Temperature(Temperature),
			MaxOutputTokens: MaxOutputTokens,
		},
	}
	if a.audioMode {
		cfg.ResponseModalities = []string{model.ModalityAudio}
		cfg.Voice = a.opts.Voice
		cfg.InputTranscription = true
		cfg.OutputTranscription = true
	}
	return cfg
}

// SendText sends one text turn. If the live session fails the text model
// answers instead. When both fail the reply carries FallbackMessage together
// with the joined error.
func (a *Assistant) SendText(ctx context.Context, text string) (Reply, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	reply, liveErr := a.liveTurn(ctx, core.LiveRequest{Content: core.NewTextContent("user", text)})
	if liveErr == nil {
		return reply, nil
	}
	a.opts.Logger.Warn("voice.live_failed", "error", liveErr)

	answer, textErr := a.textTurn(ctx, text)
	if textErr != nil {
		a.opts.Logger.Error("voice.text_fallback_failed", "error", textErr)
		return Reply{Text: FallbackMessage, Fallback: true}, errors.Join(liveErr, textErr)
	}

	return Reply{Text: answer, Fallback: true}, nil
}

// SendAudio streams one chunk of 16 kHz PCM and returns the reply of the
// turn it completes.
func (a *Assistant) SendAudio(ctx context.Context, pcm []byte) (Reply, error) {
	if len(pcm) == 0 {
		return Reply{}, errors.New("audio chunk is empty")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	return a.liveTurn(ctx, core.LiveRequest{Blob: &core.Blob{Data: pcm, MIMEType: InputMIMEType}})
}

func (a *Assistant) ensureSession(ctx context.Context) (string, error) {
	if a.sessionID != "" {
		return a.sessionID, nil
	}
	sess, err := a.live.CreateSession(ctx, a.opts.UserID, "", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	a.sessionID = sess.ID
	return a.sessionID, nil
}

// liveTurn opens a live run for a single request and collects the reply
// until the model signals the end of the turn.
func (a *Assistant) liveTurn(ctx context.Context, req core.LiveRequest) (Reply, error) {
	sessionID, err := a.ensureSession(ctx)
	if err != nil {
		return Reply{}, err
	}

	if a.opts.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.TurnTimeout)
		defer cancel()
	}

	queue := core.NewLiveRequestQueue(0)
	defer queue.Close()

	_, events, errs, err := a.live.RunLive(ctx, a.opts.UserID, sessionID, queue, a.liveConfig())
	if err != nil {
		return Reply{}, err
	}
	if err := queue.Send(req); err != nil {
		return Reply{}, err
	}

	var (
		reply Reply
		done  bool
	)
	for ev := range events {
		if done || ev.Author != AgentName {
			continue
		}
		if ev.TurnComplete != nil && *ev.TurnComplete {
			done = true
			queue.Close()
			continue
		}
		if ev.Content == nil {
			continue
		}
		for _, p := range ev.Content.Parts {
			if blob, ok := p.(core.BlobPart); ok {
				reply.Audio = append(reply.Audio, blob.Blob.Data)
			}
		}
		if ev.IsPartial() {
			continue
		}
		// Spoken replies carry their text as output transcription.
		transcript := ev.CustomMetadata[flow.MetadataTranscription] == flow.TranscriptionOutput
		if transcript == a.audioMode {
			reply.Text += ev.Text()
		}
	}

	runErr := <-errs
	if !done {
		if runErr != nil {
			return Reply{}, runErr
		}
		return Reply{}, errTurnIncomplete
	}

	return reply, nil
}

func (a *Assistant) textTurn(ctx context.Context, text string) (string, error) {
	sessionID, err := a.ensureSession(ctx)
	if err != nil {
		return "", err
	}

	events, err := a.text.RunSync(ctx, a.opts.UserID, sessionID, *core.NewTextContent("user", text))
	if err != nil {
		return "", err
	}

	var answer string
	for _, ev := range events {
		if ev.Author == AgentName && ev.IsFinalResponse() {
			answer += ev.Text()
		}
	}
	if answer == "" {
		return "", errors.New("text model returned no answer")
	}
	return answer, nil
}
