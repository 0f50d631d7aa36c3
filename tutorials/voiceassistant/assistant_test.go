package voiceassistant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/model"
)

func TestNewAgent_Configuration(t *testing.T) {
	a := NewAgent(model.NewMockModel("m", "mock"))

	assert.Equal(t, AgentName, a.Name())
	require.NotNil(t, a.GenerateConfig().Temperature)
	assert.Equal(t, Temperature, *a.GenerateConfig().Temperature)
	assert.Equal(t, MaxOutputTokens, a.GenerateConfig().MaxOutputTokens)
}

func TestAssistant_LiveConfig(t *testing.T) {
	va := New(model.NewMockModel("m", "mock"))

	cfg := va.LiveConfig()
	assert.Equal(t, []string{model.ModalityText}, cfg.ResponseModalities)
	assert.Empty(t, cfg.Voice)

	va.SetAudioMode(true)
	assert.True(t, va.AudioMode())

	cfg = va.LiveConfig()
	assert.Equal(t, []string{model.ModalityAudio}, cfg.ResponseModalities)
	assert.Equal(t, DefaultVoice, cfg.Voice)
	assert.True(t, cfg.OutputTranscription)
	assert.Equal(t, MaxOutputTokens, cfg.Config.MaxOutputTokens)
}

func TestAssistant_SendText(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	llm.EnqueueText("Hi! How can I help?", "Sure, it is sunny.")

	va := New(llm)
	ctx := context.Background()

	reply, err := va.SendText(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi! How can I help?", reply.Text)
	assert.False(t, reply.Fallback)
	assert.Empty(t, reply.Audio)

	sessionID := va.SessionID()
	require.NotEmpty(t, sessionID)

	reply, err = va.SendText(ctx, "how is the weather?")
	require.NoError(t, err)
	assert.Equal(t, "Sure, it is sunny.", reply.Text)
	assert.Equal(t, sessionID, va.SessionID())
}

func TestAssistant_SendTextInAudioMode(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	llm.EnqueueText("Spoken answer.")

	va := New(llm, func(o *Options) { o.AudioMode = true })

	reply, err := va.SendText(context.Background(), "talk to me")
	require.NoError(t, err)
	assert.Equal(t, "Spoken answer.", reply.Text)
}

func TestAssistant_SendAudio(t *testing.T) {
	va := New(model.NewMockModel("m", "mock"), func(o *Options) { o.AudioMode = true })

	pcm := Int16ToPCM([]int16{100, -100, 2000, -2000})

	reply, err := va.SendAudio(context.Background(), pcm)
	require.NoError(t, err)
	require.Len(t, reply.Audio, 1)
	assert.Equal(t, pcm, reply.PCM())

	_, err = va.SendAudio(context.Background(), nil)
	assert.Error(t, err)
}

func TestAssistant_FallsBackToTextModel(t *testing.T) {
	live := model.NewMockModel("live", "mock")
	live.SetHandler(func(model.Request) (model.Response, error) {
		return model.Response{}, errors.New("live quota exceeded")
	})

	text := model.NewMockModel("text", "mock")
	text.EnqueueText("Answer from the text model.")

	va := New(live, func(o *Options) {
		o.TextModel = text
		o.TurnTimeout = 5 * time.Second
	})

	reply, err := va.SendText(context.Background(), "hello")
	require.NoError(t, err)
	assert.True(t, reply.Fallback)
	assert.Equal(t, "Answer from the text model.", reply.Text)

	reqs := text.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "hello", reqs[0].Contents[len(reqs[0].Contents)-1].Text())
}

func TestAssistant_FallbackMessage(t *testing.T) {
	failing := func(model.Request) (model.Response, error) {
		return model.Response{}, errors.New("unavailable")
	}

	live := model.NewMockModel("live", "mock")
	live.SetHandler(failing)
	text := model.NewMockModel("text", "mock")
	text.SetHandler(failing)

	va := New(live, func(o *Options) { o.TextModel = text })

	reply, err := va.SendText(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, FallbackMessage, reply.Text)
	assert.True(t, reply.Fallback)
}

func TestAssistant_PersistsConversation(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	llm.EnqueueText("First.")

	va := New(llm)
	ctx := context.Background()

	_, err := va.SendText(ctx, "one")
	require.NoError(t, err)

	sess, err := va.opts.SessionStore.Get(ctx, core.SessionKey{AppName: AppName, UserID: UserID, SessionID: va.SessionID()})
	require.NoError(t, err)

	var texts []string
	for _, ev := range sess.GetEvents() {
		if txt := ev.Text(); txt != "" {
			texts = append(texts, ev.Author+":"+txt)
		}
	}
	assert.Equal(t, []string{"user:one", AgentName + ":First."}, texts)
}
