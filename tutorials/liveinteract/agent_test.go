package liveinteract

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/model"
	"github.com/hupe1980/agentcookbook/runner"
)

func TestWeatherTool(t *testing.T) {
	wt := &WeatherTool{}

	res, err := wt.Call(nil, map[string]any{"city": "London, UK"})
	require.NoError(t, err)
	out := res.(map[string]any)
	assert.Equal(t, "success", out["status"])
	assert.Equal(t, "Cloudy", out["condition"])
	assert.Contains(t, out["report"], "15°C")

	res, err = wt.Call(nil, map[string]any{"city": "Atlantis"})
	require.NoError(t, err)
	assert.Equal(t, "error", res.(map[string]any)["status"])

	_, err = wt.Call(nil, map[string]any{})
	assert.Error(t, err)
}

func TestTimeTool(t *testing.T) {
	fixed := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	tt := &TimeTool{now: func() time.Time { return fixed }}

	res, err := tt.Call(nil, map[string]any{"city": "Tokyo"})
	require.NoError(t, err)
	out := res.(map[string]any)
	assert.Equal(t, "Asia/Tokyo", out["timezone"])
	assert.Equal(t, "2025-01-15T21:00:00+09:00", out["time"])

	res, err = tt.Call(nil, map[string]any{"city": "Gotham"})
	require.NoError(t, err)
	assert.Equal(t, "error", res.(map[string]any)["status"])
}

func TestLiveConfig(t *testing.T) {
	cfg := LiveConfig("Puck")
	assert.Equal(t, []string{model.ModalityAudio}, cfg.ResponseModalities)
	assert.Equal(t, "Puck", cfg.Voice)
	assert.True(t, cfg.InputTranscription)

	assert.Equal(t, []string{model.ModalityText}, LiveConfig("", model.ModalityText).ResponseModalities)
}

func TestLiveSession_CallsTools(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	llm.Enqueue(
		model.FunctionCallResponse("c1", "get_weather", map[string]any{"city": "Berlin"}),
		model.TextResponse("It is 18 degrees and partly cloudy in Berlin."),
	)

	r := runner.New(AppName, New(llm))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := r.CreateSession(ctx, "u1", "", nil)
	require.NoError(t, err)

	queue := core.NewLiveRequestQueue(0)
	_, events, errs, err := r.RunLive(ctx, "u1", sess.ID, queue, LiveConfig("", model.ModalityText))
	require.NoError(t, err)

	require.NoError(t, queue.SendContent(*core.NewTextContent("user", "How is the weather in Berlin?")))

	var (
		answer    string
		responses []core.FunctionResponse
	)
	for ev := range events {
		responses = append(responses, ev.GetFunctionResponses()...)
		if ev.Author == AgentName && !ev.IsPartial() {
			answer += ev.Text()
		}
		if ev.TurnComplete != nil && *ev.TurnComplete {
			queue.Close()
		}
	}
	require.NoError(t, <-errs)

	require.Len(t, responses, 1)
	assert.Equal(t, "success", responses[0].Response.(map[string]any)["status"])
	assert.Equal(t, "It is 18 degrees and partly cloudy in Berlin.", answer)
}
