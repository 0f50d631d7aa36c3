package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/model"
)

func TestBuildMessages_ToolResponsesFollowCalls(t *testing.T) {
	req := model.Request{
		Instructions: "be brief",
		Contents: []core.Content{
			*core.NewTextContent("user", "what is 2+2"),
			{Role: "assistant", Parts: []core.Part{core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c1", Name: "add", Arguments: `{"a":2,"b":2}`}}}},
			{Role: "tool", Parts: []core.Part{core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{ID: "c1", Name: "add", Response: map[string]any{"sum": 4}}}}},
		},
	}

	responses, order := collectToolResponses(req)
	msgs := buildMessages(req, responses, order)

	require.Len(t, msgs, 4)
	assert.NotNil(t, msgs[0].OfSystem)
	assert.NotNil(t, msgs[1].OfUser)
	require.NotNil(t, msgs[2].OfAssistant)
	assert.Equal(t, "add", msgs[2].OfAssistant.ToolCalls[0].Function.Name)
	require.NotNil(t, msgs[3].OfTool)
	assert.Equal(t, "c1", msgs[3].OfTool.ToolCallID)
}

func TestResponseText(t *testing.T) {
	assert.Equal(t, "plain", responseText(core.FunctionResponse{Response: "plain"}))
	assert.Equal(t, `{"sum":4}`, responseText(core.FunctionResponse{Response: map[string]any{"sum": 4}}))
	assert.Equal(t, `{"error":"boom"}`, responseText(core.FunctionResponse{Error: "boom"}))
}

func TestModel_GenerateNonStreaming(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "four"}}],
			"usage": {"prompt_tokens": 5, "completion_tokens": 1, "total_tokens": 6}
		}`))
	}))
	defer srv.Close()

	m := NewModel(func(o *Options) {
		o.APIKey = "test"
		o.BaseURL = srv.URL
	})

	req := model.Request{
		Contents: []core.Content{*core.NewTextContent("user", "2+2?")},
		Config:   model.GenerateConfig{Temperature: model.Temperature(0.1), MaxOutputTokens: 64},
	}
	resp, err := model.Collect(context.Background(), m, req)
	require.NoError(t, err)

	assert.Equal(t, "four", resp.Content.Text())
	assert.Equal(t, 6, resp.Usage.TotalTokens)
	assert.InDelta(t, 0.1, captured["temperature"], 1e-9)
	assert.EqualValues(t, 64, captured["max_completion_tokens"])
}
