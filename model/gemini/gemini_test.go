package gemini

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/model"
)

func TestToGenaiContents(t *testing.T) {
	contents, system := toGenaiContents([]core.Content{
		*core.NewTextContent("system", "be precise"),
		*core.NewTextContent("user", "compute"),
		{Role: "assistant", Parts: []core.Part{core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c1", Name: "calc", Arguments: `{"x":2}`}}}},
		{Role: "tool", Parts: []core.Part{core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{ID: "c1", Name: "calc", Response: 4.0}}}},
		*core.NewTextContent("user", "thanks"),
	})

	assert.Equal(t, []string{"be precise"}, system)
	require.Len(t, contents, 3)
	assert.Equal(t, genai.RoleUser, contents[0].Role)
	assert.Equal(t, genai.RoleModel, contents[1].Role)
	assert.Equal(t, map[string]any{"x": float64(2)}, contents[1].Parts[0].FunctionCall.Args)

	// tool response and the following user text merge into one user turn
	assert.Equal(t, genai.RoleUser, contents[2].Role)
	require.Len(t, contents[2].Parts, 2)
	assert.Equal(t, map[string]any{"output": 4.0}, contents[2].Parts[0].FunctionResponse.Response)
	assert.Equal(t, "thanks", contents[2].Parts[1].Text)
}

func TestFunctionResponseError(t *testing.T) {
	fr := toGenaiFunctionResponse(core.FunctionResponse{ID: "c1", Name: "calc", Error: "boom"})
	assert.Equal(t, map[string]any{"error": "boom"}, fr.Response)
}

func TestFromGenaiParts_CodeExecution(t *testing.T) {
	parts := fromGenaiParts([]*genai.Part{
		genai.NewPartFromText("Let me compute."),
		genai.NewPartFromExecutableCode("print(1+1)", genai.LanguagePython),
		genai.NewPartFromCodeExecutionResult(genai.OutcomeOK, "2\n"),
		{Text: "hidden", Thought: true},
		{FunctionCall: &genai.FunctionCall{Name: "lookup", Args: map[string]any{"q": "x"}}},
	})

	require.Len(t, parts, 3)
	assert.Equal(t, core.TextPart{Text: "Let me compute."}, parts[0])
	assert.Equal(t, core.CodeExecutionPart{Language: "PYTHON", Code: "print(1+1)", Outcome: "OUTCOME_OK", Output: "2\n"}, parts[1])

	fc, ok := parts[2].(core.FunctionCallPart)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(fc.FunctionCall.ID, "call_"))
	assert.JSONEq(t, `{"q":"x"}`, fc.FunctionCall.Arguments)
}

func TestAppendMerged(t *testing.T) {
	parts := appendMerged(nil, core.TextPart{Text: "Hel"})
	parts = appendMerged(parts, core.TextPart{Text: "lo"}, core.CodeExecutionPart{Code: "1+1"})
	parts = appendMerged(parts, core.CodeExecutionPart{Outcome: "OUTCOME_OK", Output: "2"})

	require.Len(t, parts, 2)
	assert.Equal(t, core.TextPart{Text: "Hello"}, parts[0])
	assert.Equal(t, core.CodeExecutionPart{Code: "1+1", Outcome: "OUTCOME_OK", Output: "2"}, parts[1])
}

func TestBuildConfig(t *testing.T) {
	m := NewModelFromClient(nil, func(o *Options) { o.MaxTokens = 100 })

	cfg := m.buildConfig(model.Request{
		Instructions:  "root",
		CodeExecution: true,
		Config:        model.GenerateConfig{Temperature: model.Temperature(0.1), MaxOutputTokens: 2048},
		Tools: []model.ToolDefinition{{Type: "function", Function: model.FunctionDefinition{
			Name: "calc", Parameters: map[string]any{"type": "object"},
		}}},
	}, []string{"extra"})

	require.NotNil(t, cfg.SystemInstruction)
	assert.Equal(t, "root\n\nextra", cfg.SystemInstruction.Parts[0].Text)
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.1, *cfg.Temperature, 1e-6)
	assert.EqualValues(t, 2048, cfg.MaxOutputTokens)
	require.Len(t, cfg.Tools, 2)
	assert.Equal(t, "calc", cfg.Tools[0].FunctionDeclarations[0].Name)
	assert.NotNil(t, cfg.Tools[1].CodeExecution)
}

func TestFromLiveServerMessage(t *testing.T) {
	resp := fromLiveServerMessage(&genai.LiveServerMessage{
		ServerContent: &genai.LiveServerContent{
			ModelTurn:           &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{genai.NewPartFromBytes([]byte{1, 2}, "audio/pcm")}},
			TurnComplete:        true,
			OutputTranscription: &genai.Transcription{Text: "hello"},
		},
		ToolCall: &genai.LiveServerToolCall{FunctionCalls: []*genai.FunctionCall{{ID: "f1", Name: "get_time"}}},
	})

	require.NotNil(t, resp.Content)
	assert.Equal(t, core.BlobPart{Blob: core.Blob{Data: []byte{1, 2}, MIMEType: "audio/pcm"}}, resp.Content.Parts[0])
	assert.True(t, resp.TurnComplete)
	assert.Equal(t, "hello", resp.OutputTranscription)
	require.Len(t, resp.FunctionCalls, 1)
	assert.Equal(t, "f1", resp.FunctionCalls[0].ID)
}

func TestToLiveConnectConfig(t *testing.T) {
	cfg := toLiveConnectConfig(model.LiveConfig{
		ResponseModalities:  []string{"audio"},
		Voice:               "Puck",
		Config:              model.GenerateConfig{Temperature: model.Temperature(0.8), MaxOutputTokens: 150},
		OutputTranscription: true,
	})

	assert.Equal(t, []genai.Modality{genai.ModalityAudio}, cfg.ResponseModalities)
	assert.Equal(t, "Puck", cfg.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName)
	assert.EqualValues(t, 150, cfg.MaxOutputTokens)
	assert.NotNil(t, cfg.OutputAudioTranscription)
	assert.Nil(t, cfg.InputAudioTranscription)
}

func TestModel_GenerateNonStreaming(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "four"}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 3, "candidatesTokenCount": 1, "totalTokenCount": 4}
		}`))
	}))
	defer srv.Close()

	m, err := NewModel(context.Background(), func(o *Options) {
		o.APIKey = "test"
		o.BaseURL = srv.URL
	})
	require.NoError(t, err)

	resp, err := model.Collect(context.Background(), m, model.Request{
		Contents: []core.Content{*core.NewTextContent("user", "2+2?")},
	})
	require.NoError(t, err)

	assert.Contains(t, path, "gemini-2.0-flash:generateContent")
	assert.Equal(t, "four", resp.Content.Text())
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 4, resp.Usage.TotalTokens)
}
