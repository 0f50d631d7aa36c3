package productionagent

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcookbook/config"
	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/model"
	"github.com/hupe1980/agentcookbook/runner"
	"github.com/hupe1980/agentcookbook/server"
)

func TestNew_Defaults(t *testing.T) {
	a := New(model.NewMockModel("m", "mock"), model.GenerateConfig{})

	assert.Equal(t, AgentName, a.Name())
	require.NotNil(t, a.GenerateConfig().Temperature)
	assert.Equal(t, DefaultTemperature, *a.GenerateConfig().Temperature)
	assert.Equal(t, DefaultMaxOutputTokens, a.GenerateConfig().MaxOutputTokens)
	assert.ElementsMatch(t, []string{ToolDeploymentStatus, ToolDeploymentOptions, ToolBestPractices}, a.ListTools())
}

func TestNew_RequestParameters(t *testing.T) {
	a := New(model.NewMockModel("m", "mock"), model.GenerateConfig{Temperature: model.Temperature(0.9), MaxOutputTokens: 100})

	assert.Equal(t, 0.9, *a.GenerateConfig().Temperature)
	assert.Equal(t, 100, a.GenerateConfig().MaxOutputTokens)
}

func TestTools(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	llm.Enqueue(
		model.FunctionCallResponse("c1", ToolDeploymentStatus, map[string]any{}),
		model.FunctionCallResponse("c2", ToolDeploymentOptions, map[string]any{}),
		model.FunctionCallResponse("c3", ToolBestPractices, map[string]any{}),
		model.TextResponse("All systems go."),
	)

	r := runner.New(AppName, New(llm, model.GenerateConfig{}))
	ctx := context.Background()

	sess, err := r.CreateSession(ctx, "u1", "", nil)
	require.NoError(t, err)

	events, err := r.RunSync(ctx, "u1", sess.ID, *core.NewTextContent("user", "How is the deployment doing?"))
	require.NoError(t, err)

	var results []map[string]any
	for _, ev := range events {
		for _, fr := range ev.GetFunctionResponses() {
			results = append(results, fr.Response.(map[string]any))
		}
	}
	require.Len(t, results, 3)

	assert.Equal(t, "Deployment health check successful", results[0]["report"])
	assert.Equal(t, "production", results[0]["deployment_type"])
	assert.Len(t, results[0]["features"], 6)

	options := results[1]["options"].(map[string]any)
	assert.Len(t, options, 4)
	for _, name := range []string{"local_api_server", "cloud_run", "agent_engine", "gke"} {
		opt, ok := options[name].(map[string]any)
		require.True(t, ok, name)
		assert.NotEmpty(t, opt["command"])
		assert.NotEmpty(t, opt["description"])
	}

	practices := results[2]["best_practices"].(map[string][]string)
	for _, category := range []string{"security", "monitoring", "scalability", "reliability"} {
		assert.Len(t, practices[category], 4, category)
	}
}

func TestNewFactory_ServesInvoke(t *testing.T) {
	llm := model.NewMockModel("gemini-2.0-flash", "mock")

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := config.DefaultConfig()
	s, err := server.New(cfg, func(o *server.Options) {
		o.AppName = AppName
		o.AgentName = AgentName
		o.ModelName = "gemini-2.0-flash"
		o.NewAgent = NewFactory(llm)
		o.Logger = logger
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/invoke", strings.NewReader(`{"query":"deploy status","temperature":0.2,"max_tokens":512}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp server.InvokeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Mock response to: deploy status", resp.Response)
	assert.Equal(t, "gemini-2.0-flash", resp.Model)

	reqs := llm.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, 0.2, *reqs[0].Config.Temperature)
	assert.Equal(t, 512, reqs[0].Config.MaxOutputTokens)
	assert.Len(t, reqs[0].Tools, 3)
}
