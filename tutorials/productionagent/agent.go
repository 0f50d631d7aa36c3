// Package productionagent is the agent served by the production API server.
// Its tools report deployment health and give guidance on deployment targets
// and operational best practices.
package productionagent

import (
	"github.com/hupe1980/agentcookbook/agent"
	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/model"
	"github.com/hupe1980/agentcookbook/server"
	"github.com/hupe1980/agentcookbook/tool"
)

const (
	AppName   = "production_deployment"
	AgentName = "production_deployment_agent"

	DefaultTemperature     = 0.5
	DefaultMaxOutputTokens = 2048
)

// Tool names.
const (
	ToolDeploymentStatus  = "check_deployment_status"
	ToolDeploymentOptions = "get_deployment_options"
	ToolBestPractices     = "get_best_practices"
)

const instruction = `You are a production deployment assistant that helps users understand how agents are deployed and operated.

You can:
- check the deployment status and health (check_deployment_status)
- explain the available deployment targets (get_deployment_options)
- share best practices for running agents in production (get_best_practices)

Give clear, practical answers. Mention security and monitoring where it matters.`

type noArgs struct{}

// Tools returns the deployment tools.
func Tools() []tool.Tool {
	status := tool.NewTypedFunctionTool(ToolDeploymentStatus,
		"Checks the current deployment status and health.",
		func(*core.ToolContext, noArgs) (any, error) {
			return map[string]any{
				"status":          "success",
				"report":          "Deployment health check successful",
				"deployment_type": "production",
				"features": []string{
					"health checks",
					"request metrics",
					"structured logging",
					"request timeouts",
					"CORS",
					"API key authentication",
				},
			}, nil
		})

	options := tool.NewTypedFunctionTool(ToolDeploymentOptions,
		"Lists the available deployment targets with their features.",
		func(*core.ToolContext, noArgs) (any, error) {
			return map[string]any{
				"status": "success",
				"report": "Four deployment options are available.",
				"options": map[string]any{
					"local_api_server": map[string]any{
						"command":     "cookbook serve",
						"description": "Run the API server locally for development and testing",
						"features":    []string{"hot configuration via environment", "in-memory sessions", "websocket streaming"},
					},
					"cloud_run": map[string]any{
						"command":     "gcloud run deploy --source .",
						"description": "Serverless container deployment with automatic scaling",
						"features":    []string{"scale to zero", "managed TLS", "pay per request"},
					},
					"agent_engine": map[string]any{
						"command":     "gcloud ai reasoning-engines create",
						"description": "Managed agent hosting with built-in session handling",
						"features":    []string{"managed sessions", "built-in tracing", "no infrastructure"},
					},
					"gke": map[string]any{
						"command":     "kubectl apply -f deployment.yaml",
						"description": "Kubernetes deployment for full control over scaling and networking",
						"features":    []string{"horizontal pod autoscaling", "shared redis sessions", "custom networking"},
					},
				},
			}, nil
		})

	practices := tool.NewTypedFunctionTool(ToolBestPractices,
		"Returns best practices for production agent deployments.",
		func(*core.ToolContext, noArgs) (any, error) {
			return map[string]any{
				"status": "success",
				"report": "Production best practices by category.",
				"best_practices": map[string][]string{
					"security": {
						"require API keys in production",
						"restrict CORS origins",
						"keep secrets in environment variables or a secret manager",
						"validate and bound every request",
					},
					"monitoring": {
						"expose Prometheus metrics",
						"log structured JSON with request IDs",
						"alert on error rate and latency",
						"track timeouts separately from errors",
					},
					"scalability": {
						"store sessions in redis when running several replicas",
						"bound concurrent invocations",
						"set request timeouts",
						"scale horizontally behind a load balancer",
					},
					"reliability": {
						"report health from recent error rate",
						"retry transient model errors with backoff",
						"shut down gracefully",
						"never leak internal errors to clients",
					},
				},
			}, nil
		})

	return []tool.Tool{status, options, practices}
}

// New builds the agent with the sampling parameters of cfg. Zero fields fall
// back to the defaults.
func New(llm model.Model, cfg model.GenerateConfig) *agent.ModelAgent {
	if cfg.Temperature == nil {
		cfg.Temperature = model.Temperature(DefaultTemperature)
	}
	if cfg.MaxOutputTokens == 0 {
		cfg.MaxOutputTokens = DefaultMaxOutputTokens
	}

	a := agent.NewModelAgent(AgentName, llm, func(o *agent.ModelAgentOptions) {
		o.Description = "Production deployment assistant"
		o.Instruction = agent.StaticInstruction(instruction)
		o.GenerateConfig = cfg
		o.AllowTransfer = false
	})
	a.RegisterTools(Tools()...)

	return a
}

// NewFactory returns the per request agent factory of the API server.
func NewFactory(llm model.Model) server.AgentFactory {
	return func(cfg model.GenerateConfig) core.Agent {
		return New(llm, cfg)
	}
}
