// Package customsession demonstrates pluggable session services. The agent
// explains how sessions are stored and can write test values through the
// backend the runner was opened with (memory://, redis:// or sqlite://).
package customsession

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/hupe1980/agentcookbook/agent"
	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/logging"
	"github.com/hupe1980/agentcookbook/model"
	"github.com/hupe1980/agentcookbook/runner"
	"github.com/hupe1980/agentcookbook/session/redisstore"
	"github.com/hupe1980/agentcookbook/session/registry"
	"github.com/hupe1980/agentcookbook/tool"
)

const (
	AppName   = "custom_session_agent"
	AgentName = "custom_session_agent"
	OutputKey = "session_result"
)

// Tool names.
const (
	ToolDescribeSession = "describe_session_info"
	ToolTestPersistence = "test_session_persistence"
	ToolRegistryInfo    = "show_service_registry_info"
	ToolBackendGuide    = "get_session_backend_guide"
)

const defaultBackend = "memory"

const instruction = `You are a helpful assistant that demonstrates custom session service registration.

You can:
- describe the current session (describe_session_info)
- write a key/value pair through the active session service and explain how it is stored (test_session_persistence)
- explain how session services are registered by URI scheme (show_service_registry_info)
- give a guide on choosing and operating a session backend (get_session_backend_guide)

Be concise and helpful. When a tool returns data, summarize the important points for the user.`

// Options configures the agent.
type Options struct {
	// Backend names the session service scheme reported by the tools.
	Backend string
	// Registry lists the registered schemes. Defaults to registry.Default().
	Registry *registry.Registry
}

type describeSessionArgs struct {
	SessionID string `json:"session_id,omitempty" description:"Session to describe, defaults to the current one"`
}

type persistenceArgs struct {
	Key   string `json:"key" description:"State key to write"`
	Value string `json:"value" description:"Value to store"`
}

type noArgs struct{}

func result(report string, data map[string]any) map[string]any {
	return map[string]any{"status": "success", "report": report, "data": data}
}

// Tools returns the four session tools bound to opts.
func Tools(opts Options) []tool.Tool {
	if opts.Backend == "" {
		opts.Backend = defaultBackend
	}
	if opts.Registry == nil {
		opts.Registry = registry.Default()
	}

	describe := tool.NewTypedFunctionTool(ToolDescribeSession,
		"Describes the current session and the session service storing it.",
		func(tc *core.ToolContext, args describeSessionArgs) (any, error) {
			id := args.SessionID
			if id == "" {
				id = tc.SessionID()
			}

			data := map[string]any{
				"session_id":      id,
				"app_name":        tc.SessionKey().AppName,
				"user_id":         tc.SessionKey().UserID,
				"storage_backend": opts.Backend,
			}
			if sess := tc.Session(); sess != nil && sess.ID == id {
				data["event_count"] = len(sess.GetEvents())
				data["state_keys"] = len(sess.StateSnapshot())
			}

			return result(fmt.Sprintf("Session %s is managed by the %s session service.", id, opts.Backend), data), nil
		})

	persist := tool.NewTypedFunctionTool(ToolTestPersistence,
		"Stores a key/value pair in the session state to demonstrate persistence.",
		func(tc *core.ToolContext, args persistenceArgs) (any, error) {
			if strings.TrimSpace(args.Key) == "" {
				return map[string]any{"status": "error", "report": "Error: key must not be empty."}, nil
			}

			tc.SetState(args.Key, args.Value)

			key := tc.SessionKey()
			data := map[string]any{
				"key":             args.Key,
				"value":           args.Value,
				"storage_backend": opts.Backend,
				"persistence":     persistence(opts.Backend),
			}
			if opts.Backend == "redis" || opts.Backend == "rediss" {
				data["redis_command"] = "redis-cli GET " + redisstore.Key(key)
			}

			return result(fmt.Sprintf("Stored '%s' = '%s' in the session state.", args.Key, args.Value), data), nil
		})

	registryInfo := tool.NewTypedFunctionTool(ToolRegistryInfo,
		"Explains how session services are registered and selected by URI scheme.",
		func(*core.ToolContext, noArgs) (any, error) {
			return result("Session services are registered by URI scheme and opened from the configured session service URI.", map[string]any{
				"registered_schemes": opts.Registry.Schemes(),
				"active_backend":     opts.Backend,
				"redis_registration": map[string]any{
					"scheme":          "redis",
					"factory_pattern": "func(ctx context.Context, uri *url.URL, opts registry.Options) (core.SessionStore, error)",
					"registration":    `registry.Register("redis", redisFactory)`,
					"usage":           "session.uri: redis://localhost:6379/0",
				},
				"key_points": []string{
					"factories receive the parsed URI and shared options such as the TTL",
					"the scheme of the URI selects the factory",
					"registering a scheme again replaces the previous factory",
					"any type implementing core.SessionStore can be plugged in",
				},
			}), nil
		})

	guide := tool.NewTypedFunctionTool(ToolBackendGuide,
		"Gives guidance on choosing and operating a session backend.",
		func(*core.ToolContext, noArgs) (any, error) {
			return result("Guide to session backends.", map[string]any{
				"why_redis": []string{
					"sessions survive restarts of the API server",
					"several replicas can share the same sessions",
					"expiry is handled by the database",
				},
				"redis_setup": map[string]any{
					"connect":     "redis://localhost:6379/0",
					"default_ttl": "24 hours per session",
					"key_layout":  "session:<app>:<user>:<session>",
				},
				"features": []string{
					"optimistic locking for concurrent event appends",
					"per session time to live",
					"listing by app and user",
				},
				"best_practices": []string{
					"use memory:// for tests and local development",
					"use sqlite:// for single node deployments",
					"use redis:// when several instances serve traffic",
					"enable TLS with rediss:// outside private networks",
				},
			}), nil
		})

	return []tool.Tool{describe, persist, registryInfo, guide}
}

func persistence(backend string) string {
	if backend == defaultBackend {
		return "In-process only, lost on restart"
	}
	return "Persistent across restarts"
}

// New builds the agent.
func New(llm model.Model, optFns ...func(o *Options)) *agent.ModelAgent {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	a := agent.NewModelAgent(AgentName, llm, func(o *agent.ModelAgentOptions) {
		o.Description = "An agent demonstrating a custom session service"
		o.Instruction = agent.StaticInstruction(instruction)
		o.OutputKey = OutputKey
		o.AllowTransfer = false
	})
	a.RegisterTools(Tools(opts)...)

	return a
}

// NewRunner opens the session service at uri through reg and returns a
// runner for the agent backed by it.
func NewRunner(ctx context.Context, llm model.Model, reg *registry.Registry, uri string, logger logging.Logger) (*runner.Runner, error) {
	if reg == nil {
		reg = registry.Default()
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid session service uri %q: %w", uri, err)
	}

	store, err := reg.Open(ctx, uri, func(o *registry.Options) { o.Logger = logger })
	if err != nil {
		return nil, err
	}

	root := New(llm, func(o *Options) {
		o.Backend = strings.ToLower(u.Scheme)
		o.Registry = reg
	})

	return runner.New(AppName, root, func(o *runner.Options) {
		o.SessionStore = store
		o.Logger = logger
	}), nil
}
