package tool

import (
	"fmt"
	"slices"
	"strings"

	"github.com/hupe1980/agentcookbook/core"
)

// NewStateTools returns get_state, set_state and list_state. Writes are
// recorded on the function response event and persisted with it.
func NewStateTools() []Tool {
	return []Tool{
		NewFunctionTool(
			"get_state",
			"Read a value from the session state.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"key": map[string]any{"type": "string", "description": "State key"},
				},
				"required": []string{"key"},
			},
			func(tc *core.ToolContext, args map[string]any) (any, error) {
				key, _ := args["key"].(string)
				value, exists := tc.GetState(key)
				return map[string]any{"key": key, "exists": exists, "value": value}, nil
			},
		),
		NewFunctionTool(
			"set_state",
			"Write a value to the session state. Keys prefixed with temp: last for the current invocation only.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"key":   map[string]any{"type": "string", "description": "State key"},
					"value": map[string]any{"description": "Value to store (any JSON type)"},
				},
				"required": []string{"key", "value"},
			},
			func(tc *core.ToolContext, args map[string]any) (any, error) {
				key, _ := args["key"].(string)
				if strings.TrimSpace(key) == "" {
					return nil, NewToolError("set_state", "key must not be empty", CodeValidation)
				}
				tc.SetState(key, args["value"])
				return map[string]any{
					"key":     key,
					"success": true,
					"message": fmt.Sprintf("State key '%s' set successfully", key),
				}, nil
			},
		),
		NewFunctionTool(
			"list_state",
			"List the session state keys, optionally filtered by prefix.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"prefix": map[string]any{"type": "string", "description": "Only keys with this prefix"},
				},
			},
			func(tc *core.ToolContext, args map[string]any) (any, error) {
				prefix, _ := args["prefix"].(string)
				snapshot := tc.StateSnapshot()
				keys := make([]string, 0, len(snapshot))
				for k := range snapshot {
					if strings.HasPrefix(k, prefix) {
						keys = append(keys, k)
					}
				}
				slices.Sort(keys)
				return map[string]any{"keys": keys, "count": len(keys)}, nil
			},
		),
	}
}

// NewArtifactTools returns save_artifact, load_artifact and list_artifacts.
func NewArtifactTools() []Tool {
	return []Tool{
		NewFunctionTool(
			"save_artifact",
			"Save text as a named artifact of this session.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"artifact_id": map[string]any{"type": "string", "description": "Artifact name"},
					"data":        map[string]any{"type": "string", "description": "Artifact content"},
				},
				"required": []string{"artifact_id", "data"},
			},
			func(tc *core.ToolContext, args map[string]any) (any, error) {
				id, _ := args["artifact_id"].(string)
				data, _ := args["data"].(string)
				if err := tc.SaveArtifact(id, []byte(data)); err != nil {
					return nil, fmt.Errorf("failed to save artifact: %w", err)
				}
				return map[string]any{"artifact_id": id, "size": len(data), "success": true}, nil
			},
		),
		NewFunctionTool(
			"load_artifact",
			"Load a named artifact of this session.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"artifact_id": map[string]any{"type": "string", "description": "Artifact name"},
				},
				"required": []string{"artifact_id"},
			},
			func(tc *core.ToolContext, args map[string]any) (any, error) {
				id, _ := args["artifact_id"].(string)
				data, err := tc.LoadArtifact(id)
				if err != nil {
					return nil, fmt.Errorf("failed to load artifact: %w", err)
				}
				return map[string]any{"artifact_id": id, "data": string(data), "size": len(data)}, nil
			},
		),
		NewFunctionTool(
			"list_artifacts",
			"List the artifacts saved in this session.",
			map[string]any{"type": "object", "properties": map[string]any{}},
			func(tc *core.ToolContext, _ map[string]any) (any, error) {
				ids, err := tc.ListArtifacts()
				if err != nil {
					return nil, fmt.Errorf("failed to list artifacts: %w", err)
				}
				return map[string]any{"artifacts": ids, "count": len(ids)}, nil
			},
		),
	}
}

// NewMemoryTools returns search_memory and store_memory.
func NewMemoryTools() []Tool {
	return []Tool{
		NewFunctionTool(
			"search_memory",
			"Search long-term memory for content relevant to a query.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string", "description": "Search query"},
					"limit": map[string]any{"type": "integer", "description": "Maximum results (default 10)", "minimum": 1},
				},
				"required": []string{"query"},
			},
			func(tc *core.ToolContext, args map[string]any) (any, error) {
				query, _ := args["query"].(string)
				limit := 10
				if l, ok := args["limit"].(float64); ok {
					limit = int(l)
				}
				results, err := tc.SearchMemory(query, limit)
				if err != nil {
					return nil, fmt.Errorf("failed to search memory: %w", err)
				}
				return map[string]any{"query": query, "count": len(results), "results": results}, nil
			},
		),
		NewFunctionTool(
			"store_memory",
			"Store a piece of information in long-term memory.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"content":  map[string]any{"type": "string", "description": "Content to remember"},
					"metadata": map[string]any{"type": "object", "description": "Optional metadata"},
				},
				"required": []string{"content"},
			},
			func(tc *core.ToolContext, args map[string]any) (any, error) {
				content, _ := args["content"].(string)
				metadata, _ := args["metadata"].(map[string]any)
				if metadata == nil {
					metadata = map[string]any{}
				}
				if err := tc.StoreMemory(content, metadata); err != nil {
					return nil, fmt.Errorf("failed to store memory: %w", err)
				}
				return map[string]any{"success": true, "message": "Memory stored successfully"}, nil
			},
		),
	}
}
