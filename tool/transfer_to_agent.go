package tool

import (
	"github.com/hupe1980/agentcookbook/core"
)

// TransferToAgentName is the name of the transfer tool injected into agents
// that have transfer targets.
const TransferToAgentName = "transfer_to_agent"

// transferToAgentTool requests orchestration transfer to a named agent.
type transferToAgentTool struct{}

// NewTransferToAgentTool constructs the transfer tool instance.
func NewTransferToAgentTool() Tool { return &transferToAgentTool{} }

func (t *transferToAgentTool) Name() string { return TransferToAgentName }

func (t *transferToAgentTool) Description() string {
	return "Transfer the conversation to another agent by name. Use when another agent is better suited to answer."
}

func (t *transferToAgentTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"agent_name": map[string]any{"type": "string", "description": "Target agent name"},
		},
		"required": []string{"agent_name"},
	}
}

func (t *transferToAgentTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	agentName, _ := args["agent_name"].(string)
	if agentName == "" {
		// older prompts used "agent"
		agentName, _ = args["agent"].(string)
	}
	if agentName == "" {
		return nil, NewToolError(TransferToAgentName, "field 'agent_name' must be a non-empty string", CodeValidation)
	}
	tc.TransferToAgent(agentName)
	return map[string]any{"transferred": true, "agent_name": agentName}, nil
}
