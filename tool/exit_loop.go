package tool

import (
	"github.com/hupe1980/agentcookbook/core"
)

// ExitLoopName is the name of the loop termination tool.
const ExitLoopName = "exit_loop"

// NewExitLoopTool returns a tool that ends the enclosing loop agent by
// escalating. Call it only when the loop's goal has been reached.
func NewExitLoopTool() Tool {
	return NewFunctionTool(
		ExitLoopName,
		"Call this function ONLY when the work is complete and no further iterations are needed, signaling the iterative process should end.",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(tc *core.ToolContext, _ map[string]any) (any, error) {
			tc.Escalate()
			return map[string]any{"text": "Loop exited successfully. The agent has determined the task is fully resolved."}, nil
		},
	)
}
