package tool

import (
	"fmt"

	"github.com/hupe1980/agentcookbook/code"
	"github.com/hupe1980/agentcookbook/core"
)

// ExecuteCodeName is the name of the local code execution tool.
const ExecuteCodeName = "execute_code"

// NewCodeExecutionTool wraps a local executor as a tool. The result carries
// the code, outcome and output so the model can correct failed snippets.
func NewCodeExecutionTool(executor code.Executor) Tool {
	return NewFunctionTool(
		ExecuteCodeName,
		fmt.Sprintf("Execute a %s program and return its output. Use it for every calculation instead of computing by hand.", executor.Language()),
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": fmt.Sprintf("The %s program to run", executor.Language()),
				},
			},
			"required": []string{"code"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			src, _ := args["code"].(string)
			res, err := executor.Execute(tc.Context(), src)
			if err != nil {
				return nil, err
			}
			tc.LogDebug("tool.code.executed", "language", res.Language, "outcome", res.Outcome)
			return res, nil
		},
	)
}
