package flow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/agentcookbook/core"
	internalutil "github.com/hupe1980/agentcookbook/internal/util"
	"github.com/hupe1980/agentcookbook/model"
	"github.com/hupe1980/agentcookbook/tool"
)

// injectState resolves {key} placeholders against the run state and
// {artifact.name} against the artifact store.
func injectState(runCtx *core.RunContext, text string) (string, error) {
	return internalutil.InjectState(text, runCtx.GetState, func(name string) (string, error) {
		data, err := runCtx.GetArtifact(name)
		if err != nil {
			return "", err
		}
		return string(data), nil
	})
}

// InstructionsProcessor resolves the agent instruction and injects session
// state into it.
type InstructionsProcessor struct{}

// NewInstructionsProcessor creates a new instructions processor.
func NewInstructionsProcessor() *InstructionsProcessor { return &InstructionsProcessor{} }

// Name returns the processor's identifier.
func (p *InstructionsProcessor) Name() string { return "instructions" }

// ProcessRequest appends the resolved instruction to req.Instructions.
func (p *InstructionsProcessor) ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error {
	instructions, err := agent.ResolveInstructions(runCtx)
	if err != nil {
		return fmt.Errorf("failed to resolve instruction: %w", err)
	}

	rendered, err := injectState(runCtx, instructions)
	if err != nil {
		return err
	}

	runCtx.LogDebug("agent.instruction.resolved", "agent", agent.GetName(), "length", len(rendered))

	req.Instructions = joinInstructions(req.Instructions, rendered)

	return nil
}

// GlobalInstructionProcessor prepends the tree-wide instruction.
type GlobalInstructionProcessor struct{}

// NewGlobalInstructionProcessor creates a new global instruction processor.
func NewGlobalInstructionProcessor() *GlobalInstructionProcessor {
	return &GlobalInstructionProcessor{}
}

// Name returns the processor's identifier.
func (p *GlobalInstructionProcessor) Name() string { return "global_instruction" }

// ProcessRequest prepends the global instruction, if any.
func (p *GlobalInstructionProcessor) ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error {
	global, err := agent.ResolveGlobalInstruction(runCtx)
	if err != nil {
		return fmt.Errorf("failed to resolve global instruction: %w", err)
	}
	if global == "" {
		return nil
	}

	rendered, err := injectState(runCtx, global)
	if err != nil {
		return err
	}

	req.Instructions = joinInstructions(rendered, req.Instructions)

	return nil
}

func joinInstructions(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "\n\n" + b
	}
}

// ContentsProcessor builds the conversation sent to the model from the
// session history visible on the current branch.
type ContentsProcessor struct{}

// NewContentsProcessor creates a new contents processor.
func NewContentsProcessor() *ContentsProcessor { return &ContentsProcessor{} }

// Name returns the processor's identifier.
func (p *ContentsProcessor) Name() string { return "contents" }

// ProcessRequest fills req.Contents.
//
// Replies of other agents are rewritten as user context so that every model
// sees a well formed conversation of its own turns.
func (p *ContentsProcessor) ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error {
	var events []core.Event
	if runCtx.Session != nil {
		events = runCtx.Session.GetConversationHistory()
	}

	contents := make([]core.Content, 0, len(events)+1)
	for _, ev := range events {
		if ev.Content == nil || len(ev.Content.Parts) == 0 {
			continue
		}
		if !belongsToBranch(runCtx.Branch, ev) {
			continue
		}
		if ev.Author != "user" && ev.Author != agent.GetName() {
			if c, ok := otherAgentContent(ev); ok {
				contents = append(contents, c)
			}
			continue
		}
		contents = append(contents, *ev.Content)
	}

	if len(contents) == 0 && len(runCtx.UserContent.Parts) > 0 {
		uc := runCtx.UserContent
		if uc.Role == "" {
			uc.Role = "user"
		}
		contents = append(contents, uc)
	}

	if limit := agent.MaxHistoryMessages(); limit > 0 && len(contents) > limit {
		contents = contents[len(contents)-limit:]
		// a truncated window must not open with orphaned tool results
		for len(contents) > 1 && contents[0].Role == "tool" {
			contents = contents[1:]
		}
	}

	req.Contents = contents
	return nil
}

// belongsToBranch reports whether ev is visible on branch. Events of
// ancestor branches are visible, those of sibling branches are not.
func belongsToBranch(branch string, ev core.Event) bool {
	if branch == "" || ev.Branch == nil || *ev.Branch == "" {
		return true
	}
	eb := *ev.Branch
	return branch == eb || strings.HasPrefix(branch, eb+".")
}

// otherAgentContent presents an event authored by another agent as user
// context.
func otherAgentContent(ev core.Event) (core.Content, bool) {
	parts := []core.Part{core.TextPart{Text: "For context:"}}
	for _, part := range ev.Content.Parts {
		switch p := part.(type) {
		case core.TextPart:
			if strings.TrimSpace(p.Text) == "" {
				continue
			}
			parts = append(parts, core.TextPart{Text: fmt.Sprintf("[%s] said: %s", ev.Author, p.Text)})
		case core.FunctionCallPart:
			parts = append(parts, core.TextPart{Text: fmt.Sprintf("[%s] called tool `%s` with parameters: %s", ev.Author, p.FunctionCall.Name, p.FunctionCall.Arguments)})
		case core.FunctionResponsePart:
			result := p.FunctionResponse.Response
			if p.FunctionResponse.Error != "" {
				result = map[string]any{"error": p.FunctionResponse.Error}
			}
			raw, _ := json.Marshal(result)
			parts = append(parts, core.TextPart{Text: fmt.Sprintf("[%s] `%s` tool returned result: %s", ev.Author, p.FunctionResponse.Name, raw)})
		case core.CodeExecutionPart:
			parts = append(parts, core.TextPart{Text: fmt.Sprintf("[%s] executed code:\n%s\nOutput: %s", ev.Author, p.Code, p.Output)})
		}
	}
	if len(parts) == 1 {
		return core.Content{}, false
	}
	return core.Content{Role: "user", Parts: parts}, true
}

// TransferToolInjector declares transfer_to_agent and lists the agents
// control can be handed to.
type TransferToolInjector struct{}

// NewTransferToolInjector creates a new transfer tool injector.
func NewTransferToolInjector() *TransferToolInjector { return &TransferToolInjector{} }

// Name returns the processor's identifier.
func (p *TransferToolInjector) Name() string { return "transfer_tool_injector" }

// ProcessRequest adds the transfer tool declaration once and appends the
// target list to the instructions.
func (p *TransferToolInjector) ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error {
	targets := agent.GetSubAgents()
	if !agent.IsTransferEnabled() || len(targets) == 0 {
		return nil
	}

	declared := false
	for _, td := range req.Tools {
		if td.Function.Name == tool.TransferToAgentName {
			declared = true
			break
		}
	}
	if !declared {
		t := tool.NewTransferToAgentTool()
		req.Tools = append(req.Tools, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}

	if strings.Contains(req.Instructions, "You can transfer the conversation") {
		return nil
	}

	var b strings.Builder
	b.WriteString("You can transfer the conversation to one of these agents with the transfer_to_agent tool when it is better suited to answer:\n")
	for _, t := range targets {
		fmt.Fprintf(&b, "- %s: %s\n", t.GetName(), t.Description())
	}
	req.Instructions = joinInstructions(req.Instructions, strings.TrimRight(b.String(), "\n"))

	runCtx.LogDebug("agent.transfer.targets", "agent", agent.GetName(), "count", len(targets))

	return nil
}

// OutputKeyProcessor stores the final response text in the session state
// under the agent's output key.
type OutputKeyProcessor struct{}

// NewOutputKeyProcessor creates a new output key processor.
func NewOutputKeyProcessor() *OutputKeyProcessor { return &OutputKeyProcessor{} }

// Name returns the processor's identifier.
func (p *OutputKeyProcessor) Name() string { return "output_key" }

// ProcessResponse stages the text of final responses without function calls.
func (p *OutputKeyProcessor) ProcessResponse(runCtx *core.RunContext, resp *model.Response, agent FlowAgent) error {
	key := agent.GetOutputKey()
	if key == "" || resp.Partial {
		return nil
	}
	for _, part := range resp.Content.Parts {
		if _, ok := part.(core.FunctionCallPart); ok {
			return nil
		}
	}

	text := resp.Content.Text()
	if text == "" {
		return nil
	}

	runCtx.SetState(key, text)
	return nil
}
