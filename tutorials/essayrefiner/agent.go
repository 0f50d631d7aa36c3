// Package essayrefiner writes a first draft once and then iterates a critic
// and a refiner until the critic approves and the refiner calls exit_loop.
package essayrefiner

import (
	"github.com/hupe1980/agentcookbook/agent"
	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/model"
	"github.com/hupe1980/agentcookbook/tool"
)

const (
	AppName  = "essay_refiner"
	RootName = "EssayRefinementSystem"
	LoopName = "RefinementLoop"

	// MaxIterations bounds the critic/refiner loop.
	MaxIterations = 5

	// ApprovalPhrase is the exact critique that ends the loop.
	ApprovalPhrase = "APPROVED - Essay is complete."
)

// State keys.
const (
	KeyCurrentEssay = "current_essay"
	KeyCritique     = "critique"
)

const writerInstruction = `You are a creative writer. Write a first draft of an essay on the topic the user requested.

Write 3-4 paragraphs:
- an opening paragraph with a thesis
- 1-2 body paragraphs with supporting arguments
- a concluding paragraph

Don't worry about perfection, this is only the first draft.

Output only the essay text, no meta commentary.`

const criticInstruction = `You are an experienced essay critic and writing tutor. Review the essay below and assess its quality.

**Essay to review:**
{current_essay}

**Criteria:**
- clear thesis and organization
- strong supporting arguments
- good grammar and style
- engaging, coherent writing

**Your task:**
If the essay meets all criteria (it need not be perfect, only solid):
  Output this exact phrase: '` + ApprovalPhrase + `'

Otherwise, if the essay needs work:
  Give 2-3 specific, actionable improvements. Be constructive and clear.
  Example: 'Thesis is vague - be more specific about X.'

Output only the approval phrase or the specific feedback.`

const refinerInstruction = `You are an essay editor. Read the critique below and act on it.

**Current essay:**
{current_essay}

**Critique:**
{critique}

**Your task:**
If the critique says '` + ApprovalPhrase + `':
  Call the 'exit_loop' function immediately. Do not output any text.

Otherwise (the critique contains improvements):
  Apply them to produce a better version of the essay.
  Output only the improved essay text, no explanations.
  Do not call any function while improving the essay.

You must either call exit_loop or output the improved essay, never both.`

// New builds InitialWriter followed by RefinementLoop(Critic, Refiner).
func New(llm model.Model) *agent.SequentialAgent {
	writer := agent.NewModelAgent("InitialWriter", llm, func(o *agent.ModelAgentOptions) {
		o.Description = "Writes the first draft of the essay"
		o.Instruction = agent.StaticInstruction(writerInstruction)
		o.OutputKey = KeyCurrentEssay
		o.AllowTransfer = false
	})

	critic := agent.NewModelAgent("Critic", llm, func(o *agent.ModelAgentOptions) {
		o.Description = "Evaluates essay quality and gives feedback"
		o.Instruction = agent.StaticInstruction(criticInstruction)
		o.OutputKey = KeyCritique
		o.AllowTransfer = false
	})

	refiner := agent.NewModelAgent("Refiner", llm, func(o *agent.ModelAgentOptions) {
		o.Description = "Improves the essay from the critique or signals completion"
		o.Instruction = agent.StaticInstruction(refinerInstruction)
		o.OutputKey = KeyCurrentEssay
		o.AllowTransfer = false
	})
	refiner.RegisterTool(tool.NewExitLoopTool())

	loop := agent.NewLoopAgent(LoopName, []core.Agent{critic, refiner}, agent.WithMaxIters(MaxIterations))

	root := agent.NewSequentialAgent(RootName, writer, loop)
	root.SetDescription("Complete essay writing and refinement system")

	return root
}
