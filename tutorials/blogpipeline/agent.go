// Package blogpipeline chains four model agents into a strict sequence. Each
// step stores its answer under an output key the next step reads from its
// instruction.
package blogpipeline

import (
	"github.com/hupe1980/agentcookbook/agent"
	"github.com/hupe1980/agentcookbook/model"
)

const (
	// AppName registers the pipeline with the engine.
	AppName = "blog_pipeline"

	// RootName is the name of the sequential root agent.
	RootName = "BlogCreationPipeline"
)

// State keys written by the pipeline steps.
const (
	KeyResearchFindings  = "research_findings"
	KeyDraftPost         = "draft_post"
	KeyEditorialFeedback = "editorial_feedback"
	KeyFinalPost         = "final_post"
)

const researcherInstruction = `You are a research assistant. Your task is to gather key facts and information about the topic the user requested.

Output a bulleted list of 5-7 key facts or insights. Focus on interesting, specific information that makes the blog post engaging.

Format:
• Fact 1
• Fact 2
• etc.

Output only the bulleted list, nothing else.`

const writerInstruction = `You are a creative blog writer. Write an engaging blog post based on the research findings below.

**Research findings:**
{research_findings}

Write a 3-4 paragraph blog post that:
- has a catchy opening
- weaves the key facts in naturally
- ends with a conclusion that sums up the topic
- uses a friendly, conversational tone

Output only the blog post, no meta commentary.`

const editorInstruction = `You are an experienced editor. Review the draft blog post below and give constructive feedback.

**Draft blog post:**
{draft_post}

Analyze the post for:
1. Clarity and flow
2. Grammar and style
3. Engagement and reader interest
4. Structure and organization

Provide a short list of concrete improvements. If the post is excellent, simply say: "No changes needed - the post is ready."

Output only the feedback, nothing else.`

const formatterInstruction = `You are a formatting specialist. Create the final version of the blog post by applying the editorial feedback to the draft.

**Original draft:**
{draft_post}

**Editorial feedback:**
{editorial_feedback}

Create the final blog post by:
1. Applying the suggested improvements
2. Formatting it as proper markdown with:
   - a compelling title (# Title)
   - section headings (## Subheading)
   - paragraph breaks
   - bold/italic emphasis where it helps

If the feedback says "No changes needed", just format the original draft nicely.

Output only the final blog post in markdown.`

type step struct {
	name, description, instruction, outputKey string
}

var steps = []step{
	{"researcher", "Researches the topic and gathers key information", researcherInstruction, KeyResearchFindings},
	{"writer", "Writes a blog post draft from the research findings", writerInstruction, KeyDraftPost},
	{"editor", "Reviews the draft and gives editorial feedback", editorInstruction, KeyEditorialFeedback},
	{"formatter", "Applies the feedback and formats the final blog post", formatterInstruction, KeyFinalPost},
}

// New builds the pipeline researcher -> writer -> editor -> formatter on llm.
func New(llm model.Model) *agent.SequentialAgent {
	children := make([]*agent.ModelAgent, 0, len(steps))
	for _, s := range steps {
		children = append(children, agent.NewModelAgent(s.name, llm, func(o *agent.ModelAgentOptions) {
			o.Description = s.description
			o.Instruction = agent.StaticInstruction(s.instruction)
			o.OutputKey = s.outputKey
			o.AllowTransfer = false
		}))
	}

	pipeline := agent.NewSequentialAgent(RootName, children[0], children[1], children[2], children[3])
	pipeline.SetDescription("Complete blog post pipeline from research to publication")

	return pipeline
}
