package agent

import (
	"fmt"

	"github.com/hupe1980/agentcookbook/core"
)

// InstructionProvider computes a system instruction for one run, typically
// from session state. Placeholders such as {topic} in the returned text are
// still filled by the instructions processor.
type InstructionProvider interface {
	Instruction(*core.RunContext) (string, error)
}

// InstructionFunc adapts a function to InstructionProvider.
type InstructionFunc func(*core.RunContext) (string, error)

func (f InstructionFunc) Instruction(runCtx *core.RunContext) (string, error) { return f(runCtx) }

// Instruction is the system prompt of a ModelAgent: fixed text or a provider
// consulted on every turn. The zero value resolves to "".
type Instruction struct {
	text     string
	provider InstructionProvider
}

// StaticInstruction returns an instruction that always resolves to text.
func StaticInstruction(text string) Instruction { return Instruction{text: text} }

// DynamicInstruction resolves through p on every turn.
func DynamicInstruction(p InstructionProvider) Instruction { return Instruction{provider: p} }

func InstructionFromFunc(f func(*core.RunContext) (string, error)) Instruction {
	return Instruction{provider: InstructionFunc(f)}
}

func (i Instruction) IsStatic() bool { return i.provider == nil }

// Resolve yields the text for the current turn.
func (i Instruction) Resolve(runCtx *core.RunContext) (string, error) {
	if i.provider == nil {
		return i.text, nil
	}
	text, err := i.provider.Instruction(runCtx)
	if err != nil {
		return "", fmt.Errorf("resolve instruction: %w", err)
	}
	return text, nil
}
