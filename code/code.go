// Package code defines code executors agents use to run model-generated
// snippets, either inside the model provider or locally.
package code

import (
	"context"
	"errors"
)

// Outcome values reported in a Result.
const (
	OutcomeOK     = "OUTCOME_OK"
	OutcomeFailed = "OUTCOME_FAILED"
)

// ErrBuiltIn is returned when a BuiltInExecutor is asked to run code locally.
var ErrBuiltIn = errors.New("built-in code execution runs inside the model provider")

// Result is the outcome of one execution.
type Result struct {
	Language string `json:"language"`
	Code     string `json:"code"`
	Outcome  string `json:"outcome"`
	Output   string `json:"output"`
}

// Executor defines the interface for executing code snippets.
type Executor interface {
	// Execute runs the given code snippet and returns its output.
	Execute(ctx context.Context, code string) (Result, error)
	// Language names the language snippets must be written in.
	Language() string
}

// BuiltInExecutor delegates execution to the model provider's own code
// execution tool. Model agents holding one set Request.CodeExecution.
type BuiltInExecutor struct{}

// NewBuiltInExecutor returns a BuiltInExecutor.
func NewBuiltInExecutor() *BuiltInExecutor { return &BuiltInExecutor{} }

// Execute always fails with ErrBuiltIn.
func (*BuiltInExecutor) Execute(context.Context, string) (Result, error) {
	return Result{}, ErrBuiltIn
}

// Language implements Executor.
func (*BuiltInExecutor) Language() string { return "python" }

// IsBuiltIn reports whether e executes inside the model provider.
func IsBuiltIn(e Executor) bool {
	_, ok := e.(*BuiltInExecutor)
	return ok
}
