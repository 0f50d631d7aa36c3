// Package codecalculator builds a financial calculator that delegates every
// computation to a code executor: the provider's built-in execution on
// Gemini, a local jq interpreter everywhere else.
package codecalculator

import (
	"strings"

	"github.com/hupe1980/agentcookbook/agent"
	"github.com/hupe1980/agentcookbook/code"
	"github.com/hupe1980/agentcookbook/model"
)

const (
	AppName   = "code_calculator"
	AgentName = "FinancialCalculator"

	Temperature     = 0.1
	MaxOutputTokens = 2048
)

const baseInstruction = `You are an expert financial calculator that uses code execution for precise calculations.

**Capabilities:**
- compound interest
- loan payments and amortization schedules
- present and future value
- retirement planning and savings goals
- investment returns (ROI, CAGR)
- break-even analysis
- statistics over financial data

**Rules:**
1. Always use code for calculations. Never approximate or estimate.
2. Show the code you run so the user can follow the logic.
3. Briefly explain the formula or concept you apply.
4. Format currency with $ and thousands separators, rounded to 2 decimals.
5. Explain in plain language what the numbers mean.
6. Check for invalid input (negative values, zero rates, ...) and give helpful error messages.

**Formulas:**
- Compound interest: A = P(1 + r/n)^(nt)
- Loan payment: M = P[r(1+r)^n]/[(1+r)^n-1]
- Present value: PV = FV / (1 + r)^n
- Future value: FV = PV * (1 + r)^n
- ROI: (final value - initial value) / initial value * 100
- CAGR: (end value / start value)^(1/years) - 1

**Error handling:**
- check for division by zero
- verify interest rates are reasonable (usually 0-50%)
- make sure time periods are positive
- verify principal amounts are positive

Always run code for accuracy.`

const jqInstruction = `

**Code execution:**
Call the execute_code tool with a jq program. Besides jq's math builtins (pow, log, exp) these helpers exist:
- round2
- compound(principal; rate; years; n)
- loan_payment(principal; rate; years)
- fv(payment; rate; periods)
- pv(future; rate; periods)
- roi(final; cost)
- cagr(start; end; years)
Rates are decimals, e.g. 0.05 for 5%. Example: loan_payment(300000; 0.045; 30) | round2`

// ExecutorFor picks the built-in executor for Gemini models and a local jq
// executor for every other provider.
func ExecutorFor(llm model.Model) code.Executor {
	if strings.EqualFold(llm.Info().Provider, "gemini") {
		return code.NewBuiltInExecutor()
	}
	return code.NewJQExecutor()
}

// New builds the FinancialCalculator agent. A nil executor selects
// ExecutorFor(llm).
func New(llm model.Model, executor code.Executor) *agent.ModelAgent {
	if executor == nil {
		executor = ExecutorFor(llm)
	}

	instruction := baseInstruction
	if !code.IsBuiltIn(executor) {
		instruction += jqInstruction
	}

	return agent.NewModelAgent(AgentName, llm, func(o *agent.ModelAgentOptions) {
		o.Description = "Expert financial calculator with code execution"
		o.Instruction = agent.StaticInstruction(instruction)
		o.CodeExecutor = executor
		o.GenerateConfig = model.GenerateConfig{
			Temperature:     model.Temperature(Temperature),
			MaxOutputTokens: MaxOutputTokens,
		}
		o.AllowTransfer = false
	})
}
