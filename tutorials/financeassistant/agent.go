// Package financeassistant exposes three financial calculators as function
// tools of a single model agent. Invalid input is reported in-band as a
// result with status "error" so the model can explain it to the user.
package financeassistant

import (
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/hupe1980/agentcookbook/agent"
	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/model"
	"github.com/hupe1980/agentcookbook/tool"
)

const (
	AppName   = "finance_assistant"
	AgentName = "finance_assistant"
)

// Tool names.
const (
	ToolCompoundInterest = "calculate_compound_interest"
	ToolLoanPayment      = "calculate_loan_payment"
	ToolMonthlySavings   = "calculate_monthly_savings"
)

const instruction = `You are a helpful personal finance assistant. You can help users:
- calculate compound interest on savings and investments (calculate_compound_interest)
- calculate monthly payments of loans such as mortgages or car loans (calculate_loan_payment)
- determine how much to save each month to reach a financial goal (calculate_monthly_savings)

When users ask financial questions:
1. use the appropriate calculation tool
2. explain the results in simple language
3. give context and suggestions where relevant
4. stay encouraging and positive about their financial planning

You are not a licensed financial advisor. Remind users to consult a professional for major decisions.`

const description = `A financial calculation assistant that helps with compound interest on investments, loan and mortgage payments, and monthly savings toward financial goals. Several calculations can run at once for comparison.`

type compoundInterestArgs struct {
	Principal        float64 `json:"principal" description:"Initial investment, e.g. 10000 for $10,000"`
	AnnualRate       float64 `json:"annual_rate" description:"Annual interest rate as a decimal, e.g. 0.06 for 6%"`
	Years            int     `json:"years" description:"Number of years to compound"`
	CompoundsPerYear int     `json:"compounds_per_year,omitempty" description:"Compounding periods per year (default 1)"`
}

type loanPaymentArgs struct {
	LoanAmount float64 `json:"loan_amount" description:"Total loan amount, e.g. 300000 for $300,000"`
	AnnualRate float64 `json:"annual_rate" description:"Annual interest rate as a decimal, e.g. 0.045 for 4.5%"`
	Years      int     `json:"years" description:"Loan term in years"`
}

type monthlySavingsArgs struct {
	TargetAmount float64  `json:"target_amount" description:"Savings goal, e.g. 50000 for $50,000"`
	Years        int      `json:"years" description:"Number of years to save"`
	AnnualReturn *float64 `json:"annual_return,omitempty" description:"Expected annual return as a decimal (default 0.05)"`
}

func (r CompoundInterestResult) toolResult() map[string]any {
	return map[string]any{
		"status":          "success",
		"final_amount":    r.FinalAmount,
		"interest_earned": r.InterestEarned,
		"report":          r.Report,
	}
}

func (r LoanPaymentResult) toolResult() map[string]any {
	return map[string]any{
		"status":          "success",
		"monthly_payment": r.MonthlyPayment,
		"total_paid":      r.TotalPaid,
		"total_interest":  r.TotalInterest,
		"report":          r.Report,
	}
}

func (r MonthlySavingsResult) toolResult() map[string]any {
	return map[string]any{
		"status":            "success",
		"monthly_savings":   r.MonthlySavings,
		"total_contributed": r.TotalContributed,
		"interest_earned":   r.InterestEarned,
		"report":            r.Report,
	}
}

// failure reports err in-band. Validation errors carry their own report;
// anything else is described by what.
func failure(err error, what string) map[string]any {
	msg := err.Error()
	report := fmt.Sprintf("Error %s: %s", what, msg)

	var verr *ValidationError
	if errors.As(err, &verr) {
		report = verr.Report
	}

	return map[string]any{"status": "error", "error": sentence(msg), "report": report}
}

func sentence(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// Tools returns the three calculator tools.
func Tools() []tool.Tool {
	compound := tool.NewTypedFunctionTool(ToolCompoundInterest,
		"Calculates compound interest for savings or investments using A = P(1 + r/n)^(nt).",
		func(_ *core.ToolContext, args compoundInterestArgs) (any, error) {
			res, err := CompoundInterest(args.Principal, args.AnnualRate, args.Years, args.CompoundsPerYear)
			if err != nil {
				return failure(err, "calculating compound interest"), nil
			}
			return res.toolResult(), nil
		})

	loan := tool.NewTypedFunctionTool(ToolLoanPayment,
		"Calculates the monthly payment of a loan with the standard amortization formula.",
		func(_ *core.ToolContext, args loanPaymentArgs) (any, error) {
			res, err := LoanPayment(args.LoanAmount, args.AnnualRate, args.Years)
			if err != nil {
				return failure(err, "calculating loan payment"), nil
			}
			return res.toolResult(), nil
		})

	savings := tool.NewTypedFunctionTool(ToolMonthlySavings,
		"Calculates the monthly savings needed to reach a financial goal with monthly compounding.",
		func(_ *core.ToolContext, args monthlySavingsArgs) (any, error) {
			annualReturn := DefaultAnnualReturn
			if args.AnnualReturn != nil {
				annualReturn = *args.AnnualReturn
			}
			res, err := MonthlySavings(args.TargetAmount, args.Years, annualReturn)
			if err != nil {
				return failure(err, "calculating monthly savings"), nil
			}
			return res.toolResult(), nil
		})

	return []tool.Tool{compound, loan, savings}
}

// New builds the finance_assistant agent on llm.
func New(llm model.Model) *agent.ModelAgent {
	a := agent.NewModelAgent(AgentName, llm, func(o *agent.ModelAgentOptions) {
		o.Description = description
		o.Instruction = agent.StaticInstruction(instruction)
		o.AllowTransfer = false
	})
	a.RegisterTools(Tools()...)

	return a
}
