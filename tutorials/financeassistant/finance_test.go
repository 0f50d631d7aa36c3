package financeassistant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/logging"
	"github.com/hupe1980/agentcookbook/model"
	"github.com/hupe1980/agentcookbook/runner"
	"github.com/hupe1980/agentcookbook/session"
	"github.com/hupe1980/agentcookbook/tool"
)

func TestCompoundInterest(t *testing.T) {
	res, err := CompoundInterest(1000, 0.05, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 1050.00, res.FinalAmount)
	assert.Equal(t, 50.00, res.InterestEarned)
	assert.Contains(t, res.Report, "grow to $1,050")

	res, err = CompoundInterest(10000, 0.06, 5, 12)
	require.NoError(t, err)
	assert.InDelta(t, 13488.50, res.FinalAmount, 0.01)
	assert.InDelta(t, 3488.50, res.InterestEarned, 0.01)
	assert.Contains(t, res.Report, "$10,000")
	assert.Contains(t, res.Report, "6.0%")

	res, err = CompoundInterest(12345.67, 0.0725, 7, 12)
	require.NoError(t, err)
	assert.Greater(t, res.FinalAmount, res.InterestEarned)
}

func TestCompoundInterest_Validation(t *testing.T) {
	tests := []struct {
		name      string
		principal float64
		rate      float64
		years     int
		want      error
	}{
		{"zero principal", 0, 0.05, 1, ErrInvalidPrincipal},
		{"negative principal", -1000, 0.05, 1, ErrInvalidPrincipal},
		{"rate above one", 1000, 1.5, 1, ErrInvalidRate},
		{"negative rate", 1000, -0.05, 1, ErrInvalidRate},
		{"zero years", 1000, 0.05, 0, ErrInvalidPeriod},
		{"negative years", 1000, 0.05, -1, ErrInvalidPeriod},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompoundInterest(tt.principal, tt.rate, tt.years, 1)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoanPayment(t *testing.T) {
	res, err := LoanPayment(300000, 0.045, 30)
	require.NoError(t, err)
	assert.InDelta(t, 1520.06, res.MonthlyPayment, 0.01)
	assert.InDelta(t, 547220.13, res.TotalPaid, 0.01)
	assert.InDelta(t, 247220.13, res.TotalInterest, 0.01)

	res, err = LoanPayment(100000, 0.05, 10)
	require.NoError(t, err)
	assert.InDelta(t, 127278.62, res.TotalPaid, 0.01)

	res, err = LoanPayment(120000, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, res.MonthlyPayment)
	assert.Equal(t, 120000.0, res.TotalPaid)
	assert.Zero(t, res.TotalInterest)

	res, err = LoanPayment(50000, 0.15, 5)
	require.NoError(t, err)
	assert.Greater(t, res.MonthlyPayment, 50000.0/60)

	_, err = LoanPayment(0, 0.05, 10)
	assert.ErrorIs(t, err, ErrInvalidLoanAmount)
	_, err = LoanPayment(100000, 1.2, 10)
	assert.ErrorIs(t, err, ErrInvalidRate)
	_, err = LoanPayment(100000, 0.05, 0)
	assert.ErrorIs(t, err, ErrInvalidLoanTerm)
}

func TestMonthlySavings(t *testing.T) {
	res, err := MonthlySavings(50000, 3, 0.05)
	require.NoError(t, err)
	assert.InDelta(t, 1290.21, res.MonthlySavings, 0.01)
	assert.Greater(t, res.TotalContributed, 0.0)
	assert.Greater(t, res.InterestEarned, 0.0)
	assert.Contains(t, res.Report, "$50,000")

	res, err = MonthlySavings(12000, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, res.MonthlySavings)
	assert.Zero(t, res.InterestEarned)

	_, err = MonthlySavings(0, 5, 0.05)
	assert.ErrorIs(t, err, ErrInvalidTarget)
	_, err = MonthlySavings(1000, 0, 0.05)
	assert.ErrorIs(t, err, ErrInvalidPeriod)
	_, err = MonthlySavings(1000, 5, -0.01)
	assert.ErrorIs(t, err, ErrInvalidReturn)
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "1,234,567.89", money(1234567.891, 2))
	assert.Equal(t, "999", money(999, 0))
	assert.Equal(t, "1,000", money(1000, 0))
	assert.Equal(t, "-12,345.60", money(-12345.6, 2))
}

func TestNew_Configuration(t *testing.T) {
	a := New(model.NewMockModel("m", "mock"))

	assert.Equal(t, AgentName, a.Name())
	assert.ElementsMatch(t, []string{ToolCompoundInterest, ToolLoanPayment, ToolMonthlySavings}, a.ListTools())
}

func TestAgent_CallsLoanTool(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	llm.Enqueue(
		model.FunctionCallResponse("call_1", ToolLoanPayment, map[string]any{"loan_amount": 300000, "annual_rate": 0.045, "years": 30}),
		model.FunctionCallResponse("call_2", ToolMonthlySavings, map[string]any{"target_amount": 0, "years": 3}),
		model.TextResponse("Your monthly payment is $1,520.06."),
	)

	r := runner.New(AppName, New(llm))
	ctx := context.Background()

	sess, err := r.CreateSession(ctx, "u1", "", nil)
	require.NoError(t, err)

	events, err := r.RunSync(ctx, "u1", sess.ID, *core.NewTextContent("user", "What is the payment of a $300,000 mortgage at 4.5% over 30 years?"))
	require.NoError(t, err)

	var responses []core.FunctionResponse
	for _, ev := range events {
		responses = append(responses, ev.GetFunctionResponses()...)
	}
	require.Len(t, responses, 2)

	loan := responses[0].Response.(map[string]any)
	assert.Equal(t, "success", loan["status"])
	assert.InDelta(t, 1520.06, loan["monthly_payment"], 0.01)

	savings := responses[1].Response.(map[string]any)
	assert.Equal(t, "error", savings["status"])
	assert.Equal(t, "Invalid target amount", savings["error"])
	assert.Contains(t, savings["report"], "must be positive")
}

func TestTools_SuccessPayloads(t *testing.T) {
	tools := toolsByName(t)

	compound := call(t, tools[ToolCompoundInterest], map[string]any{"principal": 10000, "annual_rate": 0.06, "years": 5, "compounds_per_year": 12})
	assert.ElementsMatch(t, []string{"status", "final_amount", "interest_earned", "report"}, keys(compound))
	assert.InDelta(t, 13488.50, compound["final_amount"], 0.01)

	loan := call(t, tools[ToolLoanPayment], map[string]any{"loan_amount": 300000, "annual_rate": 0.045, "years": 30})
	assert.ElementsMatch(t, []string{"status", "monthly_payment", "total_paid", "total_interest", "report"}, keys(loan))

	savings := call(t, tools[ToolMonthlySavings], map[string]any{"target_amount": 50000, "years": 3})
	assert.ElementsMatch(t, []string{"status", "monthly_savings", "total_contributed", "interest_earned", "report"}, keys(savings))
	assert.InDelta(t, 1290.21, savings["monthly_savings"], 0.01)
}

func TestTools_ErrorPayloads(t *testing.T) {
	tools := toolsByName(t)

	tests := []struct {
		name   string
		tool   string
		args   map[string]any
		err    string
		report string
	}{
		{"zero principal", ToolCompoundInterest, map[string]any{"principal": 0, "annual_rate": 0.05, "years": 1}, "Principal must be positive", "greater than zero"},
		{"compound rate", ToolCompoundInterest, map[string]any{"principal": 1000, "annual_rate": 1.5, "years": 1}, "Invalid interest rate", "between 0 and 1"},
		{"compound period", ToolCompoundInterest, map[string]any{"principal": 1000, "annual_rate": 0.05, "years": 0}, "Invalid time period", "investment period must be positive"},
		{"loan amount", ToolLoanPayment, map[string]any{"loan_amount": -1, "annual_rate": 0.05, "years": 10}, "Invalid loan amount", "must be positive"},
		{"loan rate", ToolLoanPayment, map[string]any{"loan_amount": 1000, "annual_rate": -0.1, "years": 10}, "Invalid interest rate", "0.045 for 4.5%"},
		{"loan term", ToolLoanPayment, map[string]any{"loan_amount": 1000, "annual_rate": 0.05, "years": 0}, "Invalid loan term", "loan term must be positive"},
		{"savings target", ToolMonthlySavings, map[string]any{"target_amount": 0, "years": 3}, "Invalid target amount", "savings goal must be positive"},
		{"savings period", ToolMonthlySavings, map[string]any{"target_amount": 1000, "years": 0}, "Invalid time period", "savings period must be positive"},
		{"savings return", ToolMonthlySavings, map[string]any{"target_amount": 1000, "years": 3, "annual_return": -0.01}, "Invalid return rate", "cannot be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := call(t, tools[tt.tool], tt.args)
			assert.Equal(t, "error", res["status"])
			assert.Equal(t, tt.err, res["error"])
			assert.Contains(t, res["report"], tt.report)
		})
	}
}


func toolsByName(t *testing.T) map[string]tool.Tool {
	t.Helper()
	out := make(map[string]tool.Tool)
	for _, tl := range Tools() {
		out[tl.Name()] = tl
	}
	require.Len(t, out, 3)
	return out
}

func call(t *testing.T, tl tool.Tool, args map[string]any) map[string]any {
	t.Helper()

	key := core.SessionKey{AppName: AppName, UserID: "u1", SessionID: "s1"}
	runCtx := core.NewRunContext(context.Background(), core.RunContextConfig{
		Key:          key,
		RunID:        "run-1",
		Agent:        core.AgentInfo{Name: AgentName, Type: "model"},
		Session:      core.NewSession(key),
		SessionStore: session.NewInMemoryStore(),
		Logger:       logging.NoOpLogger{},
	})

	res, err := tl.Call(core.NewToolContext(runCtx, "call-1"), args)
	require.NoError(t, err)
	return res.(map[string]any)
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
