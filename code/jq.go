package code

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/itchyny/gojq"
)

// JQExecutor evaluates jq programs locally. On top of jq's math builtins
// (pow, log, exp, ...) it provides financial helpers:
//
//	round2                                 round the input to two decimals
//	compound(principal; rate; years; n)    compound interest final amount
//	loan_payment(principal; rate; years)   monthly payment of an amortized loan
//	fv(payment; rate; periods)             future value of an annuity
//	pv(future; rate; periods)              present value of a single amount
//	roi(final; cost)                       return on investment in percent
//	cagr(start; end; years)                compound annual growth rate
//
// Rates are decimals (0.05 for 5%).
type JQExecutor struct {
	timeout   time.Duration
	maxOutput int
	input     any
}

// JQOptions configures a JQExecutor.
type JQOptions struct {
	Timeout time.Duration
	// MaxOutputBytes caps the encoded output; a program producing more fails.
	MaxOutputBytes int
	// Input is the value bound to "." when the program runs.
	Input any
}

// DefaultMaxOutputBytes is the output cap of NewJQExecutor.
const DefaultMaxOutputBytes = 64 << 10

// NewJQExecutor creates a JQExecutor. The default timeout is five seconds.
func NewJQExecutor(optFns ...func(o *JQOptions)) *JQExecutor {
	opts := JQOptions{Timeout: 5 * time.Second, MaxOutputBytes: DefaultMaxOutputBytes}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &JQExecutor{timeout: opts.Timeout, maxOutput: opts.MaxOutputBytes, input: opts.Input}
}

// Language implements Executor.
func (e *JQExecutor) Language() string { return "jq" }

// Execute compiles and runs program. Program errors are reported through a
// failed Result; only context errors are returned as error.
func (e *JQExecutor) Execute(ctx context.Context, program string) (Result, error) {
	res := Result{Language: e.Language(), Code: program}

	query, err := gojq.Parse(strings.TrimSpace(program))
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Output = fmt.Sprintf("parse error: %v", err)
		return res, nil
	}

	compiled, err := gojq.Compile(query, financeFunctions()...)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Output = fmt.Sprintf("compile error: %v", err)
		return res, nil
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	var (
		lines []string
		size  int
	)
	iter := compiled.RunWithContext(ctx, e.input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			res.Outcome = OutcomeFailed
			res.Output = strings.Join(append(lines, "error: "+err.Error()), "\n")
			return res, nil
		}
		raw, err := gojq.Marshal(v)
		if err != nil {
			res.Outcome = OutcomeFailed
			res.Output = fmt.Sprintf("encode error: %v", err)
			return res, nil
		}
		size += len(raw) + 1
		if e.maxOutput > 0 && size > e.maxOutput {
			res.Outcome = OutcomeFailed
			res.Output = strings.Join(append(lines, fmt.Sprintf("error: output exceeds %d bytes", e.maxOutput)), "\n")
			return res, nil
		}
		lines = append(lines, string(raw))
	}

	res.Outcome = OutcomeOK
	res.Output = strings.Join(lines, "\n")
	return res, nil
}

func financeFunctions() []gojq.CompilerOption {
	return []gojq.CompilerOption{
		gojq.WithFunction("round2", 0, 0, func(v any, _ []any) any {
			x, err := toFloat(v)
			if err != nil {
				return err
			}
			return Round2(x)
		}),
		gojq.WithFunction("compound", 4, 4, numeric("compound", func(a []float64) (float64, error) {
			principal, rate, years, n := a[0], a[1], a[2], a[3]
			if n <= 0 {
				return 0, fmt.Errorf("compound: periods per year must be positive")
			}
			return principal * math.Pow(1+rate/n, n*years), nil
		})),
		gojq.WithFunction("loan_payment", 3, 3, numeric("loan_payment", func(a []float64) (float64, error) {
			return LoanPayment(a[0], a[1], a[2])
		})),
		gojq.WithFunction("fv", 3, 3, numeric("fv", func(a []float64) (float64, error) {
			payment, rate, periods := a[0], a[1], a[2]
			if rate == 0 {
				return payment * periods, nil
			}
			return payment * (math.Pow(1+rate, periods) - 1) / rate, nil
		})),
		gojq.WithFunction("pv", 3, 3, numeric("pv", func(a []float64) (float64, error) {
			return a[0] / math.Pow(1+a[1], a[2]), nil
		})),
		gojq.WithFunction("roi", 2, 2, numeric("roi", func(a []float64) (float64, error) {
			if a[1] == 0 {
				return 0, fmt.Errorf("roi: cost must not be zero")
			}
			return (a[0] - a[1]) / a[1] * 100, nil
		})),
		gojq.WithFunction("cagr", 3, 3, numeric("cagr", func(a []float64) (float64, error) {
			start, end, years := a[0], a[1], a[2]
			if start <= 0 || years <= 0 {
				return 0, fmt.Errorf("cagr: start value and years must be positive")
			}
			return math.Pow(end/start, 1/years) - 1, nil
		})),
	}
}

// numeric adapts a float function to a gojq function over its arguments.
func numeric(name string, f func([]float64) (float64, error)) func(any, []any) any {
	return func(_ any, args []any) any {
		vals := make([]float64, len(args))
		for i, a := range args {
			x, err := toFloat(a)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			vals[i] = x
		}
		out, err := f(vals)
		if err != nil {
			return err
		}
		return out
	}
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case int:
		return float64(x), nil
	case float64:
		return x, nil
	case *big.Int:
		f, _ := new(big.Float).SetInt(x).Float64()
		return f, nil
	default:
		return 0, fmt.Errorf("expected number, got %s", gojq.TypeOf(v))
	}
}

// Round2 rounds x to two decimal places.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// LoanPayment returns the monthly payment of a loan amortized over years at
// the given annual rate.
func LoanPayment(principal, annualRate, years float64) (float64, error) {
	n := years * 12
	if n <= 0 {
		return 0, fmt.Errorf("loan_payment: term must be positive")
	}
	r := annualRate / 12
	if r == 0 {
		return principal / n, nil
	}
	growth := math.Pow(1+r, n)
	return principal * r * growth / (growth - 1), nil
}
