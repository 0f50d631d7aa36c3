package financeassistant

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hupe1980/agentcookbook/code"
)

// Validation errors of the calculators.
var (
	ErrInvalidPrincipal  = errors.New("principal must be positive")
	ErrInvalidRate       = errors.New("invalid interest rate")
	ErrInvalidPeriod     = errors.New("invalid time period")
	ErrInvalidLoanAmount = errors.New("invalid loan amount")
	ErrInvalidLoanTerm   = errors.New("invalid loan term")
	ErrInvalidTarget     = errors.New("invalid target amount")
	ErrInvalidReturn     = errors.New("invalid return rate")
)

// ValidationError wraps one of the validation errors with the explanation
// shown to the user.
type ValidationError struct {
	Err    error
	Report string
}

func (e *ValidationError) Error() string { return e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(err error, report string) error {
	return &ValidationError{Err: err, Report: report}
}

// DefaultAnnualReturn is assumed by MonthlySavings callers that give none.
const DefaultAnnualReturn = 0.05

// CompoundInterestResult is the outcome of CompoundInterest. Amounts are
// rounded to cents.
type CompoundInterestResult struct {
	FinalAmount    float64 `json:"final_amount"`
	InterestEarned float64 `json:"interest_earned"`
	Report         string  `json:"report"`
}

// CompoundInterest computes A = P(1 + r/n)^(nt). compoundsPerYear below one
// means yearly compounding. annualRate is a fraction between 0 and 1.
func CompoundInterest(principal, annualRate float64, years, compoundsPerYear int) (CompoundInterestResult, error) {
	if principal <= 0 {
		return CompoundInterestResult{}, invalid(ErrInvalidPrincipal, "Error: The investment principal must be greater than zero.")
	}
	if annualRate < 0 || annualRate > 1 {
		return CompoundInterestResult{}, invalid(ErrInvalidRate, "Error: The annual rate must be between 0 and 1 (e.g. 0.06 for 6%).")
	}
	if years <= 0 {
		return CompoundInterestResult{}, invalid(ErrInvalidPeriod, "Error: The investment period must be positive.")
	}
	if compoundsPerYear < 1 {
		compoundsPerYear = 1
	}

	n := float64(compoundsPerYear)
	final := principal * math.Pow(1+annualRate/n, n*float64(years))
	interest := final - principal

	return CompoundInterestResult{
		FinalAmount:    code.Round2(final),
		InterestEarned: code.Round2(interest),
		Report: fmt.Sprintf(
			"After %d years at %.1f%% annual interest (compounded %d times per year), your $%s investment will grow to $%s. That's $%s in interest earned!",
			years, annualRate*100, compoundsPerYear, money(principal, 0), money(final, 2), money(interest, 2),
		),
	}, nil
}

// LoanPaymentResult is the outcome of LoanPayment.
type LoanPaymentResult struct {
	MonthlyPayment float64 `json:"monthly_payment"`
	TotalPaid      float64 `json:"total_paid"`
	TotalInterest  float64 `json:"total_interest"`
	Report         string  `json:"report"`
}

// LoanPayment amortizes loanAmount over years with M = P[r(1+r)^n]/[(1+r)^n-1]
// on the monthly rate. Totals are computed from the unrounded payment.
func LoanPayment(loanAmount, annualRate float64, years int) (LoanPaymentResult, error) {
	if loanAmount <= 0 {
		return LoanPaymentResult{}, invalid(ErrInvalidLoanAmount, "Error: The loan amount must be positive.")
	}
	if annualRate < 0 || annualRate > 1 {
		return LoanPaymentResult{}, invalid(ErrInvalidRate, "Error: The annual rate must be between 0 and 1 (e.g. 0.045 for 4.5%).")
	}
	if years <= 0 {
		return LoanPaymentResult{}, invalid(ErrInvalidLoanTerm, "Error: The loan term must be positive.")
	}

	payment, err := code.LoanPayment(loanAmount, annualRate, float64(years))
	if err != nil {
		return LoanPaymentResult{}, err
	}

	totalPaid := loanAmount
	totalInterest := 0.0
	if annualRate > 0 {
		totalPaid = payment * float64(years*12)
		totalInterest = totalPaid - loanAmount
	}

	return LoanPaymentResult{
		MonthlyPayment: code.Round2(payment),
		TotalPaid:      code.Round2(totalPaid),
		TotalInterest:  code.Round2(totalInterest),
		Report: fmt.Sprintf(
			"For a $%s loan at %.1f%% over %d years, your monthly payment will be $%s. Over the life of the loan you will pay $%s in total, of which $%s is interest.",
			money(loanAmount, 0), annualRate*100, years, money(payment, 2), money(totalPaid, 2), money(totalInterest, 2),
		),
	}, nil
}

// MonthlySavingsResult is the outcome of MonthlySavings.
type MonthlySavingsResult struct {
	MonthlySavings   float64 `json:"monthly_savings"`
	TotalContributed float64 `json:"total_contributed"`
	InterestEarned   float64 `json:"interest_earned"`
	Report           string  `json:"report"`
}

// MonthlySavings returns the deposit that grows to targetAmount after years
// of monthly compounding at annualReturn: PMT = FV * r / ((1+r)^n - 1).
func MonthlySavings(targetAmount float64, years int, annualReturn float64) (MonthlySavingsResult, error) {
	if targetAmount <= 0 {
		return MonthlySavingsResult{}, invalid(ErrInvalidTarget, "Error: The savings goal must be positive.")
	}
	if years <= 0 {
		return MonthlySavingsResult{}, invalid(ErrInvalidPeriod, "Error: The savings period must be positive.")
	}
	if annualReturn < 0 {
		return MonthlySavingsResult{}, invalid(ErrInvalidReturn, "Error: The annual return cannot be negative.")
	}

	months := float64(years * 12)
	r := annualReturn / 12

	saving := targetAmount / months
	if r > 0 {
		saving = targetAmount * r / (math.Pow(1+r, months) - 1)
	}

	contributed := saving * months
	interest := math.Max(targetAmount-contributed, 0)

	return MonthlySavingsResult{
		MonthlySavings:   code.Round2(saving),
		TotalContributed: code.Round2(contributed),
		InterestEarned:   code.Round2(interest),
		Report: fmt.Sprintf(
			"To reach $%s in %d years with a %.1f%% annual return, you need to save $%s per month. You will contribute $%s in total and the rest comes from investment returns.",
			money(targetAmount, 0), years, annualReturn*100, money(saving, 2), money(contributed, 2),
		),
	}, nil
}

// money formats x with thousands separators, e.g. 13488.5 -> "13,488.50".
func money(x float64, decimals int) string {
	s := strconv.FormatFloat(math.Abs(x), 'f', decimals, 64)

	whole, frac, hasFrac := strings.Cut(s, ".")

	var b strings.Builder
	if x < 0 {
		b.WriteByte('-')
	}
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}
