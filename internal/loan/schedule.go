// Package loan computes repayment schedules for monthly-installment loans.
package loan

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/homebudget/internal/model"
)

// ratePrecision is the number of decimal places kept for the monthly rate
// and the compounding factor.
const ratePrecision = 20

var (
	ErrUnknownType     = errors.New("unknown loan type")
	ErrNoInstallments  = errors.New("installments must be positive")
	ErrNoPrincipal     = errors.New("principal must be positive")
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
	months  = decimal.NewFromInt(12)
)

// MonthlyRate converts a yearly percentage into a per-month fraction.
func MonthlyRate(yearlyPercent decimal.Decimal) decimal.Decimal {
	return yearlyPercent.DivRound(hundred.Mul(months), ratePrecision)
}

// Installments splits principal into n monthly payments rounded to cents.
//
// A fixed loan pays the same annuity every month. A decreasing loan repays
// an equal share of principal plus the interest on what is still owed, so
// payments shrink. In both cases the final payment absorbs rounding and
// clears the balance exactly.
func Installments(kind string, principal, yearlyPercent decimal.Decimal, n int) ([]decimal.Decimal, error) {
	if n <= 0 {
		return nil, ErrNoInstallments
	}
	if !principal.IsPositive() {
		return nil, ErrNoPrincipal
	}

	r := MonthlyRate(yearlyPercent)

	var capital decimal.Decimal
	var payment decimal.Decimal
	switch kind {
	case model.LoanFixed:
		payment = annuity(principal, r, n)
	case model.LoanDecreasing:
		capital = principal.DivRound(decimal.NewFromInt(int64(n)), 2)
	default:
		return nil, ErrUnknownType
	}

	out := make([]decimal.Decimal, n)
	balance := principal
	for i := range out {
		interest := balance.Mul(r).Round(2)

		var repaid decimal.Decimal
		switch {
		case i == n-1:
			repaid = balance
		case kind == model.LoanFixed:
			repaid = payment.Sub(interest)
		default:
			repaid = capital
		}
		if repaid.GreaterThan(balance) {
			repaid = balance
		}
		if repaid.IsNegative() {
			repaid = decimal.Zero
		}

		out[i] = repaid.Add(interest)
		balance = balance.Sub(repaid)
	}
	return out, nil
}

// annuity is P·r·f/(f−1) with f = (1+r)^n, or P/n without interest.
func annuity(principal, r decimal.Decimal, n int) decimal.Decimal {
	if r.IsZero() {
		return principal.DivRound(decimal.NewFromInt(int64(n)), 2)
	}
	f := one
	growth := one.Add(r)
	for i := 0; i < n; i++ {
		f = f.Mul(growth).Round(ratePrecision)
	}
	return principal.Mul(r).Mul(f).DivRound(f.Sub(one), 2)
}

// DueDates lists n monthly due dates ending at last. Each falls on day, or
// on the month's final day when the month is shorter.
func DueDates(last time.Time, day, n int) []time.Time {
	out := make([]time.Time, n)
	first := time.Date(last.Year(), last.Month(), 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		monthStart := first.AddDate(0, i-(n-1), 0)
		d := day
		if end := daysIn(monthStart); d > end {
			d = end
		}
		out[i] = monthStart.AddDate(0, 0, d-1)
	}
	if n > 0 {
		out[n-1] = time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, time.UTC)
	}
	return out
}

func daysIn(monthStart time.Time) int {
	return monthStart.AddDate(0, 1, -1).Day()
}

// Build computes the full schedule for l.
func Build(l *model.Loan) (*model.LoanSchedule, error) {
	installments, err := Installments(l.LoanType, l.AmountRemaining, l.InterestRate, l.InstallmentsRemaining)
	if err != nil {
		return nil, err
	}
	last, err := time.Parse(time.DateOnly, l.LastPaymentDate)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, p := range installments {
		total = total.Add(p)
	}

	dates := DueDates(last, l.PaymentDay, l.InstallmentsRemaining)
	due := make([]string, len(dates))
	for i, d := range dates {
		due[i] = d.Format(time.DateOnly)
	}

	return &model.LoanSchedule{
		LoanName:              l.Name,
		LoanType:              l.LoanType,
		TotalAmountRemaining:  l.AmountRemaining,
		InterestRate:          l.InterestRate,
		InstallmentsRemaining: l.InstallmentsRemaining,
		Installments:          installments,
		DueDates:              due,
		TotalInterest:         total.Sub(l.AmountRemaining),
	}, nil
}
