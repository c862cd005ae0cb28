package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	LoanFixed      = "fixed"
	LoanDecreasing = "decreasing"
)

// Loan is a debt the family repays in monthly installments. InterestRate is
// the nominal yearly rate in percent. LastPaymentDate is the due date of the
// final installment.
type Loan struct {
	ID                    int64           `json:"id"`
	Name                  string          `json:"name"`
	AmountRemaining       decimal.Decimal `json:"amount_reaming"`
	LoanType              string          `json:"loan_type"`
	InterestRate          decimal.Decimal `json:"interest_rate"`
	PaymentDay            int             `json:"payment_day"`
	LastPaymentDate       string          `json:"last_payment_date"`
	InstallmentsRemaining int             `json:"installments_remaining"`
	UserID                *int64          `json:"user"`
	FamilyID              int64           `json:"family"`
	CreatedAt             time.Time       `json:"created_at"`
}

type LoanSchedule struct {
	LoanName              string            `json:"loan_name"`
	LoanType              string            `json:"loan_type"`
	TotalAmountRemaining  decimal.Decimal   `json:"total_amount_remaining"`
	InterestRate          decimal.Decimal   `json:"interest_rate"`
	InstallmentsRemaining int               `json:"installments_remaining"`
	Installments          []decimal.Decimal `json:"installments"`
	DueDates              []string          `json:"due_dates"`
	TotalInterest         decimal.Decimal   `json:"total_interest"`
}
