package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Budget struct {
	ID            int64           `json:"id"`
	FamilyID      int64           `json:"family"`
	Amount        decimal.Decimal `json:"amount"`
	TotalIncome   decimal.Decimal `json:"total_income"`
	TotalExpenses decimal.Decimal `json:"total_expenses"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// BudgetPatch carries a partial update; nil fields are left unchanged.
type BudgetPatch struct {
	Amount        *decimal.Decimal
	TotalIncome   *decimal.Decimal
	TotalExpenses *decimal.Decimal
}

func (p BudgetPatch) Empty() bool {
	return p.Amount == nil && p.TotalIncome == nil && p.TotalExpenses == nil
}
