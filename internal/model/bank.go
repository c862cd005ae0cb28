package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Bank struct {
	ID        int64           `json:"id"`
	BankName  string          `json:"bank_name"`
	Balance   decimal.Decimal `json:"balance"`
	UserID    *int64          `json:"user"`
	FamilyID  int64           `json:"family"`
	CreatedAt time.Time       `json:"created_at"`
}

type BankName struct {
	ID       int64  `json:"id"`
	BankName string `json:"bank_name"`
}
