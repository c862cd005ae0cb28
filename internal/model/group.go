package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Group struct {
	ID            int64      `json:"id"`
	Title         string     `json:"groups_title"`
	AuthorID      *int64     `json:"groups_author"`
	FamilyID      int64      `json:"family"`
	CreatedAt     time.Time  `json:"created_at"`
	Categories    []Category `json:"categories"`
	CategoryCount int        `json:"category_count"`
}

type Category struct {
	ID             int64           `json:"id"`
	GroupID        int64           `json:"group"`
	AuthorID       *int64          `json:"category_author"`
	Title          string          `json:"category_title"`
	Note           string          `json:"category_note"`
	AssignedAmount decimal.Decimal `json:"assigned_amount"`
	BankID         *int64          `json:"bank"`
	CreatedAt      time.Time       `json:"created_at"`
}

// CategoryPatch carries a partial update; nil fields are left unchanged.
// ClearBank removes the bank link and takes precedence over BankID.
type CategoryPatch struct {
	Title          *string
	Note           *string
	AssignedAmount *decimal.Decimal
	BankID         *int64
	ClearBank      bool
}

func (p CategoryPatch) Empty() bool {
	return p.Title == nil && p.Note == nil && p.AssignedAmount == nil && p.BankID == nil && !p.ClearBank
}
