package model

import "github.com/shopspring/decimal"

type MonthlyBalance struct {
	Year         int             `json:"year"`
	Month        int             `json:"month"`
	TotalBalance decimal.Decimal `json:"total_balance"`
}

type GroupBalance struct {
	GroupID       int64           `json:"group_id"`
	Title         string          `json:"groups_title"`
	CategoryCount int             `json:"category_count"`
	TotalExpenses decimal.Decimal `json:"total_expenses"`
	Year          int             `json:"year"`
	Month         int             `json:"month"`
}

// MonthComparison is the current month's expense total next to the previous one.
type MonthComparison struct {
	Year                  int             `json:"year"`
	Month                 int             `json:"month"`
	TotalExpenses         decimal.Decimal `json:"total_expenses"`
	PreviousYear          int             `json:"previous_year"`
	PreviousMonth         int             `json:"previous_month"`
	PreviousTotalExpenses decimal.Decimal `json:"previous_total_expenses"`
	Difference            decimal.Decimal `json:"difference"`
}

// ChartSeries holds parallel, date-ascending slices for plotting.
type ChartSeries struct {
	Dates    []string          `json:"dates"`
	Expenses []decimal.Decimal `json:"expenses"`
}
