package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/homebudget/internal/model"
)

type BudgetStore struct {
	db *sql.DB
}

func NewBudgetStore(db *sql.DB) *BudgetStore {
	return &BudgetStore{db: db}
}

func scanBudget(scanner interface{ Scan(...any) error }) (*model.Budget, error) {
	var b model.Budget
	var amount, income, expenses int64

	err := scanner.Scan(&b.ID, &b.FamilyID, &amount, &income, &expenses, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}

	b.Amount = model.FromCents(amount)
	b.TotalIncome = model.FromCents(income)
	b.TotalExpenses = model.FromCents(expenses)
	return &b, nil
}

const budgetCols = `id, family_id, amount_cents, total_income_cents, total_expenses_cents, created_at, updated_at`

func (s *BudgetStore) Create(familyID, amountCents, incomeCents, expensesCents int64, createdAt time.Time) (*model.Budget, error) {
	ts := sqlTime(createdAt)
	result, err := s.db.Exec(
		`INSERT INTO budgets (family_id, amount_cents, total_income_cents, total_expenses_cents, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		familyID, amountCents, incomeCents, expensesCents, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("insert budget: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(familyID, id)
}

func (s *BudgetStore) GetByID(familyID, id int64) (*model.Budget, error) {
	row := s.db.QueryRow(`SELECT `+budgetCols+` FROM budgets WHERE id = ? AND family_id = ?`, id, familyID)
	b, err := scanBudget(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get budget: %w", err)
	}
	return b, nil
}

// GetForFamily returns the family's most recently created budget, or nil.
func (s *BudgetStore) GetForFamily(familyID int64) (*model.Budget, error) {
	row := s.db.QueryRow(
		`SELECT `+budgetCols+` FROM budgets WHERE family_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		familyID,
	)
	b, err := scanBudget(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get family budget: %w", err)
	}
	return b, nil
}

// Update applies the non-nil fields of patch and returns the updated row.
func (s *BudgetStore) Update(familyID, id int64, patch model.BudgetPatch) (*model.Budget, error) {
	if patch.Empty() {
		return s.GetByID(familyID, id)
	}

	var sets []string
	var args []any
	if patch.Amount != nil {
		sets = append(sets, "amount_cents = ?")
		args = append(args, model.ToCents(*patch.Amount))
	}
	if patch.TotalIncome != nil {
		sets = append(sets, "total_income_cents = ?")
		args = append(args, model.ToCents(*patch.TotalIncome))
	}
	if patch.TotalExpenses != nil {
		sets = append(sets, "total_expenses_cents = ?")
		args = append(args, model.ToCents(*patch.TotalExpenses))
	}
	args = append(args, id, familyID)

	_, err := s.db.Exec(
		`UPDATE budgets SET `+strings.Join(sets, ", ")+` WHERE id = ? AND family_id = ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("update budget: %w", err)
	}
	return s.GetByID(familyID, id)
}

// SumForMonth totals budget amounts created in the given calendar month, in cents.
func (s *BudgetStore) SumForMonth(familyID int64, year, month int) (int64, error) {
	start, end := monthBounds(year, month)
	var total int64
	err := s.db.QueryRow(
		`SELECT COALESCE(SUM(amount_cents), 0) FROM budgets
		 WHERE family_id = ? AND created_at >= ? AND created_at < ?`,
		familyID, start, end,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum budgets: %w", err)
	}
	return total, nil
}
