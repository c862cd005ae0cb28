package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/homebudget/internal/model"
	"github.com/shopspring/decimal"
)

// BalanceStore answers the read-only aggregate queries over categories.
type BalanceStore struct {
	db *sql.DB
}

func NewBalanceStore(db *sql.DB) *BalanceStore {
	return &BalanceStore{db: db}
}

const groupBalanceQuery = `
	SELECT g.id, g.title,
	       (SELECT COUNT(*) FROM categories c2 WHERE c2.group_id = g.id),
	       COALESCE(SUM(c.assigned_amount_cents), 0)
	FROM expense_groups g
	LEFT JOIN categories c
	       ON c.group_id = g.id AND c.created_at >= ? AND c.created_at < ?
	WHERE g.family_id = ?`

func scanGroupBalance(scanner interface{ Scan(...any) error }, year, month int) (*model.GroupBalance, error) {
	var gb model.GroupBalance
	var total int64
	if err := scanner.Scan(&gb.GroupID, &gb.Title, &gb.CategoryCount, &total); err != nil {
		return nil, err
	}
	gb.TotalExpenses = model.FromCents(total)
	gb.Year = year
	gb.Month = month
	return &gb, nil
}

// GroupBalances returns each family group's expense total for the month,
// ordered by group id. Groups without expenses report zero.
func (s *BalanceStore) GroupBalances(familyID int64, year, month int) ([]model.GroupBalance, error) {
	start, end := monthBounds(year, month)
	rows, err := s.db.Query(groupBalanceQuery+` GROUP BY g.id, g.title ORDER BY g.id ASC`, start, end, familyID)
	if err != nil {
		return nil, fmt.Errorf("group balances: %w", err)
	}
	defer rows.Close()

	var balances []model.GroupBalance
	for rows.Next() {
		gb, err := scanGroupBalance(rows, year, month)
		if err != nil {
			return nil, fmt.Errorf("scan group balance: %w", err)
		}
		balances = append(balances, *gb)
	}
	return balances, rows.Err()
}

// GroupBalance returns one group's balance, or nil if the group is not the family's.
func (s *BalanceStore) GroupBalance(familyID, groupID int64, year, month int) (*model.GroupBalance, error) {
	start, end := monthBounds(year, month)
	row := s.db.QueryRow(groupBalanceQuery+` AND g.id = ? GROUP BY g.id, g.title`, start, end, familyID, groupID)
	gb, err := scanGroupBalance(row, year, month)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("group balance: %w", err)
	}
	return gb, nil
}

// ExpenseTotal sums every category amount of the family in the month, in cents.
func (s *BalanceStore) ExpenseTotal(familyID int64, year, month int) (int64, error) {
	start, end := monthBounds(year, month)
	var total int64
	err := s.db.QueryRow(
		`SELECT COALESCE(SUM(c.assigned_amount_cents), 0)
		 FROM categories c
		 JOIN expense_groups g ON g.id = c.group_id
		 WHERE g.family_id = ? AND c.created_at >= ? AND c.created_at < ?`,
		familyID, start, end,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum expenses: %w", err)
	}
	return total, nil
}

// DailyExpenses sums category amounts per day of the month, ascending by
// date. A non-nil groupID restricts the series to that group.
func (s *BalanceStore) DailyExpenses(familyID int64, groupID *int64, year, month int) (*model.ChartSeries, error) {
	start, end := monthBounds(year, month)
	query := `SELECT date(c.created_at) AS day, SUM(c.assigned_amount_cents)
		 FROM categories c
		 JOIN expense_groups g ON g.id = c.group_id
		 WHERE g.family_id = ? AND c.created_at >= ? AND c.created_at < ?`
	args := []any{familyID, start, end}
	if groupID != nil {
		query += ` AND g.id = ?`
		args = append(args, *groupID)
	}
	query += ` GROUP BY day ORDER BY day ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("daily expenses: %w", err)
	}
	defer rows.Close()

	series := &model.ChartSeries{Dates: []string{}, Expenses: []decimal.Decimal{}}
	for rows.Next() {
		var day string
		var total int64
		if err := rows.Scan(&day, &total); err != nil {
			return nil, fmt.Errorf("scan daily expense: %w", err)
		}
		series.Dates = append(series.Dates, day)
		series.Expenses = append(series.Expenses, model.FromCents(total))
	}
	return series, rows.Err()
}
