package store

import (
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/homebudget/internal/model"
)

type LoanStore struct {
	db *sql.DB
}

func NewLoanStore(db *sql.DB) *LoanStore {
	return &LoanStore{db: db}
}

// Interest rates are stored in basis points, hundredths of a percent.
func rateToBasisPoints(rate decimal.Decimal) int64 {
	return rate.Shift(2).Round(0).IntPart()
}

func scanLoan(scanner interface{ Scan(...any) error }) (*model.Loan, error) {
	var l model.Loan
	var amountCents, rateBP int64
	var userID sql.NullInt64

	err := scanner.Scan(&l.ID, &l.Name, &amountCents, &l.LoanType, &rateBP, &l.PaymentDay,
		&l.LastPaymentDate, &l.InstallmentsRemaining, &userID, &l.FamilyID, &l.CreatedAt)
	if err != nil {
		return nil, err
	}

	l.AmountRemaining = model.FromCents(amountCents)
	l.InterestRate = decimal.New(rateBP, -2)
	l.UserID = int64Ptr(userID)
	return &l, nil
}

const loanCols = `id, name, amount_remaining_cents, loan_type, interest_rate_bp, payment_day,
	last_payment_date, installments_remaining, user_id, family_id, created_at`

// Create stores l for the family. ID, UserID, FamilyID and CreatedAt on l
// are ignored.
func (s *LoanStore) Create(familyID, userID int64, l model.Loan) (*model.Loan, error) {
	result, err := s.db.Exec(
		`INSERT INTO loans (name, amount_remaining_cents, loan_type, interest_rate_bp, payment_day,
			last_payment_date, installments_remaining, user_id, family_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.Name, model.ToCents(l.AmountRemaining), l.LoanType, rateToBasisPoints(l.InterestRate), l.PaymentDay,
		l.LastPaymentDate, l.InstallmentsRemaining, userID, familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert loan: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(familyID, id)
}

// GetByID returns the loan only if it belongs to familyID.
func (s *LoanStore) GetByID(familyID, id int64) (*model.Loan, error) {
	row := s.db.QueryRow(`SELECT `+loanCols+` FROM loans WHERE id = ? AND family_id = ?`, id, familyID)
	l, err := scanLoan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get loan: %w", err)
	}
	return l, nil
}

func (s *LoanStore) List(familyID int64) ([]model.Loan, error) {
	rows, err := s.db.Query(`SELECT `+loanCols+` FROM loans WHERE family_id = ? ORDER BY id ASC`, familyID)
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	defer rows.Close()

	var loans []model.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan loan: %w", err)
		}
		loans = append(loans, *l)
	}
	return loans, rows.Err()
}
