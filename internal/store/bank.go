package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/homebudget/internal/model"
)

type BankStore struct {
	db *sql.DB
}

func NewBankStore(db *sql.DB) *BankStore {
	return &BankStore{db: db}
}

func scanBank(scanner interface{ Scan(...any) error }) (*model.Bank, error) {
	var b model.Bank
	var balanceCents int64
	var userID sql.NullInt64

	err := scanner.Scan(&b.ID, &b.BankName, &balanceCents, &userID, &b.FamilyID, &b.CreatedAt)
	if err != nil {
		return nil, err
	}

	b.Balance = model.FromCents(balanceCents)
	b.UserID = int64Ptr(userID)
	return &b, nil
}

const bankCols = `id, bank_name, balance_cents, user_id, family_id, created_at`

func (s *BankStore) Create(familyID, userID int64, bankName string, balanceCents int64) (*model.Bank, error) {
	result, err := s.db.Exec(
		`INSERT INTO banks (bank_name, balance_cents, user_id, family_id) VALUES (?, ?, ?, ?)`,
		bankName, balanceCents, userID, familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert bank: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(familyID, id)
}

// GetByID returns the bank only if it belongs to familyID.
func (s *BankStore) GetByID(familyID, id int64) (*model.Bank, error) {
	row := s.db.QueryRow(`SELECT `+bankCols+` FROM banks WHERE id = ? AND family_id = ?`, id, familyID)
	b, err := scanBank(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get bank: %w", err)
	}
	return b, nil
}

func (s *BankStore) List(familyID int64) ([]model.Bank, error) {
	rows, err := s.db.Query(`SELECT `+bankCols+` FROM banks WHERE family_id = ? ORDER BY id ASC`, familyID)
	if err != nil {
		return nil, fmt.Errorf("list banks: %w", err)
	}
	defer rows.Close()

	var banks []model.Bank
	for rows.Next() {
		b, err := scanBank(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bank: %w", err)
		}
		banks = append(banks, *b)
	}
	return banks, rows.Err()
}

func (s *BankStore) ListNames(familyID int64) ([]model.BankName, error) {
	rows, err := s.db.Query(`SELECT id, bank_name FROM banks WHERE family_id = ? ORDER BY id ASC`, familyID)
	if err != nil {
		return nil, fmt.Errorf("list bank names: %w", err)
	}
	defer rows.Close()

	var names []model.BankName
	for rows.Next() {
		var n model.BankName
		if err := rows.Scan(&n.ID, &n.BankName); err != nil {
			return nil, fmt.Errorf("scan bank name: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}
