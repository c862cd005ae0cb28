package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/homebudget/internal/model"
)

type GroupStore struct {
	db *sql.DB
}

func NewGroupStore(db *sql.DB) *GroupStore {
	return &GroupStore{db: db}
}

// --- Group methods ---

func scanGroup(scanner interface{ Scan(...any) error }) (*model.Group, error) {
	var g model.Group
	var authorID sql.NullInt64

	err := scanner.Scan(&g.ID, &g.Title, &authorID, &g.FamilyID, &g.CreatedAt)
	if err != nil {
		return nil, err
	}

	g.AuthorID = int64Ptr(authorID)
	g.Categories = []model.Category{}
	return &g, nil
}

const groupCols = `id, title, author_id, family_id, created_at`

func (s *GroupStore) Create(familyID, authorID int64, title string) (*model.Group, error) {
	result, err := s.db.Exec(
		`INSERT INTO expense_groups (title, author_id, family_id) VALUES (?, ?, ?)`,
		title, authorID, familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert group: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(familyID, id)
}

// GetByID returns the group with its categories, or nil if it does not
// belong to familyID.
func (s *GroupStore) GetByID(familyID, id int64) (*model.Group, error) {
	row := s.db.QueryRow(`SELECT `+groupCols+` FROM expense_groups WHERE id = ? AND family_id = ?`, id, familyID)
	g, err := scanGroup(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}

	cats, err := s.ListCategories(g.ID)
	if err != nil {
		return nil, err
	}
	g.Categories = cats
	g.CategoryCount = len(cats)
	return g, nil
}

// Exists reports whether the group belongs to the family.
func (s *GroupStore) Exists(familyID, id int64) (bool, error) {
	var exists bool
	err := s.db.QueryRow(
		`SELECT EXISTS(SELECT 1 FROM expense_groups WHERE id = ? AND family_id = ?)`,
		id, familyID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check group: %w", err)
	}
	return exists, nil
}

// List returns the family's groups ordered by id, each with its categories.
func (s *GroupStore) List(familyID int64) ([]model.Group, error) {
	rows, err := s.db.Query(`SELECT `+groupCols+` FROM expense_groups WHERE family_id = ? ORDER BY id ASC`, familyID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var groups []model.Group
	index := make(map[int64]int)
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		index[g.ID] = len(groups)
		groups = append(groups, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	rows.Close()

	if len(groups) == 0 {
		return groups, nil
	}

	catRows, err := s.db.Query(
		`SELECT `+categoryColsC+` FROM categories c
		 JOIN expense_groups g ON g.id = c.group_id
		 WHERE g.family_id = ?
		 ORDER BY c.id ASC`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list family categories: %w", err)
	}
	defer catRows.Close()

	for catRows.Next() {
		c, err := scanCategory(catRows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		if i, ok := index[c.GroupID]; ok {
			groups[i].Categories = append(groups[i].Categories, *c)
			groups[i].CategoryCount++
		}
	}
	return groups, catRows.Err()
}

// --- Category methods ---

func scanCategory(scanner interface{ Scan(...any) error }) (*model.Category, error) {
	var c model.Category
	var authorID, bankID sql.NullInt64
	var amount int64

	err := scanner.Scan(&c.ID, &c.GroupID, &authorID, &c.Title, &c.Note, &amount, &bankID, &c.CreatedAt)
	if err != nil {
		return nil, err
	}

	c.AuthorID = int64Ptr(authorID)
	c.BankID = int64Ptr(bankID)
	c.AssignedAmount = model.FromCents(amount)
	return &c, nil
}

const categoryCols = `id, group_id, author_id, title, note, assigned_amount_cents, bank_id, created_at`
const categoryColsC = `c.id, c.group_id, c.author_id, c.title, c.note, c.assigned_amount_cents, c.bank_id, c.created_at`

// AddCategory inserts a category into groupID. Callers check that the group
// and bank belong to the caller's family.
func (s *GroupStore) AddCategory(groupID, authorID int64, title, note string, amountCents int64, bankID *int64, createdAt time.Time) (*model.Category, error) {
	result, err := s.db.Exec(
		`INSERT INTO categories (group_id, author_id, title, note, assigned_amount_cents, bank_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		groupID, authorID, title, note, amountCents, nullInt64(bankID), sqlTime(createdAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert category: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetCategory(groupID, id)
}

func (s *GroupStore) GetCategory(groupID, id int64) (*model.Category, error) {
	row := s.db.QueryRow(`SELECT `+categoryCols+` FROM categories WHERE id = ? AND group_id = ?`, id, groupID)
	c, err := scanCategory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

func (s *GroupStore) ListCategories(groupID int64) ([]model.Category, error) {
	rows, err := s.db.Query(`SELECT `+categoryCols+` FROM categories WHERE group_id = ? ORDER BY id ASC`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	cats := []model.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		cats = append(cats, *c)
	}
	return cats, rows.Err()
}

// UpdateCategory applies the set fields of patch to a category of groupID.
func (s *GroupStore) UpdateCategory(groupID, id int64, patch model.CategoryPatch) (*model.Category, error) {
	var sets []string
	var args []any
	if patch.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *patch.Title)
	}
	if patch.Note != nil {
		sets = append(sets, "note = ?")
		args = append(args, *patch.Note)
	}
	if patch.AssignedAmount != nil {
		sets = append(sets, "assigned_amount_cents = ?")
		args = append(args, model.ToCents(*patch.AssignedAmount))
	}
	switch {
	case patch.ClearBank:
		sets = append(sets, "bank_id = NULL")
	case patch.BankID != nil:
		sets = append(sets, "bank_id = ?")
		args = append(args, *patch.BankID)
	}

	if len(sets) > 0 {
		args = append(args, id, groupID)
		_, err := s.db.Exec(
			`UPDATE categories SET `+strings.Join(sets, ", ")+` WHERE id = ? AND group_id = ?`,
			args...,
		)
		if err != nil {
			return nil, fmt.Errorf("update category: %w", err)
		}
	}
	return s.GetCategory(groupID, id)
}
