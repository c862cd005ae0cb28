package store

import (
	"database/sql"
	"testing"
	"time"

	"github.com/dukerupert/homebudget/internal/database"
	"github.com/dukerupert/homebudget/internal/model"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// newTestFamily registers a user and a family owned by them.
func newTestFamily(t *testing.T, db *sql.DB, email, familyName string) (*model.User, *model.Family) {
	t.Helper()
	u, err := NewUserStore(db).Create(email, "Test User", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	f, err := NewFamilyStore(db).CreateWithOwner(familyName, u.ID, time.Now())
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	return u, f
}

// newBareFamily inserts a family with no members and no budget.
func newBareFamily(t *testing.T, db *sql.DB, name string) *model.Family {
	t.Helper()
	result, err := db.Exec(`INSERT INTO families (name) VALUES (?)`, name)
	if err != nil {
		t.Fatalf("insert family: %v", err)
	}
	id, _ := result.LastInsertId()
	f, err := NewFamilyStore(db).GetByID(id)
	if err != nil {
		t.Fatalf("get family: %v", err)
	}
	return f
}
