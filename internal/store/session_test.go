package store

import (
	"testing"
	"time"
)

func TestSessionCreate(t *testing.T) {
	db := openTestDB(t)
	ss := NewSessionStore(db)
	u, f := newTestFamily(t, db, "alice@example.com", "Family")

	sess, err := ss.Create(u.ID, f.ID, time.Hour)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if len(sess.Token) != 64 { // 32 bytes hex-encoded
		t.Errorf("token length = %d, want 64", len(sess.Token))
	}
	if sess.UserID != u.ID {
		t.Errorf("user_id = %d, want %d", sess.UserID, u.ID)
	}
	if sess.FamilyID != f.ID {
		t.Errorf("family_id = %d, want %d", sess.FamilyID, f.ID)
	}
	if !sess.ExpiresAt.After(time.Now()) {
		t.Errorf("expires_at = %v, want future", sess.ExpiresAt)
	}
}

func TestSessionGetByToken(t *testing.T) {
	db := openTestDB(t)
	ss := NewSessionStore(db)
	u, f := newTestFamily(t, db, "alice@example.com", "Family")

	created, _ := ss.Create(u.ID, f.ID, time.Hour)

	sess, err := ss.GetByToken(created.Token)
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if sess == nil {
		t.Fatal("expected session, got nil")
	}
	if sess.ID != created.ID {
		t.Errorf("id = %d, want %d", sess.ID, created.ID)
	}

	ok, err := ss.Exists(created.ID)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !ok {
		t.Error("expected session to exist")
	}
}

func TestSessionGetByTokenNotFound(t *testing.T) {
	ss := NewSessionStore(openTestDB(t))

	sess, err := ss.GetByToken("nonexistent")
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if sess != nil {
		t.Error("expected nil for nonexistent token")
	}
}

func TestSessionExpired(t *testing.T) {
	db := openTestDB(t)
	ss := NewSessionStore(db)
	u, f := newTestFamily(t, db, "alice@example.com", "Family")

	expired, _ := ss.Create(u.ID, f.ID, -time.Hour)
	live, _ := ss.Create(u.ID, f.ID, time.Hour)

	sess, err := ss.GetByToken(expired.Token)
	if err != nil {
		t.Fatalf("get expired: %v", err)
	}
	if sess != nil {
		t.Error("expected nil for expired session")
	}

	n, err := ss.DeleteExpired()
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}

	if ok, _ := ss.Exists(live.ID); !ok {
		t.Error("live session should survive cleanup")
	}
}

func TestSessionDelete(t *testing.T) {
	db := openTestDB(t)
	ss := NewSessionStore(db)
	u, f := newTestFamily(t, db, "alice@example.com", "Family")

	created, _ := ss.Create(u.ID, f.ID, time.Hour)
	if err := ss.Delete(created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	sess, err := ss.GetByToken(created.Token)
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if sess != nil {
		t.Error("expected nil after delete")
	}
}

func TestSessionDeleteByUserID(t *testing.T) {
	db := openTestDB(t)
	ss := NewSessionStore(db)
	u, f := newTestFamily(t, db, "alice@example.com", "Family")

	ss.Create(u.ID, f.ID, time.Hour)
	ss.Create(u.ID, f.ID, time.Hour)

	if err := ss.DeleteByUserID(u.ID); err != nil {
		t.Fatalf("delete by user id: %v", err)
	}

	var count int
	ss.db.QueryRow(`SELECT COUNT(*) FROM sessions WHERE user_id = ?`, u.ID).Scan(&count)
	if count != 0 {
		t.Errorf("expected 0 sessions, got %d", count)
	}
}
