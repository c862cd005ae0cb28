package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/homebudget/internal/database"
	"github.com/dukerupert/homebudget/internal/events"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// recorder collects published events in place of a broker.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(ctx context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func newTestServer(t *testing.T, broker events.Publisher) (http.Handler, *sql.DB) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(db, Options{
		JWTSecret:       testSecret,
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	}, broker, logger)
	return srv.Router(), db
}

func setupTestServer(t *testing.T) http.Handler {
	t.Helper()
	h, _ := newTestServer(t, nil)
	return h
}

func do(t *testing.T, h http.Handler, method, path, access string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			r = strings.NewReader(b)
		default:
			data, err := json.Marshal(b)
			if err != nil {
				t.Fatalf("marshal body: %v", err)
			}
			r = bytes.NewReader(data)
		}
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

type session struct {
	Access    string `json:"access"`
	Refresh   string `json:"refresh"`
	ExpiresIn int    `json:"expires_in"`
}

func register(t *testing.T, h http.Handler, email, family string) session {
	t.Helper()
	rec := do(t, h, "POST", "/api/register/", "", map[string]string{
		"email":       email,
		"password":    "s3cret-password",
		"name":        "Test",
		"family_name": family,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: status = %d, body = %s", email, rec.Code, rec.Body.String())
	}
	return decode[session](t, rec)
}

func TestHealth(t *testing.T) {
	h := setupTestServer(t)
	rec := do(t, h, "GET", "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := decode[map[string]any](t, rec)
	if body["status"] != "ok" || body["websocket_clients"] != float64(0) {
		t.Errorf("body = %v", body)
	}
}

func TestProtectedRouteRequiresAuth(t *testing.T) {
	h := setupTestServer(t)

	for _, path := range []string{"/api/banks/", "/api/budget/", "/api/groups/", "/api/balance/monthly/", "/api/loans/"} {
		rec := do(t, h, "GET", path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s: status = %d, want %d", path, rec.Code, http.StatusUnauthorized)
		}
	}
}

func TestRegisterValidation(t *testing.T) {
	h := setupTestServer(t)

	rec := do(t, h, "POST", "/api/register/", "", map[string]string{"email": "not-an-email", "password": "short"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	errs := decode[map[string][]string](t, rec)
	for _, field := range []string{"email", "password", "family_name"} {
		if len(errs[field]) == 0 {
			t.Errorf("expected error for %s, got %v", field, errs)
		}
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	h := setupTestServer(t)
	register(t, h, "alice@example.com", "A")

	rec := do(t, h, "POST", "/api/register/", "", map[string]string{
		"email":       "ALICE@example.com",
		"password":    "another-password",
		"family_name": "B",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestRegisterConcurrentDuplicateEmail(t *testing.T) {
	h := setupTestServer(t)

	const n = 5
	codes := make([]int, n)
	bodies := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := do(t, h, "POST", "/api/register/", "", map[string]string{
				"email":       "race@example.com",
				"password":    "s3cret-password",
				"family_name": "Family " + strconv.Itoa(i),
			})
			codes[i], bodies[i] = rec.Code, rec.Body.String()
		}(i)
	}
	wg.Wait()

	created := 0
	for i, code := range codes {
		switch code {
		case http.StatusCreated:
			created++
		case http.StatusBadRequest:
			if !strings.Contains(bodies[i], "user with this email already exists.") {
				t.Errorf("400 body = %s", bodies[i])
			}
		default:
			t.Errorf("status = %d, body = %s", code, bodies[i])
		}
	}
	if created != 1 {
		t.Errorf("created = %d, want exactly 1", created)
	}
}

func TestLoginRefreshLogout(t *testing.T) {
	h := setupTestServer(t)
	register(t, h, "alice@example.com", "Family")

	bad := do(t, h, "POST", "/api/token/", "", map[string]string{"email": "alice@example.com", "password": "wrong-password"})
	if bad.Code != http.StatusUnauthorized {
		t.Errorf("bad login: status = %d, want %d", bad.Code, http.StatusUnauthorized)
	}

	rec := do(t, h, "POST", "/api/token/", "", map[string]string{"email": "alice@example.com", "password": "s3cret-password"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	s := decode[session](t, rec)
	if s.Access == "" || s.Refresh == "" {
		t.Fatalf("expected token pair, got %+v", s)
	}
	if s.ExpiresIn != 900 {
		t.Errorf("expires_in = %d, want 900", s.ExpiresIn)
	}

	rec = do(t, h, "POST", "/api/token/refresh/", "", map[string]string{"refresh": s.Refresh})
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	refreshed := decode[session](t, rec)
	if refreshed.Access == "" {
		t.Error("expected new access token")
	}
	if refreshed.ExpiresIn != 900 {
		t.Errorf("refresh expires_in = %d, want 900", refreshed.ExpiresIn)
	}

	me := do(t, h, "GET", "/api/me/", refreshed.Access, nil)
	if me.Code != http.StatusOK {
		t.Fatalf("me: status = %d", me.Code)
	}

	if rec := do(t, h, "POST", "/api/logout/", s.Access, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("logout: status = %d, want %d", rec.Code, http.StatusNoContent)
	}

	if rec := do(t, h, "GET", "/api/me/", s.Access, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("after logout: status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if rec := do(t, h, "POST", "/api/token/refresh/", "", map[string]string{"refresh": s.Refresh}); rec.Code != http.StatusUnauthorized {
		t.Errorf("refresh after logout: status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestLoginRateLimited(t *testing.T) {
	h := setupTestServer(t)

	var last int
	for i := 0; i < 11; i++ {
		rec := do(t, h, "POST", "/api/token/", "", map[string]string{"email": "x@example.com", "password": "whatever1"})
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("11th login: status = %d, want %d", last, http.StatusTooManyRequests)
	}
}

func TestBankCreateWithNameAlias(t *testing.T) {
	h := setupTestServer(t)
	f := register(t, h, "f@example.com", "F")
	g := register(t, h, "g@example.com", "G")

	rec := do(t, h, "POST", "/api/banks/", f.Access, map[string]string{"name": "Checking"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create bank: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	created := decode[map[string]any](t, rec)
	if created["bank_name"] != "Checking" {
		t.Errorf("bank_name = %v, want Checking", created["bank_name"])
	}
	if created["balance"] != float64(0) {
		t.Errorf("balance = %v, want 0", created["balance"])
	}
	if created["user"] == nil || created["family"] == nil {
		t.Errorf("expected user and family on bank, got %v", created)
	}

	mine := decode[[]map[string]any](t, do(t, h, "GET", "/api/banks/", f.Access, nil))
	if len(mine) != 1 {
		t.Errorf("family F sees %d banks, want 1", len(mine))
	}
	theirs := decode[[]map[string]any](t, do(t, h, "GET", "/api/banks/", g.Access, nil))
	if len(theirs) != 0 {
		t.Errorf("family G sees %d banks, want 0", len(theirs))
	}

	names := decode[[]map[string]any](t, do(t, h, "GET", "/api/banks/name/", f.Access, nil))
	if len(names) != 1 || names[0]["bank_name"] != "Checking" {
		t.Errorf("names = %v, want [Checking]", names)
	}
}

func TestBankCreateValidation(t *testing.T) {
	h := setupTestServer(t)
	s := register(t, h, "f@example.com", "F")

	tests := []struct {
		name  string
		body  any
		field string
	}{
		{"missing name", map[string]any{"balance": 10}, "bank_name"},
		{"blank name", map[string]any{"bank_name": "   "}, "bank_name"},
		{"long name", map[string]any{"bank_name": strings.Repeat("x", 101)}, "bank_name"},
		{"negative balance", map[string]any{"bank_name": "A", "balance": -1}, "balance"},
		{"three decimals", map[string]any{"bank_name": "A", "balance": "1.234"}, "balance"},
		{"not a number", map[string]any{"bank_name": "A", "balance": "lots"}, "balance"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, "POST", "/api/banks/", s.Access, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
			errs := decode[map[string][]string](t, rec)
			if len(errs[tt.field]) == 0 {
				t.Errorf("expected error for %s, got %v", tt.field, errs)
			}
		})
	}

	rec := do(t, h, "POST", "/api/banks/", s.Access, "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed JSON: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if decode[map[string]string](t, rec)["detail"] == "" {
		t.Error("malformed JSON: expected detail")
	}
}

func TestBudgetPartialUpdate(t *testing.T) {
	h := setupTestServer(t)
	s := register(t, h, "f@example.com", "F")

	rec := do(t, h, "PUT", "/api/budget/", s.Access, map[string]any{"amount": 1000, "total_income": "2500.50"})
	if rec.Code != http.StatusOK {
		t.Fatalf("put: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, "PATCH", "/api/budget/", s.Access, map[string]any{"total_expenses": 99.99})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	b := decode[map[string]any](t, rec)
	if b["amount"] != float64(1000) {
		t.Errorf("amount = %v, want 1000", b["amount"])
	}
	if b["total_income"] != 2500.5 {
		t.Errorf("total_income = %v, want 2500.5", b["total_income"])
	}
	if b["total_expenses"] != 99.99 {
		t.Errorf("total_expenses = %v, want 99.99", b["total_expenses"])
	}

	rec = do(t, h, "PATCH", "/api/budget/", s.Access, map[string]any{"amount": -5})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative amount: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestMonthlyBalance(t *testing.T) {
	h := setupTestServer(t)
	s := register(t, h, "f@example.com", "F")

	got := decode[map[string]any](t, do(t, h, "GET", "/api/balance/monthly/", s.Access, nil))
	if got["total_balance"] != float64(0) {
		t.Errorf("total_balance = %v, want 0", got["total_balance"])
	}
	now := time.Now().UTC()
	if got["year"] != float64(now.Year()) || got["month"] != float64(now.Month()) {
		t.Errorf("period = %v/%v, want %d/%d", got["year"], got["month"], now.Year(), now.Month())
	}

	for _, amount := range []string{"100.25", "50"} {
		rec := do(t, h, "POST", "/api/budget/", s.Access, map[string]string{"amount": amount})
		if rec.Code != http.StatusCreated {
			t.Fatalf("create budget: status = %d, body = %s", rec.Code, rec.Body.String())
		}
	}

	got = decode[map[string]any](t, do(t, h, "GET", "/api/balance/monthly/", s.Access, nil))
	if got["total_balance"] != 150.25 {
		t.Errorf("total_balance = %v, want 150.25", got["total_balance"])
	}

	other := register(t, h, "g@example.com", "G")
	got = decode[map[string]any](t, do(t, h, "GET", "/api/balance/monthly/", other.Access, nil))
	if got["total_balance"] != float64(0) {
		t.Errorf("other family total_balance = %v, want 0", got["total_balance"])
	}
}

func TestGroupsAndCategories(t *testing.T) {
	h := setupTestServer(t)
	f := register(t, h, "f@example.com", "F")
	g := register(t, h, "g@example.com", "G")

	bank := decode[map[string]any](t, do(t, h, "POST", "/api/banks/", f.Access, map[string]any{"bank_name": "PKO", "balance": 500}))
	foreignBank := decode[map[string]any](t, do(t, h, "POST", "/api/banks/", g.Access, map[string]any{"bank_name": "Other"}))

	rec := do(t, h, "POST", "/api/groups/", f.Access, map[string]string{"groups_title": "Home"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create group: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	group := decode[map[string]any](t, rec)
	groupPath := "/api/groups/" + jsonID(group) + "/"

	rec = do(t, h, "POST", groupPath+"add-categories/", f.Access, map[string]any{
		"category_title":  "Rent",
		"category_note":   "monthly",
		"assigned_amount": "1200.00",
		"bank":            bank["id"],
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add category: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	category := decode[map[string]any](t, rec)

	rec = do(t, h, "POST", "/api/groups/add-categories/", f.Access, map[string]any{
		"group":           group["id"],
		"category_title":  "Power",
		"assigned_amount": 80.5,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add category by body: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, "POST", groupPath+"add-categories/", f.Access, map[string]any{
		"category_title":  "Sneaky",
		"assigned_amount": 1,
		"bank":            foreignBank["id"],
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("foreign bank: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = do(t, h, "POST", groupPath+"add-categories/", g.Access, map[string]any{
		"category_title":  "Intruder",
		"assigned_amount": 1,
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign group: status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	rec = do(t, h, "POST", groupPath+"add-categories/", f.Access, map[string]any{
		"category_title":  "Free",
		"assigned_amount": 0,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("zero amount: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = do(t, h, "PATCH", groupPath+"update-categories/"+jsonID(category)+"/", f.Access, map[string]any{
		"assigned_amount": 1300,
		"bank":            nil,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update category: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	updated := decode[map[string]any](t, rec)
	if updated["assigned_amount"] != float64(1300) {
		t.Errorf("assigned_amount = %v, want 1300", updated["assigned_amount"])
	}
	if updated["bank"] != nil {
		t.Errorf("bank = %v, want null", updated["bank"])
	}
	if updated["category_title"] != "Rent" {
		t.Errorf("category_title = %v, want Rent", updated["category_title"])
	}

	groups := decode[[]map[string]any](t, do(t, h, "GET", "/api/groups/", f.Access, nil))
	if len(groups) != 1 || groups[0]["category_count"] != float64(2) {
		t.Errorf("groups = %v, want one group with 2 categories", groups)
	}
	if others := decode[[]map[string]any](t, do(t, h, "GET", "/api/groups/", g.Access, nil)); len(others) != 0 {
		t.Errorf("family G sees %d groups, want 0", len(others))
	}

	balances := decode[[]map[string]any](t, do(t, h, "GET", "/api/group-balance/", f.Access, nil))
	if len(balances) != 1 || balances[0]["total_expenses"] != 1380.5 {
		t.Errorf("group balances = %v, want total 1380.5", balances)
	}

	rec = do(t, h, "GET", "/api/group-balance/"+jsonID(group)+"/", g.Access, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign group balance: status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	chart := decode[map[string][]any](t, do(t, h, "GET", "/api/group-balance-chart/", f.Access, nil))
	today := time.Now().UTC().Format("2006-01-02")
	if len(chart["dates"]) != 1 || chart["dates"][0] != today {
		t.Errorf("chart dates = %v, want [%s]", chart["dates"], today)
	}
	if len(chart["expenses"]) != 1 || chart["expenses"][0] != 1380.5 {
		t.Errorf("chart expenses = %v, want [1380.5]", chart["expenses"])
	}

	cm := decode[map[string]any](t, do(t, h, "GET", "/api/balance/current-month/", f.Access, nil))
	if cm["total_expenses"] != 1380.5 || cm["previous_total_expenses"] != float64(0) || cm["difference"] != 1380.5 {
		t.Errorf("current month = %v", cm)
	}
}

func TestUpdateCategoryNotFound(t *testing.T) {
	h := setupTestServer(t)
	s := register(t, h, "f@example.com", "F")

	group := decode[map[string]any](t, do(t, h, "POST", "/api/groups/", s.Access, map[string]string{"groups_title": "Home"}))
	rec := do(t, h, "PUT", "/api/groups/"+jsonID(group)+"/update-categories/999/", s.Access, map[string]any{"category_title": "x"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if decode[map[string]string](t, rec)["detail"] != "Category not found" {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestFamilyMembers(t *testing.T) {
	h := setupTestServer(t)
	admin := register(t, h, "admin@example.com", "F")

	list := decode[map[string]any](t, do(t, h, "GET", "/api/families/members/", admin.Access, nil))
	if list["member_count"] != float64(1) {
		t.Errorf("member_count = %v, want 1", list["member_count"])
	}

	rec := do(t, h, "POST", "/api/families/members/", admin.Access, map[string]string{"email": "nobody@example.com"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown user: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	other := register(t, h, "other@example.com", "G")
	rec = do(t, h, "POST", "/api/families/members/", admin.Access, map[string]string{"email": "other@example.com"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("user with family: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = do(t, h, "POST", "/api/families/members/", other.Access, map[string]string{"email": "admin@example.com", "role": "owner"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad role: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func jsonID(v map[string]any) string {
	id, _ := v["id"].(float64)
	return strconv.FormatInt(int64(id), 10)
}

func TestChangePassword(t *testing.T) {
	h := setupTestServer(t)
	first := register(t, h, "alice@example.com", "Family")
	second := decode[session](t, do(t, h, "POST", "/api/token/", "", map[string]string{
		"email": "alice@example.com", "password": "s3cret-password",
	}))

	tests := []struct {
		name  string
		body  map[string]string
		field string
	}{
		{"wrong old password", map[string]string{"old_password": "nope-nope", "new_password": "brand-new-pass", "confirm_password": "brand-new-pass"}, "old_password"},
		{"mismatch", map[string]string{"old_password": "s3cret-password", "new_password": "brand-new-pass", "confirm_password": "brand-new-typo"}, "confirm_password"},
		{"too short", map[string]string{"old_password": "s3cret-password", "new_password": "short", "confirm_password": "short"}, "new_password"},
		{"missing confirm", map[string]string{"old_password": "s3cret-password", "new_password": "brand-new-pass"}, "confirm_password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, "POST", "/api/password/", first.Access, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
			if errs := decode[map[string][]string](t, rec); len(errs[tt.field]) == 0 {
				t.Errorf("expected error for %s, got %v", tt.field, errs)
			}
		})
	}

	rec := do(t, h, "POST", "/api/password/", first.Access, map[string]string{
		"old_password":     "s3cret-password",
		"new_password":     "brand-new-pass",
		"confirm_password": "brand-new-pass",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("change password: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	fresh := decode[session](t, rec)

	for name, s := range map[string]session{"first": first, "second": second} {
		if rec := do(t, h, "GET", "/api/me/", s.Access, nil); rec.Code != http.StatusUnauthorized {
			t.Errorf("%s session access: status = %d, want %d", name, rec.Code, http.StatusUnauthorized)
		}
		if rec := do(t, h, "POST", "/api/token/refresh/", "", map[string]string{"refresh": s.Refresh}); rec.Code != http.StatusUnauthorized {
			t.Errorf("%s session refresh: status = %d, want %d", name, rec.Code, http.StatusUnauthorized)
		}
	}
	if rec := do(t, h, "GET", "/api/me/", fresh.Access, nil); rec.Code != http.StatusOK {
		t.Errorf("new session: status = %d, want %d", rec.Code, http.StatusOK)
	}

	if rec := do(t, h, "POST", "/api/token/", "", map[string]string{"email": "alice@example.com", "password": "s3cret-password"}); rec.Code != http.StatusUnauthorized {
		t.Errorf("old password login: status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if rec := do(t, h, "POST", "/api/token/", "", map[string]string{"email": "alice@example.com", "password": "brand-new-pass"}); rec.Code != http.StatusOK {
		t.Errorf("new password login: status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRenameFamily(t *testing.T) {
	pub := &recorder{}
	h, _ := newTestServer(t, pub)
	s := register(t, h, "alice@example.com", "Old name")

	rec := do(t, h, "PATCH", "/api/families/", s.Access, map[string]string{"name": "  "})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("blank name: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = do(t, h, "PATCH", "/api/families/", s.Access, map[string]string{"name": "New name"})
	if rec.Code != http.StatusOK {
		t.Fatalf("rename: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := decode[map[string]any](t, rec)["name"]; got != "New name" {
		t.Errorf("name = %v, want New name", got)
	}

	me := decode[map[string]any](t, do(t, h, "GET", "/api/me/", s.Access, nil))
	if family, _ := me["family"].(map[string]any); family["name"] != "New name" {
		t.Errorf("me family = %v", me["family"])
	}

	types := pub.types()
	if len(types) != 1 || types[0] != "family_updated" {
		t.Errorf("events = %v, want [family_updated]", types)
	}
}

func TestBudgetMissingRow(t *testing.T) {
	h, db := newTestServer(t, nil)
	s := register(t, h, "alice@example.com", "Family")

	if _, err := db.Exec(`DELETE FROM budgets`); err != nil {
		t.Fatalf("delete budgets: %v", err)
	}

	for _, method := range []string{"GET", "PUT", "PATCH"} {
		rec := do(t, h, method, "/api/budget/", s.Access, map[string]any{"amount": 10})
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want %d", method, rec.Code, http.StatusNotFound)
			continue
		}
		if got := decode[map[string]string](t, rec)["detail"]; got != "Budget not found" {
			t.Errorf("%s: detail = %q, want %q", method, got, "Budget not found")
		}
	}
}

func TestUpdateCategoryEmptyPatch(t *testing.T) {
	pub := &recorder{}
	h, _ := newTestServer(t, pub)
	s := register(t, h, "alice@example.com", "Family")

	group := decode[map[string]any](t, do(t, h, "POST", "/api/groups/", s.Access, map[string]string{"groups_title": "Home"}))
	category := decode[map[string]any](t, do(t, h, "POST", "/api/groups/"+jsonID(group)+"/add-categories/", s.Access, map[string]any{
		"category_title":  "Rent",
		"assigned_amount": 100,
	}))
	path := "/api/groups/" + jsonID(group) + "/update-categories/" + jsonID(category) + "/"
	before := len(pub.types())

	rec := do(t, h, "PATCH", path, s.Access, map[string]any{})
	if rec.Code != http.StatusOK {
		t.Fatalf("empty patch: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := decode[map[string]any](t, rec)["category_title"]; got != "Rent" {
		t.Errorf("category_title = %v, want Rent", got)
	}
	if n := len(pub.types()) - before; n != 0 {
		t.Errorf("empty patch published %d events, want 0", n)
	}

	do(t, h, "PATCH", path, s.Access, map[string]any{"category_note": "due on the 10th"})
	types := pub.types()
	if len(types) != before+1 || types[len(types)-1] != "category_updated" {
		t.Errorf("events = %v, want one category_updated after the real patch", types[before:])
	}
}

func TestChartGroupScope(t *testing.T) {
	h := setupTestServer(t)
	f := register(t, h, "f@example.com", "F")
	g := register(t, h, "g@example.com", "G")

	group := decode[map[string]any](t, do(t, h, "POST", "/api/groups/", f.Access, map[string]string{"groups_title": "Empty"}))
	path := "/api/group-balance-chart/" + jsonID(group) + "/"

	rec := do(t, h, "GET", path, f.Access, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("own empty group: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	chart := decode[map[string][]any](t, rec)
	if len(chart["dates"]) != 0 || len(chart["expenses"]) != 0 {
		t.Errorf("chart = %v, want empty series", chart)
	}

	for name, p := range map[string]string{"foreign": path, "missing": "/api/group-balance-chart/9999/"} {
		access := f.Access
		if name == "foreign" {
			access = g.Access
		}
		rec := do(t, h, "GET", p, access, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s group: status = %d, want %d", name, rec.Code, http.StatusNotFound)
		}
	}
}

func TestLoans(t *testing.T) {
	pub := &recorder{}
	h, _ := newTestServer(t, pub)
	f := register(t, h, "f@example.com", "F")
	g := register(t, h, "g@example.com", "G")

	rec := do(t, h, "POST", "/api/loans/", f.Access, map[string]any{
		"name":                   "Car",
		"amount_reaming":         "1000.00",
		"loan_type":              "decreasing",
		"interest_rate":          12,
		"payment_day":            15,
		"last_payment_date":      "2026-08-15",
		"installments_remaining": 3,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create loan: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	created := decode[map[string]any](t, rec)
	if created["amount_reaming"] != float64(1000) || created["loan_type"] != "decreasing" {
		t.Errorf("created = %v", created)
	}

	if mine := decode[[]map[string]any](t, do(t, h, "GET", "/api/loans/", f.Access, nil)); len(mine) != 1 {
		t.Errorf("family F sees %d loans, want 1", len(mine))
	}
	if theirs := decode[[]map[string]any](t, do(t, h, "GET", "/api/loans/", g.Access, nil)); len(theirs) != 0 {
		t.Errorf("family G sees %d loans, want 0", len(theirs))
	}

	path := "/api/loan/" + jsonID(created) + "/installments/"
	rec = do(t, h, "GET", path, f.Access, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("installments: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	schedule := decode[map[string]any](t, rec)
	if schedule["loan_name"] != "Car" || schedule["total_amount_remaining"] != float64(1000) || schedule["installments_remaining"] != float64(3) {
		t.Errorf("schedule = %v", schedule)
	}
	installments, _ := schedule["installments"].([]any)
	want := []float64{343.33, 340, 336.67}
	if len(installments) != len(want) {
		t.Fatalf("installments = %v, want %v", installments, want)
	}
	for i, v := range installments {
		if v != want[i] {
			t.Errorf("installment %d = %v, want %v", i+1, v, want[i])
		}
	}

	for name, access := range map[string]string{"foreign": g.Access, "own": f.Access} {
		p := path
		if name == "own" {
			p = "/api/loan/9999/installments/"
		}
		rec := do(t, h, "GET", p, access, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s missing loan: status = %d, want %d", name, rec.Code, http.StatusNotFound)
			continue
		}
		if got := decode[map[string]string](t, rec)["detail"]; got != "Loan not found" {
			t.Errorf("%s missing loan: detail = %q", name, got)
		}
	}

	if types := pub.types(); len(types) != 1 || types[0] != "loan_created" {
		t.Errorf("events = %v, want [loan_created]", types)
	}
}

func TestLoanValidation(t *testing.T) {
	h := setupTestServer(t)
	s := register(t, h, "f@example.com", "F")

	valid := func() map[string]any {
		return map[string]any{
			"name":                   "Mortgage",
			"amount_reaming":         250000,
			"loan_type":              "fixed",
			"interest_rate":          "7.5",
			"payment_day":            10,
			"last_payment_date":      "2050-01-10",
			"installments_remaining": 300,
		}
	}

	tests := []struct {
		name  string
		field string
		value any
	}{
		{"missing name", "name", nil},
		{"zero amount", "amount_reaming", 0},
		{"amount three places", "amount_reaming", "10.001"},
		{"unknown type", "loan_type", "balloon"},
		{"negative rate", "interest_rate", -1},
		{"rate above 100", "interest_rate", "100.01"},
		{"payment day zero", "payment_day", 0},
		{"payment day 32", "payment_day", 32},
		{"fractional payment day", "payment_day", 1.5},
		{"bad date", "last_payment_date", "10.01.2050"},
		{"no installments", "installments_remaining", 0},
		{"too many installments", "installments_remaining", 601},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := valid()
			if tt.value == nil {
				delete(body, tt.field)
			} else {
				body[tt.field] = tt.value
			}
			rec := do(t, h, "POST", "/api/loans/", s.Access, body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d, body = %s", rec.Code, http.StatusBadRequest, rec.Body.String())
			}
			errs := decode[map[string][]string](t, rec)
			if len(errs[tt.field]) == 0 {
				t.Errorf("expected error for %s, got %v", tt.field, errs)
			}
		})
	}

	if rec := do(t, h, "POST", "/api/loans/", s.Access, valid()); rec.Code != http.StatusCreated {
		t.Errorf("valid loan: status = %d, body = %s", rec.Code, rec.Body.String())
	}
}
