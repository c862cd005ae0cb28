package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/homebudget/internal/auth"
	"github.com/dukerupert/homebudget/internal/model"
	"github.com/dukerupert/homebudget/internal/store"
)

// BalanceHandler serves the read-only monthly aggregates. Every figure
// covers the current UTC calendar month.
type BalanceHandler struct {
	budgetStore  *store.BudgetStore
	balanceStore *store.BalanceStore
	groupStore   *store.GroupStore
	logger       *slog.Logger
	now          func() time.Time
}

func NewBalanceHandler(bs *store.BudgetStore, bal *store.BalanceStore, gs *store.GroupStore, logger *slog.Logger) *BalanceHandler {
	return &BalanceHandler{budgetStore: bs, balanceStore: bal, groupStore: gs, logger: logger, now: time.Now}
}

func (h *BalanceHandler) period() (int, int) {
	now := h.now().UTC()
	return now.Year(), int(now.Month())
}

// Monthly sums the family's budget amounts created this month.
func (h *BalanceHandler) Monthly(w http.ResponseWriter, r *http.Request) {
	year, month := h.period()
	total, err := h.budgetStore.SumForMonth(auth.FamilyID(r.Context()), year, month)
	if err != nil {
		serverError(w, h.logger, r, "monthly balance", err)
		return
	}
	writeJSON(w, http.StatusOK, model.MonthlyBalance{
		Year:         year,
		Month:        month,
		TotalBalance: model.FromCents(total),
	})
}

func (h *BalanceHandler) GroupBalances(w http.ResponseWriter, r *http.Request) {
	year, month := h.period()
	balances, err := h.balanceStore.GroupBalances(auth.FamilyID(r.Context()), year, month)
	if err != nil {
		serverError(w, h.logger, r, "group balances", err)
		return
	}
	if balances == nil {
		balances = []model.GroupBalance{}
	}
	writeJSON(w, http.StatusOK, balances)
}

func (h *BalanceHandler) GroupBalance(w http.ResponseWriter, r *http.Request) {
	groupID, ok := parseIDParam(r, "id")
	if !ok {
		writeDetail(w, http.StatusNotFound, groupNotFound)
		return
	}

	year, month := h.period()
	balance, err := h.balanceStore.GroupBalance(auth.FamilyID(r.Context()), groupID, year, month)
	if err != nil {
		serverError(w, h.logger, r, "group balance", err)
		return
	}
	if balance == nil {
		writeDetail(w, http.StatusNotFound, groupNotFound)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

// Chart returns per-day expense sums for the month, for every group or for
// the group named in the path.
func (h *BalanceHandler) Chart(w http.ResponseWriter, r *http.Request) {
	familyID := auth.FamilyID(r.Context())
	year, month := h.period()

	var groupID *int64
	if r.PathValue("id") != "" {
		id, ok := parseIDParam(r, "id")
		if !ok {
			writeDetail(w, http.StatusNotFound, groupNotFound)
			return
		}
		exists, err := h.groupStore.Exists(familyID, id)
		if err != nil {
			serverError(w, h.logger, r, "chart group", err)
			return
		}
		if !exists {
			writeDetail(w, http.StatusNotFound, groupNotFound)
			return
		}
		groupID = &id
	}

	series, err := h.balanceStore.DailyExpenses(familyID, groupID, year, month)
	if err != nil {
		serverError(w, h.logger, r, "chart", err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

// CurrentMonth compares this month's category expenses with last month's.
func (h *BalanceHandler) CurrentMonth(w http.ResponseWriter, r *http.Request) {
	familyID := auth.FamilyID(r.Context())
	now := h.now().UTC()
	prev := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)

	current, err := h.balanceStore.ExpenseTotal(familyID, now.Year(), int(now.Month()))
	if err != nil {
		serverError(w, h.logger, r, "current month expenses", err)
		return
	}
	previous, err := h.balanceStore.ExpenseTotal(familyID, prev.Year(), int(prev.Month()))
	if err != nil {
		serverError(w, h.logger, r, "previous month expenses", err)
		return
	}

	writeJSON(w, http.StatusOK, model.MonthComparison{
		Year:                  now.Year(),
		Month:                 int(now.Month()),
		TotalExpenses:         model.FromCents(current),
		PreviousYear:          prev.Year(),
		PreviousMonth:         int(prev.Month()),
		PreviousTotalExpenses: model.FromCents(previous),
		Difference:            model.FromCents(current - previous),
	})
}
