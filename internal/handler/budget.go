package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/homebudget/internal/auth"
	"github.com/dukerupert/homebudget/internal/events"
	"github.com/dukerupert/homebudget/internal/model"
	"github.com/dukerupert/homebudget/internal/store"
)

type BudgetHandler struct {
	budgetStore *store.BudgetStore
	publisher   events.Publisher
	logger      *slog.Logger
	now         func() time.Time
}

func NewBudgetHandler(bs *store.BudgetStore, pub events.Publisher, logger *slog.Logger) *BudgetHandler {
	return &BudgetHandler{budgetStore: bs, publisher: pub, logger: logger, now: time.Now}
}

const budgetNotFound = "Budget not found"

// parseBudgetPatch validates the budget amount fields present in p.
func parseBudgetPatch(p payload) (model.BudgetPatch, fieldErrors) {
	errs := fieldErrors{}
	patch := model.BudgetPatch{
		Amount:        p.amount("amount", errs),
		TotalIncome:   p.amount("total_income", errs),
		TotalExpenses: p.amount("total_expenses", errs),
	}
	checkAmount(errs, "amount", patch.Amount, false, false)
	checkAmount(errs, "total_income", patch.TotalIncome, false, false)
	checkAmount(errs, "total_expenses", patch.TotalExpenses, false, false)
	return patch, errs
}

func (h *BudgetHandler) Get(w http.ResponseWriter, r *http.Request) {
	budget, err := h.budgetStore.GetForFamily(auth.FamilyID(r.Context()))
	if err != nil {
		serverError(w, h.logger, r, "get budget", err)
		return
	}
	if budget == nil {
		writeDetail(w, http.StatusNotFound, budgetNotFound)
		return
	}
	writeJSON(w, http.StatusOK, budget)
}

// Update applies a partial update to the family's current budget. PUT and
// PATCH behave the same: omitted fields keep their values.
func (h *BudgetHandler) Update(w http.ResponseWriter, r *http.Request) {
	familyID := auth.FamilyID(r.Context())

	current, err := h.budgetStore.GetForFamily(familyID)
	if err != nil {
		serverError(w, h.logger, r, "get budget", err)
		return
	}
	if current == nil {
		writeDetail(w, http.StatusNotFound, budgetNotFound)
		return
	}

	p, ok := readPayload(w, r)
	if !ok {
		return
	}
	patch, errs := parseBudgetPatch(p)
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}

	budget, err := h.budgetStore.Update(familyID, current.ID, patch)
	if err != nil {
		serverError(w, h.logger, r, "update budget", err)
		return
	}

	if !patch.Empty() {
		events.Notify(r.Context(), h.publisher, h.logger, events.New(familyID, events.EntityBudget, events.ActionUpdated, budget.ID))
	}

	writeJSON(w, http.StatusOK, budget)
}

// Create records a new budget for the current period. It becomes the
// family's current budget and counts toward this month's balance.
func (h *BudgetHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := readPayload(w, r)
	if !ok {
		return
	}
	patch, errs := parseBudgetPatch(p)
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}

	familyID := auth.FamilyID(r.Context())
	budget, err := h.budgetStore.Create(
		familyID,
		centsOrZero(patch.Amount),
		centsOrZero(patch.TotalIncome),
		centsOrZero(patch.TotalExpenses),
		h.now(),
	)
	if err != nil {
		serverError(w, h.logger, r, "create budget", err)
		return
	}

	events.Notify(r.Context(), h.publisher, h.logger, events.New(familyID, events.EntityBudget, events.ActionCreated, budget.ID))

	writeJSON(w, http.StatusCreated, budget)
}
