package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/homebudget/internal/auth"
	"github.com/dukerupert/homebudget/internal/events"
	"github.com/dukerupert/homebudget/internal/model"
	"github.com/dukerupert/homebudget/internal/store"
)

const maxTitleLength = 100

type BankHandler struct {
	bankStore *store.BankStore
	publisher events.Publisher
	logger    *slog.Logger
}

func NewBankHandler(bs *store.BankStore, pub events.Publisher, logger *slog.Logger) *BankHandler {
	return &BankHandler{bankStore: bs, publisher: pub, logger: logger}
}

func (h *BankHandler) List(w http.ResponseWriter, r *http.Request) {
	banks, err := h.bankStore.List(auth.FamilyID(r.Context()))
	if err != nil {
		serverError(w, h.logger, r, "list banks", err)
		return
	}
	if banks == nil {
		banks = []model.Bank{}
	}
	writeJSON(w, http.StatusOK, banks)
}

func (h *BankHandler) Names(w http.ResponseWriter, r *http.Request) {
	names, err := h.bankStore.ListNames(auth.FamilyID(r.Context()))
	if err != nil {
		serverError(w, h.logger, r, "list bank names", err)
		return
	}
	if names == nil {
		names = []model.BankName{}
	}
	writeJSON(w, http.StatusOK, names)
}

// Create adds a bank owned by the caller. "name" is accepted in place of
// "bank_name".
func (h *BankHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := readPayload(w, r)
	if !ok {
		return
	}

	errs := fieldErrors{}
	nameField := "bank_name"
	if !p.present(nameField) && p.present("name") {
		nameField = "name"
	}
	name := p.str(nameField, false, errs)
	balance := p.amount("balance", errs)

	checkTitle(errs, nameField, name, true, maxTitleLength)
	checkAmount(errs, "balance", balance, false, false)
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}

	var balanceCents int64
	if balance != nil {
		balanceCents = model.ToCents(*balance)
	}

	ac, _ := auth.FromContext(r.Context())
	bank, err := h.bankStore.Create(ac.FamilyID, ac.UserID, *name, balanceCents)
	if err != nil {
		serverError(w, h.logger, r, "create bank", err)
		return
	}

	events.Notify(r.Context(), h.publisher, h.logger, events.New(ac.FamilyID, events.EntityBank, events.ActionCreated, bank.ID))

	writeJSON(w, http.StatusCreated, bank)
}
