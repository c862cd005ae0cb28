package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/homebudget/internal/auth"
	"github.com/dukerupert/homebudget/internal/events"
	"github.com/dukerupert/homebudget/internal/loan"
	"github.com/dukerupert/homebudget/internal/model"
	"github.com/dukerupert/homebudget/internal/store"
)

const (
	loanNotFound    = "Loan not found"
	maxInstallments = 600
)

var maxInterestRate = decimal.NewFromInt(100)

type LoanHandler struct {
	loanStore *store.LoanStore
	publisher events.Publisher
	logger    *slog.Logger
}

func NewLoanHandler(ls *store.LoanStore, pub events.Publisher, logger *slog.Logger) *LoanHandler {
	return &LoanHandler{loanStore: ls, publisher: pub, logger: logger}
}

func (h *LoanHandler) List(w http.ResponseWriter, r *http.Request) {
	loans, err := h.loanStore.List(auth.FamilyID(r.Context()))
	if err != nil {
		serverError(w, h.logger, r, "list loans", err)
		return
	}
	if loans == nil {
		loans = []model.Loan{}
	}
	writeJSON(w, http.StatusOK, loans)
}

func (h *LoanHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := readPayload(w, r)
	if !ok {
		return
	}

	l, errs := parseLoan(p)
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}

	ac, _ := auth.FromContext(r.Context())
	created, err := h.loanStore.Create(ac.FamilyID, ac.UserID, l)
	if err != nil {
		serverError(w, h.logger, r, "create loan", err)
		return
	}

	events.Notify(r.Context(), h.publisher, h.logger, events.New(ac.FamilyID, events.EntityLoan, events.ActionCreated, created.ID))

	writeJSON(w, http.StatusCreated, created)
}

func parseLoan(p payload) (model.Loan, fieldErrors) {
	errs := fieldErrors{}
	name := p.str("name", false, errs)
	amount := p.amount("amount_reaming", errs)
	loanType := p.str("loan_type", false, errs)
	rate := p.amount("interest_rate", errs)
	day := p.integer("payment_day", errs)
	lastPayment := p.str("last_payment_date", false, errs)
	installments := p.integer("installments_remaining", errs)

	checkTitle(errs, "name", name, true, maxTitleLength)
	checkAmount(errs, "amount_reaming", amount, true, true)

	switch {
	case loanType == nil:
		if !errs.has("loan_type") {
			errs.add("loan_type", msgRequired)
		}
	case *loanType != model.LoanFixed && *loanType != model.LoanDecreasing:
		errs.add("loan_type", `"`+*loanType+`" is not a valid choice.`)
	}

	checkAmount(errs, "interest_rate", rate, true, false)
	if rate != nil && rate.GreaterThan(maxInterestRate) {
		errs.add("interest_rate", "Ensure this value is less than or equal to 100.")
	}

	checkRange(errs, "payment_day", day, 1, 31)
	checkRange(errs, "installments_remaining", installments, 1, maxInstallments)

	checkTitle(errs, "last_payment_date", lastPayment, true, len(time.DateOnly))
	if lastPayment != nil && !errs.has("last_payment_date") {
		if _, err := time.Parse(time.DateOnly, *lastPayment); err != nil {
			errs.add("last_payment_date", "Date has wrong format. Use one of these formats instead: YYYY-MM-DD.")
		}
	}

	if len(errs) > 0 {
		return model.Loan{}, errs
	}
	return model.Loan{
		Name:                  *name,
		AmountRemaining:       *amount,
		LoanType:              *loanType,
		InterestRate:          *rate,
		PaymentDay:            int(*day),
		LastPaymentDate:       *lastPayment,
		InstallmentsRemaining: int(*installments),
	}, nil
}

// Installments returns the repayment schedule of one loan.
func (h *LoanHandler) Installments(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(r, "id")
	if !ok {
		writeDetail(w, http.StatusNotFound, loanNotFound)
		return
	}
	l, err := h.loanStore.GetByID(auth.FamilyID(r.Context()), id)
	if err != nil {
		serverError(w, h.logger, r, "get loan", err)
		return
	}
	if l == nil {
		writeDetail(w, http.StatusNotFound, loanNotFound)
		return
	}

	schedule, err := loan.Build(l)
	if err != nil {
		serverError(w, h.logger, r, "loan schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, schedule)
}
