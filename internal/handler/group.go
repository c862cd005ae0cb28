package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/homebudget/internal/auth"
	"github.com/dukerupert/homebudget/internal/events"
	"github.com/dukerupert/homebudget/internal/model"
	"github.com/dukerupert/homebudget/internal/store"
)

const (
	groupNotFound    = "Group not found"
	categoryNotFound = "Category not found"
)

type GroupHandler struct {
	groupStore *store.GroupStore
	bankStore  *store.BankStore
	publisher  events.Publisher
	logger     *slog.Logger
	now        func() time.Time
}

func NewGroupHandler(gs *store.GroupStore, bs *store.BankStore, pub events.Publisher, logger *slog.Logger) *GroupHandler {
	return &GroupHandler{groupStore: gs, bankStore: bs, publisher: pub, logger: logger, now: time.Now}
}

func (h *GroupHandler) List(w http.ResponseWriter, r *http.Request) {
	groups, err := h.groupStore.List(auth.FamilyID(r.Context()))
	if err != nil {
		serverError(w, h.logger, r, "list groups", err)
		return
	}
	if groups == nil {
		groups = []model.Group{}
	}
	writeJSON(w, http.StatusOK, groups)
}

func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := readPayload(w, r)
	if !ok {
		return
	}

	errs := fieldErrors{}
	title := p.str("groups_title", false, errs)
	checkTitle(errs, "groups_title", title, true, maxTitleLength)
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}

	ac, _ := auth.FromContext(r.Context())
	group, err := h.groupStore.Create(ac.FamilyID, ac.UserID, *title)
	if err != nil {
		serverError(w, h.logger, r, "create group", err)
		return
	}

	events.Notify(r.Context(), h.publisher, h.logger, events.New(ac.FamilyID, events.EntityGroup, events.ActionCreated, group.ID))

	writeJSON(w, http.StatusCreated, group)
}

// AddCategory adds a category to the group named in the path.
func (h *GroupHandler) AddCategory(w http.ResponseWriter, r *http.Request) {
	groupID, ok := parseIDParam(r, "id")
	if !ok {
		writeDetail(w, http.StatusNotFound, groupNotFound)
		return
	}
	p, ok := readPayload(w, r)
	if !ok {
		return
	}
	h.addCategory(w, r, groupID, p)
}

// AddCategoryToBodyGroup adds a category to the group named by the "group"
// field of the body.
func (h *GroupHandler) AddCategoryToBodyGroup(w http.ResponseWriter, r *http.Request) {
	p, ok := readPayload(w, r)
	if !ok {
		return
	}

	errs := fieldErrors{}
	groupID := p.id("group", errs)
	if groupID == nil && !errs.has("group") {
		errs.add("group", msgRequired)
	}
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}
	h.addCategory(w, r, *groupID, p)
}

func (h *GroupHandler) addCategory(w http.ResponseWriter, r *http.Request, groupID int64, p payload) {
	ac, _ := auth.FromContext(r.Context())

	group, err := h.groupStore.GetByID(ac.FamilyID, groupID)
	if err != nil {
		serverError(w, h.logger, r, "get group", err)
		return
	}
	if group == nil {
		writeDetail(w, http.StatusNotFound, groupNotFound)
		return
	}

	errs := fieldErrors{}
	title := p.str("category_title", false, errs)
	note := p.str("category_note", true, errs)
	amount := p.amount("assigned_amount", errs)
	bankID := p.id("bank", errs)

	checkTitle(errs, "category_title", title, true, maxTitleLength)
	checkAmount(errs, "assigned_amount", amount, true, true)
	if !h.checkBank(w, r, errs, ac.FamilyID, bankID) {
		return
	}
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}

	noteText := ""
	if note != nil {
		noteText = *note
	}
	category, err := h.groupStore.AddCategory(group.ID, ac.UserID, *title, noteText, model.ToCents(*amount), bankID, h.now())
	if err != nil {
		serverError(w, h.logger, r, "add category", err)
		return
	}

	events.Notify(r.Context(), h.publisher, h.logger, events.New(ac.FamilyID, events.EntityCategory, events.ActionCreated, category.ID))

	writeJSON(w, http.StatusCreated, category)
}

// UpdateCategory applies a partial update. PUT and PATCH behave the same.
func (h *GroupHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	groupID, ok := parseIDParam(r, "id")
	if !ok {
		writeDetail(w, http.StatusNotFound, groupNotFound)
		return
	}
	categoryID, ok := parseIDParam(r, "cid")
	if !ok {
		writeDetail(w, http.StatusNotFound, categoryNotFound)
		return
	}

	familyID := auth.FamilyID(r.Context())
	group, err := h.groupStore.GetByID(familyID, groupID)
	if err != nil {
		serverError(w, h.logger, r, "get group", err)
		return
	}
	if group == nil {
		writeDetail(w, http.StatusNotFound, groupNotFound)
		return
	}
	existing, err := h.groupStore.GetCategory(group.ID, categoryID)
	if err != nil {
		serverError(w, h.logger, r, "get category", err)
		return
	}
	if existing == nil {
		writeDetail(w, http.StatusNotFound, categoryNotFound)
		return
	}

	p, ok := readPayload(w, r)
	if !ok {
		return
	}

	errs := fieldErrors{}
	patch := model.CategoryPatch{
		Title:          p.str("category_title", false, errs),
		Note:           p.str("category_note", true, errs),
		AssignedAmount: p.amount("assigned_amount", errs),
		BankID:         p.id("bank", errs),
		ClearBank:      p.isNull("bank"),
	}
	checkTitle(errs, "category_title", patch.Title, false, maxTitleLength)
	checkAmount(errs, "assigned_amount", patch.AssignedAmount, false, true)
	if !h.checkBank(w, r, errs, familyID, patch.BankID) {
		return
	}
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}

	category, err := h.groupStore.UpdateCategory(group.ID, existing.ID, patch)
	if err != nil {
		serverError(w, h.logger, r, "update category", err)
		return
	}

	if !patch.Empty() {
		events.Notify(r.Context(), h.publisher, h.logger, events.New(familyID, events.EntityCategory, events.ActionUpdated, category.ID))
	}

	writeJSON(w, http.StatusOK, category)
}

// checkBank adds a field error when bankID is set but not a bank of the
// family. It returns false after writing a 500.
func (h *GroupHandler) checkBank(w http.ResponseWriter, r *http.Request, errs fieldErrors, familyID int64, bankID *int64) bool {
	if bankID == nil {
		return true
	}
	bank, err := h.bankStore.GetByID(familyID, *bankID)
	if err != nil {
		serverError(w, h.logger, r, "get bank", err)
		return false
	}
	if bank == nil {
		errs.add("bank", fmt.Sprintf(`Invalid pk "%d" - object does not exist.`, *bankID))
	}
	return true
}
