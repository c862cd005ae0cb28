package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/homebudget/internal/auth"
	"github.com/dukerupert/homebudget/internal/events"
	"github.com/dukerupert/homebudget/internal/model"
	"github.com/dukerupert/homebudget/internal/store"
)

type FamilyHandler struct {
	familyStore *store.FamilyStore
	userStore   *store.UserStore
	publisher   events.Publisher
	logger      *slog.Logger
}

func NewFamilyHandler(fs *store.FamilyStore, us *store.UserStore, pub events.Publisher, logger *slog.Logger) *FamilyHandler {
	return &FamilyHandler{familyStore: fs, userStore: us, publisher: pub, logger: logger}
}

func (h *FamilyHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.familyStore.ListMembers(auth.FamilyID(r.Context()))
	if err != nil {
		serverError(w, h.logger, r, "list members", err)
		return
	}
	if members == nil {
		members = []model.MemberProfile{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"member_count": len(members),
		"members":      members,
	})
}

// Rename changes the caller's family name. Admins only.
func (h *FamilyHandler) Rename(w http.ResponseWriter, r *http.Request) {
	p, ok := readPayload(w, r)
	if !ok {
		return
	}

	errs := fieldErrors{}
	name := p.str("name", false, errs)
	checkTitle(errs, "name", name, true, 100)
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}

	familyID := auth.FamilyID(r.Context())
	family, err := h.familyStore.Update(familyID, strings.TrimSpace(*name))
	if err != nil {
		serverError(w, h.logger, r, "rename family", err)
		return
	}
	if family == nil {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}

	events.Notify(r.Context(), h.publisher, h.logger, events.New(familyID, events.EntityFamily, events.ActionUpdated, familyID))

	writeJSON(w, http.StatusOK, family)
}

// AddMember attaches an existing user without a family to the caller's family.
func (h *FamilyHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	p, ok := readPayload(w, r)
	if !ok {
		return
	}

	errs := fieldErrors{}
	email := p.str("email", false, errs)
	role := p.str("role", true, errs)
	checkTitle(errs, "email", email, true, 254)
	if role == nil || *role == "" {
		member := model.RoleMember
		role = &member
	} else if *role != model.RoleAdmin && *role != model.RoleMember {
		errs.add("role", `"`+*role+`" is not a valid choice.`)
	}
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}

	user, err := h.userStore.GetByEmail(*email)
	if err != nil {
		serverError(w, h.logger, r, "member lookup", err)
		return
	}
	if user == nil {
		writeJSON(w, http.StatusBadRequest, fieldErrors{"email": {"No user with this email address."}})
		return
	}

	existing, err := h.familyStore.GetMembershipForUser(user.ID)
	if err != nil {
		serverError(w, h.logger, r, "member membership", err)
		return
	}
	if existing != nil {
		writeJSON(w, http.StatusBadRequest, fieldErrors{"email": {"User already belongs to a family."}})
		return
	}

	familyID := auth.FamilyID(r.Context())
	member, err := h.familyStore.AddMember(familyID, user.ID, *role)
	if errors.Is(err, store.ErrAlreadyMember) {
		writeJSON(w, http.StatusBadRequest, fieldErrors{"email": {"User already belongs to a family."}})
		return
	}
	if err != nil {
		serverError(w, h.logger, r, "add member", err)
		return
	}

	events.Notify(r.Context(), h.publisher, h.logger, events.New(familyID, events.EntityMember, events.ActionCreated, user.ID))

	writeJSON(w, http.StatusCreated, model.MemberProfile{
		UserID:   user.ID,
		Email:    user.Email,
		Name:     user.Name,
		Role:     member.Role,
		JoinedAt: member.CreatedAt,
	})
}
