package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dukerupert/homebudget/internal/auth"
	"github.com/dukerupert/homebudget/internal/model"
	"github.com/dukerupert/homebudget/internal/store"
	"github.com/dukerupert/homebudget/internal/token"
)

const minPasswordLength = 8

type AuthHandler struct {
	userStore    *store.UserStore
	familyStore  *store.FamilyStore
	sessionStore *store.SessionStore
	tokens       *token.Manager
	refreshTTL   time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

func NewAuthHandler(
	us *store.UserStore,
	fs *store.FamilyStore,
	ss *store.SessionStore,
	tokens *token.Manager,
	refreshTTL time.Duration,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		userStore:    us,
		familyStore:  fs,
		sessionStore: ss,
		tokens:       tokens,
		refreshTTL:   refreshTTL,
		logger:       logger,
		now:          time.Now,
	}
}

type tokenPair struct {
	Access    string `json:"access"`
	Refresh   string `json:"refresh"`
	ExpiresIn int    `json:"expires_in"`
}

const msgEmailTaken = "user with this email already exists."

// issue opens a refresh session and signs an access token bound to it.
func (h *AuthHandler) issue(userID, familyID int64, role string) (*tokenPair, error) {
	sess, err := h.sessionStore.Create(userID, familyID, h.refreshTTL)
	if err != nil {
		return nil, err
	}
	access, _, err := h.tokens.Issue(userID, familyID, sess.ID, role)
	if err != nil {
		return nil, err
	}
	return &tokenPair{Access: access, Refresh: sess.Token, ExpiresIn: h.expiresIn()}, nil
}

// expiresIn is the access token lifetime in seconds.
func (h *AuthHandler) expiresIn() int {
	return int(h.tokens.TTL().Seconds())
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	p, ok := readPayload(w, r)
	if !ok {
		return
	}

	errs := fieldErrors{}
	email := p.str("email", false, errs)
	password := p.text("password", false, errs)
	name := p.str("name", true, errs)
	familyName := p.str("family_name", false, errs)

	checkTitle(errs, "email", email, true, 254)
	if email != nil && !errs.has("email") {
		if _, err := mail.ParseAddress(*email); err != nil {
			errs.add("email", "Enter a valid email address.")
		}
	}
	if password == nil {
		if !errs.has("password") {
			errs.add("password", msgRequired)
		}
	} else if utf8.RuneCountInString(*password) < minPasswordLength {
		errs.add("password", "This password is too short. It must contain at least 8 characters.")
	}
	checkTitle(errs, "family_name", familyName, true, 100)
	if name != nil && utf8.RuneCountInString(*name) > 100 {
		errs.add("name", msgMaxLength(100))
	}

	if len(errs) == 0 {
		existing, err := h.userStore.GetByEmail(*email)
		if err != nil {
			serverError(w, h.logger, r, "register lookup", err)
			return
		}
		if existing != nil {
			errs.add("email", msgEmailTaken)
		}
	}
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}

	hash, err := auth.HashPassword(*password)
	if err != nil {
		serverError(w, h.logger, r, "hash password", err)
		return
	}

	displayName := ""
	if name != nil {
		displayName = *name
	}
	user, err := h.userStore.Create(*email, displayName, hash)
	if errors.Is(err, store.ErrEmailTaken) {
		// lost a race with a concurrent registration
		writeJSON(w, http.StatusBadRequest, fieldErrors{"email": {msgEmailTaken}})
		return
	}
	if err != nil {
		serverError(w, h.logger, r, "create user", err)
		return
	}

	family, err := h.familyStore.CreateWithOwner(*familyName, user.ID, h.now())
	if err != nil {
		serverError(w, h.logger, r, "create family", err)
		return
	}

	pair, err := h.issue(user.ID, family.ID, model.RoleAdmin)
	if err != nil {
		serverError(w, h.logger, r, "issue tokens", err)
		return
	}

	h.logger.Info("family registered", "family_id", family.ID, "user_id", user.ID)

	writeJSON(w, http.StatusCreated, map[string]any{
		"user":    user,
		"family":  family,
		"role":    model.RoleAdmin,
		"access":     pair.Access,
		"refresh":    pair.Refresh,
		"expires_in": pair.ExpiresIn,
	})
}

// Token exchanges email and password for an access/refresh pair.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	p, ok := readPayload(w, r)
	if !ok {
		return
	}

	errs := fieldErrors{}
	email := p.str("email", false, errs)
	password := p.text("password", false, errs)
	checkTitle(errs, "email", email, true, 254)
	if password == nil && !errs.has("password") {
		errs.add("password", msgRequired)
	}
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}

	const badCredentials = "No active account found with the given credentials"

	user, err := h.userStore.GetByEmail(*email)
	if err != nil {
		serverError(w, h.logger, r, "login lookup", err)
		return
	}
	if user == nil {
		writeDetail(w, http.StatusUnauthorized, badCredentials)
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, *password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			h.logger.Warn("check password", "error", err, "user_id", user.ID)
		}
		writeDetail(w, http.StatusUnauthorized, badCredentials)
		return
	}

	member, err := h.familyStore.GetMembershipForUser(user.ID)
	if err != nil {
		serverError(w, h.logger, r, "login membership", err)
		return
	}
	if member == nil {
		writeDetail(w, http.StatusForbidden, "User does not belong to a family.")
		return
	}

	pair, err := h.issue(user.ID, member.FamilyID, member.Role)
	if err != nil {
		serverError(w, h.logger, r, "issue tokens", err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// Refresh signs a new access token for a live refresh session.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	p, ok := readPayload(w, r)
	if !ok {
		return
	}

	errs := fieldErrors{}
	refresh := p.str("refresh", false, errs)
	checkTitle(errs, "refresh", refresh, true, 128)
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}

	sess, err := h.sessionStore.GetByToken(*refresh)
	if err != nil {
		serverError(w, h.logger, r, "refresh lookup", err)
		return
	}
	if sess == nil {
		writeDetail(w, http.StatusUnauthorized, "Token is invalid or expired")
		return
	}

	member, err := h.familyStore.GetMember(sess.FamilyID, sess.UserID)
	if err != nil {
		serverError(w, h.logger, r, "refresh membership", err)
		return
	}
	if member == nil {
		if err := h.sessionStore.Delete(sess.ID); err != nil {
			h.logger.Warn("delete orphaned session", "error", err, "session_id", sess.ID)
		}
		writeDetail(w, http.StatusUnauthorized, "Token is invalid or expired")
		return
	}

	access, _, err := h.tokens.Issue(sess.UserID, sess.FamilyID, sess.ID, member.Role)
	if err != nil {
		serverError(w, h.logger, r, "issue access token", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access":     access,
		"expires_in": h.expiresIn(),
	})
}

// Logout ends the caller's session, which also invalidates its access tokens.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	if err := h.sessionStore.Delete(ac.SessionID); err != nil {
		serverError(w, h.logger, r, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ChangePassword replaces the caller's password, ends every session the user
// has open, and returns a fresh pair for the current device.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	p, ok := readPayload(w, r)
	if !ok {
		return
	}

	errs := fieldErrors{}
	oldPassword := p.text("old_password", false, errs)
	newPassword := p.text("new_password", false, errs)
	confirm := p.text("confirm_password", false, errs)
	for key, v := range map[string]*string{"old_password": oldPassword, "new_password": newPassword, "confirm_password": confirm} {
		if v == nil && !errs.has(key) {
			errs.add(key, msgRequired)
		}
	}
	if newPassword != nil && utf8.RuneCountInString(*newPassword) < minPasswordLength {
		errs.add("new_password", "This password is too short. It must contain at least 8 characters.")
	}
	if newPassword != nil && confirm != nil && *newPassword != *confirm {
		errs.add("confirm_password", "The two password fields didn't match.")
	}
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}

	ac, _ := auth.FromContext(r.Context())
	user, err := h.userStore.GetByID(ac.UserID)
	if err != nil {
		serverError(w, h.logger, r, "password lookup", err)
		return
	}
	if user == nil {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, *oldPassword); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			h.logger.Warn("check password", "error", err, "user_id", user.ID)
		}
		writeJSON(w, http.StatusBadRequest, fieldErrors{
			"old_password": {"Your old password was entered incorrectly. Please enter it again."},
		})
		return
	}

	hash, err := auth.HashPassword(*newPassword)
	if err != nil {
		serverError(w, h.logger, r, "hash password", err)
		return
	}
	if err := h.userStore.UpdatePassword(user.ID, hash); err != nil {
		serverError(w, h.logger, r, "update password", err)
		return
	}
	if err := h.sessionStore.DeleteByUserID(user.ID); err != nil {
		serverError(w, h.logger, r, "revoke sessions", err)
		return
	}

	pair, err := h.issue(user.ID, ac.FamilyID, ac.Role)
	if err != nil {
		serverError(w, h.logger, r, "issue tokens", err)
		return
	}

	h.logger.Info("password changed", "user_id", user.ID)
	writeJSON(w, http.StatusOK, pair)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	user, err := h.userStore.GetByID(ac.UserID)
	if err != nil {
		serverError(w, h.logger, r, "me user", err)
		return
	}
	family, err := h.familyStore.GetByID(ac.FamilyID)
	if err != nil {
		serverError(w, h.logger, r, "me family", err)
		return
	}
	if user == nil || family == nil {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":   user,
		"family": family,
		"role":   ac.Role,
	})
}

// UpdateMe renames the caller.
func (h *AuthHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
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

	user, err := h.userStore.UpdateName(auth.UserID(r.Context()), strings.TrimSpace(*name))
	if err != nil {
		serverError(w, h.logger, r, "update me", err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
