package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dukerupert/homebudget/internal/auth"
	"github.com/dukerupert/homebudget/internal/store"
	"github.com/dukerupert/homebudget/internal/token"
)

// RequireAuth validates the bearer access token and populates AuthContext.
// Browsers cannot set headers on websocket upgrades, so an access_token query
// parameter is accepted as well. The token's session must still exist and the
// user must still belong to the token's family.
func RequireAuth(tokens *token.Manager, sessionStore *store.SessionStore, familyStore *store.FamilyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
				return
			}

			claims, err := tokens.Parse(raw)
			if errors.Is(err, token.ErrExpired) {
				writeDetail(w, http.StatusUnauthorized, "Token has expired.")
				return
			}
			if err != nil {
				writeDetail(w, http.StatusUnauthorized, "Given token not valid.")
				return
			}
			userID, _ := claims.UserID()

			live, err := sessionStore.Exists(claims.SessionID)
			if err != nil {
				writeDetail(w, http.StatusInternalServerError, "Internal server error.")
				return
			}
			if !live {
				writeDetail(w, http.StatusUnauthorized, "Session has ended.")
				return
			}

			member, err := familyStore.GetMember(claims.FamilyID, userID)
			if err != nil {
				writeDetail(w, http.StatusInternalServerError, "Internal server error.")
				return
			}
			if member == nil {
				writeDetail(w, http.StatusUnauthorized, "User is not a member of this family.")
				return
			}

			ac := auth.AuthContext{
				UserID:    userID,
				FamilyID:  claims.FamilyID,
				Role:      member.Role,
				SessionID: claims.SessionID,
			}

			ctx := auth.WithAuth(r.Context(), ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin checks that the authenticated user has the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAdmin(r.Context()) {
			writeDetail(w, http.StatusForbidden, "You do not have permission to perform this action.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, value, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(value)
	}
	return r.URL.Query().Get("access_token")
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
