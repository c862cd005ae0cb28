package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/homebudget/internal/auth"
)

// HandleWebSocket upgrades an authenticated request and runs it as a client
// of the caller's family. originPatterns are host patterns passed to
// websocket.Accept; empty means same-origin only.
func HandleWebSocket(hub *Hub, logger *slog.Logger, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ac, ok := auth.FromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			logger.Warn("websocket accept", "error", err, "family_id", ac.FamilyID)
			return
		}
		defer conn.CloseNow()

		logger.Debug("websocket connected", "family_id", ac.FamilyID, "user_id", ac.UserID)
		NewClient(hub, conn, ac.FamilyID, ac.UserID).Run(r.Context())
		logger.Debug("websocket disconnected",
			"family_id", ac.FamilyID,
			"user_id", ac.UserID,
			"family_clients", hub.FamilyClientCount(ac.FamilyID),
		)
	}
}
