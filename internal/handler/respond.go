package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/homebudget/internal/middleware"
	"github.com/dukerupert/homebudget/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func serverError(w http.ResponseWriter, logger *slog.Logger, r *http.Request, msg string, err error) {
	logger.ErrorContext(r.Context(), msg,
		"error", err,
		"path", r.URL.Path,
		"request_id", middleware.RequestID(r.Context()),
	)
	writeDetail(w, http.StatusInternalServerError, "Internal server error.")
}

// parseIDParam reads a positive integer path value.
func parseIDParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func centsOrZero(d *decimal.Decimal) int64 {
	if d == nil {
		return 0
	}
	return model.ToCents(*d)
}
