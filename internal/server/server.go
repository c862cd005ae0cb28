package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/homebudget/internal/events"
	"github.com/dukerupert/homebudget/internal/handler"
	"github.com/dukerupert/homebudget/internal/middleware"
	"github.com/dukerupert/homebudget/internal/store"
	"github.com/dukerupert/homebudget/internal/token"
	ws "github.com/dukerupert/homebudget/internal/websocket"
)

const (
	authRateLimit  = 10
	authRateWindow = time.Minute
)

type Options struct {
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	AllowedOrigins  []string
}

type Server struct {
	db             *sql.DB
	hub            *ws.Hub
	tokens         *token.Manager
	authH          *handler.AuthHandler
	familyH        *handler.FamilyHandler
	bankH          *handler.BankHandler
	budgetH        *handler.BudgetHandler
	balanceH       *handler.BalanceHandler
	groupH         *handler.GroupHandler
	loanH          *handler.LoanHandler
	sessionStore   *store.SessionStore
	familyStore    *store.FamilyStore
	rateLimiter    *middleware.RateLimiter
	allowedOrigins []string
	logger         *slog.Logger
}

// New wires stores, handlers and the websocket hub. Change events go to the
// hub and, when broker is non-nil, to the broker as well.
func New(db *sql.DB, opts Options, broker events.Publisher, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	var publisher events.Publisher = hub
	if broker != nil {
		publisher = events.Fanout{hub, broker}
	}

	userStore := store.NewUserStore(db)
	familyStore := store.NewFamilyStore(db)
	sessionStore := store.NewSessionStore(db)
	bankStore := store.NewBankStore(db)
	budgetStore := store.NewBudgetStore(db)
	groupStore := store.NewGroupStore(db)
	balanceStore := store.NewBalanceStore(db)
	loanStore := store.NewLoanStore(db)

	tokens := token.NewManager(opts.JWTSecret, opts.AccessTokenTTL)

	return &Server{
		db:             db,
		hub:            hub,
		tokens:         tokens,
		authH:          handler.NewAuthHandler(userStore, familyStore, sessionStore, tokens, opts.RefreshTokenTTL, logger.With("component", "auth")),
		familyH:        handler.NewFamilyHandler(familyStore, userStore, publisher, logger.With("component", "family")),
		bankH:          handler.NewBankHandler(bankStore, publisher, logger.With("component", "bank")),
		budgetH:        handler.NewBudgetHandler(budgetStore, publisher, logger.With("component", "budget")),
		balanceH:       handler.NewBalanceHandler(budgetStore, balanceStore, groupStore, logger.With("component", "balance")),
		groupH:         handler.NewGroupHandler(groupStore, bankStore, publisher, logger.With("component", "group")),
		loanH:          handler.NewLoanHandler(loanStore, publisher, logger.With("component", "loan")),
		sessionStore:   sessionStore,
		familyStore:    familyStore,
		rateLimiter:    middleware.NewRateLimiter(),
		allowedOrigins: opts.AllowedOrigins,
		logger:         logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("POST /api/register/{$}", s.rateLimited("register", s.authH.Register))
	outerMux.HandleFunc("POST /api/token/{$}", s.rateLimited("token", s.authH.Token))
	outerMux.HandleFunc("POST /api/token/refresh/{$}", s.authH.Refresh)
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Everything else under /api/ requires a valid access token
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.tokens, s.sessionStore, s.familyStore)
	outerMux.Handle("/api/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check", "error", err)
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"status":            status,
		"websocket_clients": s.hub.ClientCount(),
	})
}

func (s *Server) rateLimited(scope string, h http.HandlerFunc) http.HandlerFunc {
	limit := middleware.RateLimit(s.rateLimiter, middleware.KeyByIP(scope), authRateLimit, authRateWindow)
	return limit(h).ServeHTTP
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Account
	mux.HandleFunc("POST /api/logout/{$}", s.authH.Logout)
	mux.HandleFunc("GET /api/me/{$}", s.authH.Me)
	mux.HandleFunc("PATCH /api/me/{$}", s.authH.UpdateMe)
	mux.HandleFunc("POST /api/password/{$}", s.authH.ChangePassword)
	mux.Handle("PATCH /api/families/{$}", middleware.RequireAdmin(http.HandlerFunc(s.familyH.Rename)))
	mux.HandleFunc("GET /api/families/members/{$}", s.familyH.ListMembers)
	mux.Handle("POST /api/families/members/{$}", middleware.RequireAdmin(http.HandlerFunc(s.familyH.AddMember)))

	// Banks
	mux.HandleFunc("GET /api/banks/{$}", s.bankH.List)
	mux.HandleFunc("POST /api/banks/{$}", s.bankH.Create)
	mux.HandleFunc("GET /api/banks/name/{$}", s.bankH.Names)

	// Budget
	mux.HandleFunc("GET /api/budget/{$}", s.budgetH.Get)
	mux.HandleFunc("POST /api/budget/{$}", s.budgetH.Create)
	mux.HandleFunc("PUT /api/budget/{$}", s.budgetH.Update)
	mux.HandleFunc("PATCH /api/budget/{$}", s.budgetH.Update)

	// Balances
	mux.HandleFunc("GET /api/balance/monthly/{$}", s.balanceH.Monthly)
	mux.HandleFunc("GET /api/balance/current-month/{$}", s.balanceH.CurrentMonth)
	mux.HandleFunc("GET /api/group-balance/{$}", s.balanceH.GroupBalances)
	mux.HandleFunc("GET /api/group-balance/{id}/{$}", s.balanceH.GroupBalance)
	mux.HandleFunc("GET /api/group-balance-chart/{$}", s.balanceH.Chart)
	mux.HandleFunc("GET /api/group-balance-chart/{id}/{$}", s.balanceH.Chart)

	// Groups and categories
	mux.HandleFunc("GET /api/groups/{$}", s.groupH.List)
	mux.HandleFunc("POST /api/groups/{$}", s.groupH.Create)
	mux.HandleFunc("POST /api/groups/add-categories/{$}", s.groupH.AddCategoryToBodyGroup)
	mux.HandleFunc("POST /api/groups/{id}/add-categories/{$}", s.groupH.AddCategory)
	mux.HandleFunc("PUT /api/groups/{id}/update-categories/{cid}/{$}", s.groupH.UpdateCategory)
	mux.HandleFunc("PATCH /api/groups/{id}/update-categories/{cid}/{$}", s.groupH.UpdateCategory)

	// Loans
	mux.HandleFunc("GET /api/loans/{$}", s.loanH.List)
	mux.HandleFunc("POST /api/loans/{$}", s.loanH.Create)
	mux.HandleFunc("GET /api/loan/{id}/installments/{$}", s.loanH.Installments)

	// WebSocket
	mux.HandleFunc("GET /api/ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket"), s.allowedOrigins))
}
