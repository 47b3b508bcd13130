// Package api provides the admin HTTP server for spendguard.
// It exposes the policy engine to the checkout UI and to operators:
// spend checks, checkout, permission-request lifecycle, resets, metrics.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spendguard/spendguard/internal/app/checkout"
	"github.com/spendguard/spendguard/internal/domain"
	"github.com/spendguard/spendguard/internal/policy/autospend"
	"github.com/spendguard/spendguard/internal/policy/permission"
	"github.com/spendguard/spendguard/internal/policy/spendtrack"
)

// Server is the spendguard admin HTTP API server.
type Server struct {
	tracker        *spendtrack.Tracker
	ledger         *permission.Ledger
	arbiter        *autospend.Arbiter
	service        *checkout.Service
	accounts       domain.SubAccountProvider
	metricsEnabled bool
}

// NewServer creates a new API server over the policy engines.
func NewServer(tracker *spendtrack.Tracker, ledger *permission.Ledger, arbiter *autospend.Arbiter,
	service *checkout.Service, accounts domain.SubAccountProvider) *Server {
	return &Server{
		tracker:  tracker,
		ledger:   ledger,
		arbiter:  arbiter,
		service:  service,
		accounts: accounts,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Minute))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/spend/check", s.handleSpendCheck)
		r.Post("/checkout", s.handleCheckout)

		r.Route("/requests", func(r chi.Router) {
			r.Get("/", s.handleListRequests)
			r.Post("/", s.handleCreateRequest)
			r.Post("/cleanup", s.handleCleanup)
			r.Get("/{id}", s.handleGetRequest)
			r.Post("/{id}/approve", s.handleApprove)
			r.Post("/{id}/reject", s.handleReject)
		})

		r.Route("/limits", func(r chi.Router) {
			r.Put("/", s.handleSetLimits)
			r.Post("/reset/daily", s.handleResetDaily)
			r.Post("/reset/monthly", s.handleResetMonthly)
		})

		r.Get("/autospend/status", s.handleAutoSpendStatus)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// ─── Status & Spend Checks ──────────────────────────────────────────────────

// handleStatus returns a full policy snapshot.
// GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"limits":   s.tracker.Config(),
		"tracking": s.tracker.Tracking(),
		"requests": s.ledger.Stats(),
	}
	if s.service != nil {
		resp["checkouts"] = s.service.Stats()
	}
	if cfg := s.arbiter.Config(); cfg != nil {
		resp["autospend"] = cfg
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSpendCheck evaluates the period tracker for an amount.
// GET /api/spend/check?amount=1500
func (s *Server) handleSpendCheck(w http.ResponseWriter, r *http.Request) {
	amount, err := strconv.ParseInt(r.URL.Query().Get("amount"), 10, 64)
	if err != nil || amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be a positive integer (cents)")
		return
	}
	writeJSON(w, http.StatusOK, s.tracker.CanSpend(amount))
}

// handleCheckout runs the full payment flow.
// POST /api/checkout
func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	if s.service == nil {
		writeError(w, http.StatusServiceUnavailable, "checkout not initialized")
		return
	}
	var req checkout.PayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Amount <= 0 || req.Recipient == "" {
		writeError(w, http.StatusBadRequest, "amount (cents) and recipient_address are required")
		return
	}
	writeJSON(w, http.StatusOK, s.service.Pay(r.Context(), req))
}

// ─── Permission Requests ────────────────────────────────────────────────────

// handleListRequests lists requests, optionally filtered by status.
// GET /api/requests?status=pending
func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	status := domain.RequestStatus(r.URL.Query().Get("status"))
	reqs := s.ledger.List(status)
	if reqs == nil {
		reqs = []domain.PermissionRequest{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"requests": reqs,
		"stats":    s.ledger.Stats(),
	})
}

// handleCreateRequest files a new permission request.
// POST /api/requests
func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SubAccountID string `json:"sub_account_id"`
		Amount       int64  `json:"amount"`
		Recipient    string `json:"recipient_address"`
		Purpose      string `json:"purpose"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Amount <= 0 || body.Recipient == "" {
		writeError(w, http.StatusBadRequest, "amount (cents) and recipient_address are required")
		return
	}

	req, err := s.ledger.Request(body.SubAccountID, body.Amount, body.Recipient, body.Purpose)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// handleGetRequest returns one request by id.
// GET /api/requests/{id}
func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := s.ledger.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// handleApprove approves a pending request.
// POST /api/requests/{id}/approve
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ApprovedBy string `json:"approved_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ApprovedBy == "" {
		writeError(w, http.StatusBadRequest, "approved_by is required")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.ledger.Approve(id, body.ApprovedBy); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	req, _ := s.ledger.Get(id)
	writeJSON(w, http.StatusOK, req)
}

// handleReject rejects a pending request.
// POST /api/requests/{id}/reject
func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RejectedBy string `json:"rejected_by"`
		Reason     string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RejectedBy == "" {
		writeError(w, http.StatusBadRequest, "rejected_by is required")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.ledger.Reject(id, body.RejectedBy, body.Reason); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	req, _ := s.ledger.Get(id)
	writeJSON(w, http.StatusOK, req)
}

// handleCleanup flips expired pending requests.
// POST /api/requests/cleanup
func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"expired": s.ledger.CleanupExpired(),
		"stats":   s.ledger.Stats(),
	})
}

// ─── Limits ─────────────────────────────────────────────────────────────────

// handleSetLimits updates daily/monthly limits.
// PUT /api/limits
func (s *Server) handleSetLimits(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Daily   int64 `json:"daily"`
		Monthly int64 `json:"monthly"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Daily <= 0 || body.Monthly <= 0 {
		writeError(w, http.StatusBadRequest, "daily and monthly must be positive (cents)")
		return
	}
	if err := s.tracker.SetLimits(body.Daily, body.Monthly); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.tracker.Config())
}

// handleResetDaily zeroes the daily window (administrative override).
// POST /api/limits/reset/daily
func (s *Server) handleResetDaily(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.ResetDaily(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.tracker.Tracking())
}

// handleResetMonthly zeroes the monthly window.
// POST /api/limits/reset/monthly
func (s *Server) handleResetMonthly(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.ResetMonthly(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.tracker.Tracking())
}

// ─── Auto-Spend ─────────────────────────────────────────────────────────────

// handleAutoSpendStatus projects auto-spend eligibility for a sub-account.
// GET /api/autospend/status?sub_account_id=sa-1
func (s *Server) handleAutoSpendStatus(w http.ResponseWriter, r *http.Request) {
	var sub *domain.SubAccount
	if id := r.URL.Query().Get("sub_account_id"); id != "" && s.accounts != nil {
		found, err := s.accounts.SubAccount(id)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		sub = found
	}
	writeJSON(w, http.StatusOK, s.arbiter.Status(sub))
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrRequestNotFound), errors.Is(err, domain.ErrSubAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRequestNotPending), errors.Is(err, domain.ErrRequestExpired):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRecipientBlocked),
		errors.Is(err, domain.ErrRecipientNotAllowed),
		errors.Is(err, domain.ErrTooManyPending):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}
