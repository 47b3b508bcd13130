// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of clean architecture — it depends on nothing.
package domain

import (
	"fmt"
	"time"
)

// All monetary amounts are int64 cents of a stable-value token.

// ─── Spend Limit Configuration ──────────────────────────────────────────────

// SpendLimitConfig is the per-process spend policy owned by the tracker.
type SpendLimitConfig struct {
	DailyLimit        int64 `json:"daily_limit"`        // cents
	MonthlyLimit      int64 `json:"monthly_limit"`      // cents
	RequiresApproval  bool  `json:"requires_approval"`
	ApprovalThreshold int64 `json:"approval_threshold"` // cents; above this, approval needed
	AutoResetDaily    bool  `json:"auto_reset_daily"`
	AutoResetMonthly  bool  `json:"auto_reset_monthly"`
}

// ─── Spend Tracking State ───────────────────────────────────────────────────

// WindowUsage is the accumulated spend for one accounting window.
// ResetDate is the canonical window identifier: today's date (YYYY-MM-DD)
// for the daily window, first-of-month (YYYY-MM-01) for the monthly window.
// A stored ResetDate that differs from the current identifier marks the
// window as stale.
type WindowUsage struct {
	Amount    int64  `json:"amount"` // cents, always ≥ 0
	Limit     int64  `json:"limit"`  // cents, snapshot of the configured limit
	ResetDate string `json:"reset_date"`
}

// Remaining returns the unspent headroom in this window, floored at zero.
func (w WindowUsage) Remaining() int64 {
	remaining := w.Limit - w.Amount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// LastTransaction records the most recent spend applied to the counters.
type LastTransaction struct {
	Amount       int64     `json:"amount"`
	Timestamp    time.Time `json:"timestamp"`
	SubAccountID string    `json:"sub_account_id,omitempty"`
}

// SpendTracking holds the mutable spend counters persisted by the tracker.
type SpendTracking struct {
	Daily             WindowUsage      `json:"daily"`
	Monthly           WindowUsage      `json:"monthly"`
	TotalTransactions int64            `json:"total_transactions"`
	Last              *LastTransaction `json:"last_transaction,omitempty"`
}

// ─── Permission Requests ────────────────────────────────────────────────────

// RequestStatus is the lifecycle state of a permission request.
// Transitions: pending → approved | rejected | expired. Terminal states
// never transition again.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
	RequestExpired  RequestStatus = "expired"
)

// Terminal reports whether the status permits no further transitions.
func (s RequestStatus) Terminal() bool {
	return s == RequestApproved || s == RequestRejected || s == RequestExpired
}

// PermissionRequest is one spend-authorization request, owned by the
// permission ledger for its entire lifecycle.
type PermissionRequest struct {
	ID              string        `json:"id"`
	SubAccountID    string        `json:"sub_account_id"`
	Amount          int64         `json:"amount"` // cents
	Recipient       string        `json:"recipient_address"`
	Purpose         string        `json:"purpose"`
	RequestedAt     time.Time     `json:"requested_at"`
	Status          RequestStatus `json:"status"`
	ExpiresAt       time.Time     `json:"expires_at"` // fixed at creation, never extended
	ApprovedAt      *time.Time    `json:"approved_at,omitempty"`
	ApprovedBy      string        `json:"approved_by,omitempty"`
	RejectedAt      *time.Time    `json:"rejected_at,omitempty"`
	RejectedBy      string        `json:"rejected_by,omitempty"`
	RejectionReason string        `json:"rejection_reason,omitempty"`
}

// ExpiredAt reports whether the request's expiry has passed at the given time.
func (r *PermissionRequest) ExpiredAt(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// ApprovalConfig is the permission ledger's policy.
type ApprovalConfig struct {
	AutoApproveThreshold int64 `json:"auto_approve_threshold"` // cents
	MaxPendingRequests   int   `json:"max_pending_requests"`
	RequestExpiryHours   int   `json:"request_expiry_hours"`

	// RequireApprovalForSubAccounts makes sub-account spends above the
	// auto-approve threshold require an explicit permission request.
	RequireApprovalForSubAccounts bool `json:"require_approval_for_sub_accounts"`

	// AllowedRecipients, when non-empty, restricts recipients to this set.
	// BlockedRecipients is always enforced. Both are case-insensitive.
	AllowedRecipients []string `json:"allowed_recipients"`
	BlockedRecipients []string `json:"blocked_recipients"`
}

// RequestStats aggregates request counts per status, for observability only.
type RequestStats struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	Expired  int `json:"expired"`
}

// ─── Auto-Spend ─────────────────────────────────────────────────────────────

// AutoSpendConfig enables unattended spending from a single sub-account.
// When absent (nil), auto-spend is disabled entirely.
type AutoSpendConfig struct {
	Enabled           bool   `json:"enabled"`
	SubAccountID      string `json:"sub_account_id"`
	MaxAmount         int64  `json:"max_amount"` // cents, global per-transaction ceiling
	RequiresApproval  bool   `json:"requires_approval"`
	ApprovalThreshold int64  `json:"approval_threshold"` // cents
}

// SubAccount is an external scoped funding source. Read-only from the
// policy engine's perspective — the provider owns it.
type SubAccount struct {
	ID              string `json:"id"`
	Address         string `json:"address"`
	Name            string `json:"name"`
	IsActive        bool   `json:"is_active"`
	DailySpendLimit int64  `json:"daily_spend_limit"` // cents
	TotalSpentToday int64  `json:"total_spent_today"` // cents
}

// DailyRemaining returns the sub-account's own unspent daily allowance.
func (s *SubAccount) DailyRemaining() int64 {
	remaining := s.DailySpendLimit - s.TotalSpentToday
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ─── Decision Results ───────────────────────────────────────────────────────
// Policy denials are expected outcomes, carried as structured result values
// with a human-readable reason — never as errors.

// SpendDecision is the period tracker's answer to "can this amount be spent".
// RequiresApproval marks a denial that budget alone would have allowed —
// the tracker signals the need for approval but never grants it.
type SpendDecision struct {
	Allowed          bool   `json:"allowed"`
	Reason           string `json:"reason,omitempty"`
	RequiresApproval bool   `json:"requires_approval,omitempty"`
	DailyRemaining   int64  `json:"daily_remaining"`
	MonthlyRemaining int64  `json:"monthly_remaining"`
}

// PermissionDecision is the ledger's answer for a specific spend intent.
type PermissionDecision struct {
	Allowed          bool   `json:"allowed"`
	Reason           string `json:"reason,omitempty"`
	RequiresApproval bool   `json:"requires_approval"`

	// PendingRequestID is set when a matching request is already awaiting
	// approval — the caller should wait for it, not file a duplicate.
	PendingRequestID string `json:"pending_request_id,omitempty"`
}

// TransferResult is the outcome of a delegated transfer execution.
type TransferResult struct {
	Success        bool   `json:"success"`
	TxHash         string `json:"transaction_hash,omitempty"`
	Error          string `json:"error,omitempty"`
	UsedSubAccount string `json:"used_sub_account,omitempty"`
}

// AutoSpendStatus is a diagnostic projection of auto-spend eligibility.
// It is evaluated with a nominal probe amount and must not gate real
// spends — those go through CanAutoSpend with the actual amount.
type AutoSpendStatus struct {
	Enabled        bool   `json:"enabled"`
	Eligible       bool   `json:"eligible"`
	Reason         string `json:"reason,omitempty"`
	MaxAmount      int64  `json:"max_amount"`
	DailyRemaining int64  `json:"daily_remaining"`
}

// ─── Utilities ──────────────────────────────────────────────────────────────

// FormatAmount renders cents as a dollar string, e.g. 1550 → "$15.50".
func FormatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
