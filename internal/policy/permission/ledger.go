// Package permission implements the spend-authorization request ledger:
// creation, auto-approval, manual approval/rejection, and lazy expiry of
// permission requests, gated by recipient allow/block lists and a pending
// cap.
//
// Request expiry has no timer. Pending requests past their expiry are
// flipped to expired by CleanupExpired, which every read-dependent
// operation runs first.
package permission

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spendguard/spendguard/internal/domain"
)

// SystemApprover is recorded as the approver of auto-approved requests.
const SystemApprover = "system"

// ─── Configuration ──────────────────────────────────────────────────────────

// DefaultConfig returns the default approval policy.
func DefaultConfig() domain.ApprovalConfig {
	return domain.ApprovalConfig{
		AutoApproveThreshold:          500, // $5.00
		MaxPendingRequests:            5,
		RequestExpiryHours:            24,
		RequireApprovalForSubAccounts: true,
	}
}

// ─── Ledger ─────────────────────────────────────────────────────────────────

// Ledger owns every permission request for its entire lifecycle.
// Requests and config are write-through persisted as JSON blobs.
type Ledger struct {
	mu       sync.Mutex
	store    domain.Store
	config   domain.ApprovalConfig
	requests []*domain.PermissionRequest

	// Injectable for testing.
	now   func() time.Time
	newID func() string
}

// New creates a ledger backed by the given store. A malformed persisted
// blob is treated as absent and replaced by defaults.
func New(store domain.Store, defaults domain.ApprovalConfig) *Ledger {
	l := &Ledger{
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
	}
	l.config = loadConfig(store, defaults)
	l.requests = loadRequests(store)
	return l
}

func loadConfig(store domain.Store, defaults domain.ApprovalConfig) domain.ApprovalConfig {
	raw, err := store.Get(domain.KeyApprovalConfig)
	if err != nil || raw == nil {
		if err != nil {
			log.Printf("[permission] read approval config: %v (using defaults)", err)
		}
		return defaults
	}
	var cfg domain.ApprovalConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		log.Printf("[permission] corrupt approval config blob, using defaults: %v", err)
		return defaults
	}
	return cfg
}

func loadRequests(store domain.Store) []*domain.PermissionRequest {
	raw, err := store.Get(domain.KeyRequests)
	if err != nil || raw == nil {
		if err != nil {
			log.Printf("[permission] read requests: %v (starting empty)", err)
		}
		return nil
	}
	var reqs []*domain.PermissionRequest
	if err := json.Unmarshal(raw, &reqs); err != nil {
		log.Printf("[permission] corrupt request blob, starting empty: %v", err)
		return nil
	}
	return reqs
}

// ─── Request Creation ───────────────────────────────────────────────────────

// Request files a new spend-authorization request.
//
// Validation order (first failure wins): block-list, allow-list, pending
// cap. Amounts at or below the auto-approve threshold are approved
// immediately with ApprovedBy = SystemApprover; everything else starts
// pending with a fixed expiry of now + RequestExpiryHours.
func (l *Ledger) Request(subAccountID string, amount int64, recipient, purpose string) (*domain.PermissionRequest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.expireStale()

	if l.isBlocked(recipient) {
		return nil, fmt.Errorf("%w: %s", domain.ErrRecipientBlocked, recipient)
	}
	if len(l.config.AllowedRecipients) > 0 && !containsFold(l.config.AllowedRecipients, recipient) {
		return nil, fmt.Errorf("%w: %s", domain.ErrRecipientNotAllowed, recipient)
	}
	if pending := l.pendingCount(); pending >= l.config.MaxPendingRequests {
		return nil, fmt.Errorf("%w: %d pending (max %d)",
			domain.ErrTooManyPending, pending, l.config.MaxPendingRequests)
	}

	now := l.now()
	req := &domain.PermissionRequest{
		ID:           l.newID(),
		SubAccountID: subAccountID,
		Amount:       amount,
		Recipient:    recipient,
		Purpose:      purpose,
		RequestedAt:  now,
		Status:       domain.RequestPending,
		ExpiresAt:    now.Add(time.Duration(l.config.RequestExpiryHours) * time.Hour),
	}
	if amount <= l.config.AutoApproveThreshold {
		approvedAt := now
		req.Status = domain.RequestApproved
		req.ApprovedAt = &approvedAt
		req.ApprovedBy = SystemApprover
	}

	l.requests = append(l.requests, req)
	if err := l.save(); err != nil {
		return nil, err
	}

	snapshot := *req
	return &snapshot, nil
}

// ─── Manual Transitions ─────────────────────────────────────────────────────

// Approve transitions a pending request to approved. A pending request
// whose expiry has already passed is flipped to expired instead, and
// ErrRequestExpired is returned.
func (l *Ledger) Approve(id, approvedBy string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	req := l.find(id)
	if req == nil {
		return fmt.Errorf("%w: %s", domain.ErrRequestNotFound, id)
	}
	if req.Status != domain.RequestPending {
		return fmt.Errorf("%w: %s is %s", domain.ErrRequestNotPending, id, req.Status)
	}
	if req.ExpiredAt(l.now()) {
		req.Status = domain.RequestExpired
		if err := l.save(); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", domain.ErrRequestExpired, id)
	}

	approvedAt := l.now()
	req.Status = domain.RequestApproved
	req.ApprovedAt = &approvedAt
	req.ApprovedBy = approvedBy
	return l.save()
}

// Reject transitions a pending request to rejected with a reason.
func (l *Ledger) Reject(id, rejectedBy, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	req := l.find(id)
	if req == nil {
		return fmt.Errorf("%w: %s", domain.ErrRequestNotFound, id)
	}
	if req.Status != domain.RequestPending {
		return fmt.Errorf("%w: %s is %s", domain.ErrRequestNotPending, id, req.Status)
	}

	rejectedAt := l.now()
	req.Status = domain.RequestRejected
	req.RejectedAt = &rejectedAt
	req.RejectedBy = rejectedBy
	req.RejectionReason = reason
	return l.save()
}

// ─── Decisions ──────────────────────────────────────────────────────────────

// CanSpend decides whether a spend intent is authorized by the ledger.
//
// Amounts at or below the auto-approve threshold pass immediately. Above
// it, an approved unexpired request matching sub-account, exact amount,
// and recipient satisfies the spend; a matching pending request means the
// caller should wait; otherwise policy decides between requiring a new
// request and default-permit.
func (l *Ledger) CanSpend(subAccountID string, amount int64, recipient string) domain.PermissionDecision {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.expireStale()

	if amount <= l.config.AutoApproveThreshold {
		return domain.PermissionDecision{
			Allowed: true,
			Reason:  "within auto-approve threshold",
		}
	}

	now := l.now()
	if req := l.match(subAccountID, amount, recipient, domain.RequestApproved, now); req != nil {
		return domain.PermissionDecision{
			Allowed: true,
			Reason:  fmt.Sprintf("covered by approved request %s", req.ID),
		}
	}
	if req := l.match(subAccountID, amount, recipient, domain.RequestPending, now); req != nil {
		return domain.PermissionDecision{
			Reason:           "approval pending",
			RequiresApproval: true,
			PendingRequestID: req.ID,
		}
	}
	if l.config.RequireApprovalForSubAccounts {
		return domain.PermissionDecision{
			Reason: fmt.Sprintf("approval required for %s above threshold %s",
				domain.FormatAmount(amount), domain.FormatAmount(l.config.AutoApproveThreshold)),
			RequiresApproval: true,
		}
	}
	return domain.PermissionDecision{Allowed: true, Reason: "approval not required by policy"}
}

// match finds an unexpired request in the given status with the same
// sub-account, exact amount, and recipient (case-insensitive).
func (l *Ledger) match(subAccountID string, amount int64, recipient string, status domain.RequestStatus, now time.Time) *domain.PermissionRequest {
	for _, req := range l.requests {
		if req.Status == status &&
			req.SubAccountID == subAccountID &&
			req.Amount == amount &&
			strings.EqualFold(req.Recipient, recipient) &&
			!req.ExpiredAt(now) {
			return req
		}
	}
	return nil
}

// ─── Expiry ─────────────────────────────────────────────────────────────────

// CleanupExpired flips every pending request past its expiry to expired.
// Idempotent; safe to call before any status-dependent read. Returns the
// number of requests flipped.
func (l *Ledger) CleanupExpired() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.expireStale()
}

// expireStale is CleanupExpired under an already-held lock. A failed
// persist only logs: expiry is re-derived lazily on the next call.
func (l *Ledger) expireStale() int {
	now := l.now()
	expired := 0
	for _, req := range l.requests {
		if req.Status == domain.RequestPending && req.ExpiredAt(now) {
			req.Status = domain.RequestExpired
			expired++
		}
	}
	if expired > 0 {
		if err := l.save(); err != nil {
			log.Printf("[permission] %v", err)
		}
	}
	return expired
}

// ─── Queries ────────────────────────────────────────────────────────────────

// Get returns a copy of the request with the given id.
func (l *Ledger) Get(id string) (*domain.PermissionRequest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	req := l.find(id)
	if req == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrRequestNotFound, id)
	}
	snapshot := *req
	return &snapshot, nil
}

// List returns copies of all requests, newest first, optionally filtered
// by status ("" = all).
func (l *Ledger) List(status domain.RequestStatus) []domain.PermissionRequest {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.expireStale()

	var out []domain.PermissionRequest
	for i := len(l.requests) - 1; i >= 0; i-- {
		req := l.requests[i]
		if status != "" && req.Status != status {
			continue
		}
		out = append(out, *req)
	}
	return out
}

// Stats aggregates request counts per status. No side effects.
func (l *Ledger) Stats() domain.RequestStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := domain.RequestStats{Total: len(l.requests)}
	for _, req := range l.requests {
		switch req.Status {
		case domain.RequestPending:
			stats.Pending++
		case domain.RequestApproved:
			stats.Approved++
		case domain.RequestRejected:
			stats.Rejected++
		case domain.RequestExpired:
			stats.Expired++
		}
	}
	return stats
}

// Config returns the current approval policy.
func (l *Ledger) Config() domain.ApprovalConfig {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.config
}

// UpdateConfig replaces and persists the approval policy.
func (l *Ledger) UpdateConfig(cfg domain.ApprovalConfig) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.config = cfg
	raw, err := json.Marshal(l.config)
	if err != nil {
		return fmt.Errorf("marshal approval config: %w", err)
	}
	if err := l.store.Set(domain.KeyApprovalConfig, raw); err != nil {
		return fmt.Errorf("persist approval config: %w", err)
	}
	return nil
}

// ─── Internals ──────────────────────────────────────────────────────────────

func (l *Ledger) find(id string) *domain.PermissionRequest {
	for _, req := range l.requests {
		if req.ID == id {
			return req
		}
	}
	return nil
}

func (l *Ledger) pendingCount() int {
	now := l.now()
	count := 0
	for _, req := range l.requests {
		if req.Status == domain.RequestPending && !req.ExpiredAt(now) {
			count++
		}
	}
	return count
}

func (l *Ledger) isBlocked(recipient string) bool {
	return containsFold(l.config.BlockedRecipients, recipient)
}

func containsFold(haystack []string, needle string) bool {
	for _, s := range haystack {
		if strings.EqualFold(s, needle) {
			return true
		}
	}
	return false
}

// save writes the full request list blob.
func (l *Ledger) save() error {
	raw, err := json.Marshal(l.requests)
	if err != nil {
		return fmt.Errorf("marshal requests: %w", err)
	}
	if err := l.store.Set(domain.KeyRequests, raw); err != nil {
		return fmt.Errorf("persist requests: %w", err)
	}
	return nil
}
