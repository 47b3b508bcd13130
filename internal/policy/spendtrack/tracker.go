// Package spendtrack implements the period spend tracker: rolling daily and
// monthly spend totals held against configured limits.
//
// Window rollover is lazy. A window's reset date is compared against the
// clock's canonical identifier on every read, and stale windows are zeroed
// before any decision or mutation — there is no background timer.
package spendtrack

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/spendguard/spendguard/internal/domain"
)

// ─── Configuration ──────────────────────────────────────────────────────────

// DefaultConfig returns conservative spend-limit defaults.
func DefaultConfig() domain.SpendLimitConfig {
	return domain.SpendLimitConfig{
		DailyLimit:        2_000,  // $20.00
		MonthlyLimit:      50_000, // $500.00
		RequiresApproval:  true,
		ApprovalThreshold: 1_000, // $10.00
		AutoResetDaily:    true,
		AutoResetMonthly:  true,
	}
}

// ─── Tracker ────────────────────────────────────────────────────────────────

// Tracker maintains the spend counters and answers spend-budget questions.
// State is write-through persisted: every mutation saves before returning.
type Tracker struct {
	mu       sync.Mutex
	store    domain.Store
	config   domain.SpendLimitConfig
	tracking domain.SpendTracking

	// Injectable clock for testing.
	now func() time.Time
}

// New creates a tracker backed by the given store. Persisted config and
// tracking state are loaded if present; a malformed blob is treated as
// absent and replaced by the provided defaults.
func New(store domain.Store, defaults domain.SpendLimitConfig) *Tracker {
	t := &Tracker{
		store: store,
		now:   time.Now,
	}
	t.config = loadConfig(store, defaults)
	t.tracking = t.loadTracking()
	return t
}

// loadConfig reads the persisted limit config, falling back to defaults.
func loadConfig(store domain.Store, defaults domain.SpendLimitConfig) domain.SpendLimitConfig {
	raw, err := store.Get(domain.KeySpendLimits)
	if err != nil || raw == nil {
		if err != nil {
			log.Printf("[spendtrack] read limits: %v (using defaults)", err)
		}
		return defaults
	}
	var cfg domain.SpendLimitConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		log.Printf("[spendtrack] corrupt limits blob, using defaults: %v", err)
		return defaults
	}
	return cfg
}

// loadTracking reads persisted counters, falling back to zeroed windows.
func (t *Tracker) loadTracking() domain.SpendTracking {
	fresh := domain.SpendTracking{
		Daily:   domain.WindowUsage{Limit: t.config.DailyLimit, ResetDate: t.dayID()},
		Monthly: domain.WindowUsage{Limit: t.config.MonthlyLimit, ResetDate: t.monthID()},
	}
	raw, err := t.store.Get(domain.KeySpendTracking)
	if err != nil || raw == nil {
		if err != nil {
			log.Printf("[spendtrack] read tracking: %v (starting fresh)", err)
		}
		return fresh
	}
	var tr domain.SpendTracking
	if err := json.Unmarshal(raw, &tr); err != nil {
		log.Printf("[spendtrack] corrupt tracking blob, starting fresh: %v", err)
		return fresh
	}
	return tr
}

// ─── Window Identifiers ─────────────────────────────────────────────────────

// dayID is the canonical daily window identifier (YYYY-MM-DD).
func (t *Tracker) dayID() string {
	return t.now().Format(time.DateOnly)
}

// monthID is the canonical monthly window identifier (first of month).
func (t *Tracker) monthID() string {
	n := t.now()
	return time.Date(n.Year(), n.Month(), 1, 0, 0, 0, 0, n.Location()).Format(time.DateOnly)
}

// rollover zeroes stale windows. Must run, under the lock, before any
// decision or mutation. Returns whether state changed.
func (t *Tracker) rollover() bool {
	changed := false
	if t.config.AutoResetDaily {
		if day := t.dayID(); t.tracking.Daily.ResetDate != day {
			t.tracking.Daily = domain.WindowUsage{Limit: t.config.DailyLimit, ResetDate: day}
			changed = true
		}
	}
	if t.config.AutoResetMonthly {
		if month := t.monthID(); t.tracking.Monthly.ResetDate != month {
			t.tracking.Monthly = domain.WindowUsage{Limit: t.config.MonthlyLimit, ResetDate: month}
			changed = true
		}
	}
	return changed
}

// ─── Decisions ──────────────────────────────────────────────────────────────

// CanSpend reports whether amount fits the remaining daily and monthly
// budget. The daily check always takes precedence over the monthly one.
// If both pass but the amount exceeds the approval threshold, the spend is
// denied with an approval-required reason — the tracker only signals the
// need, it never grants approval itself.
func (t *Tracker) CanSpend(amount int64) domain.SpendDecision {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.rollover() {
		t.saveTracking()
	}

	d := domain.SpendDecision{
		DailyRemaining:   t.tracking.Daily.Remaining(),
		MonthlyRemaining: t.tracking.Monthly.Remaining(),
	}

	switch {
	case amount > d.DailyRemaining:
		d.Reason = fmt.Sprintf("daily limit: %s exceeds remaining %s",
			domain.FormatAmount(amount), domain.FormatAmount(d.DailyRemaining))
	case amount > d.MonthlyRemaining:
		d.Reason = fmt.Sprintf("monthly limit: %s exceeds remaining %s",
			domain.FormatAmount(amount), domain.FormatAmount(d.MonthlyRemaining))
	case t.config.RequiresApproval && amount > t.config.ApprovalThreshold:
		d.RequiresApproval = true
		d.Reason = fmt.Sprintf("approval required: %s exceeds approval threshold %s",
			domain.FormatAmount(amount), domain.FormatAmount(t.config.ApprovalThreshold))
	default:
		d.Allowed = true
	}
	return d
}

// ─── Mutations ──────────────────────────────────────────────────────────────

// RecordSpend unconditionally adds a completed spend to both windows.
// It does NOT re-check CanSpend — the caller must already hold an
// authorization (possibly via the permission ledger for amounts above the
// approval threshold). subAccountID may be empty for primary-account spends.
func (t *Tracker) RecordSpend(amount int64, subAccountID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollover()

	t.tracking.Daily.Amount += amount
	t.tracking.Monthly.Amount += amount
	t.tracking.TotalTransactions++
	t.tracking.Last = &domain.LastTransaction{
		Amount:       amount,
		Timestamp:    t.now(),
		SubAccountID: subAccountID,
	}
	return t.save()
}

// ResetDaily zeroes the daily window immediately — administrative override,
// independent of lazy rollover detection.
func (t *Tracker) ResetDaily() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tracking.Daily = domain.WindowUsage{Limit: t.config.DailyLimit, ResetDate: t.dayID()}
	return t.save()
}

// ResetMonthly zeroes the monthly window immediately.
func (t *Tracker) ResetMonthly() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tracking.Monthly = domain.WindowUsage{Limit: t.config.MonthlyLimit, ResetDate: t.monthID()}
	return t.save()
}

// SetLimits updates the daily and monthly limits and snapshots them into the
// current windows without touching accumulated amounts.
func (t *Tracker) SetLimits(daily, monthly int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.config.DailyLimit = daily
	t.config.MonthlyLimit = monthly
	t.tracking.Daily.Limit = daily
	t.tracking.Monthly.Limit = monthly
	if err := t.saveConfig(); err != nil {
		return err
	}
	return t.save()
}

// UpdateConfig replaces the whole spend-limit config.
func (t *Tracker) UpdateConfig(cfg domain.SpendLimitConfig) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.config = cfg
	t.tracking.Daily.Limit = cfg.DailyLimit
	t.tracking.Monthly.Limit = cfg.MonthlyLimit
	if err := t.saveConfig(); err != nil {
		return err
	}
	return t.save()
}

// ─── Queries ────────────────────────────────────────────────────────────────

// Tracking returns a snapshot of the counters after lazy rollover.
func (t *Tracker) Tracking() domain.SpendTracking {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rollover() {
		t.saveTracking()
	}
	snap := t.tracking
	if t.tracking.Last != nil {
		last := *t.tracking.Last
		snap.Last = &last
	}
	return snap
}

// Config returns the current spend-limit config.
func (t *Tracker) Config() domain.SpendLimitConfig {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.config
}

// ─── Persistence ────────────────────────────────────────────────────────────

// save writes the tracking blob, propagating storage failures.
func (t *Tracker) save() error {
	raw, err := json.Marshal(t.tracking)
	if err != nil {
		return fmt.Errorf("marshal tracking: %w", err)
	}
	if err := t.store.Set(domain.KeySpendTracking, raw); err != nil {
		return fmt.Errorf("persist tracking: %w", err)
	}
	return nil
}

// saveTracking is save for read paths: a failed write must not block a
// decision, so it only logs.
func (t *Tracker) saveTracking() {
	if err := t.save(); err != nil {
		log.Printf("[spendtrack] %v", err)
	}
}

func (t *Tracker) saveConfig() error {
	raw, err := json.Marshal(t.config)
	if err != nil {
		return fmt.Errorf("marshal limits: %w", err)
	}
	if err := t.store.Set(domain.KeySpendLimits, raw); err != nil {
		return fmt.Errorf("persist limits: %w", err)
	}
	return nil
}
