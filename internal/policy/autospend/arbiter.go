// Package autospend implements the auto-spend arbiter: the final go/no-go
// decision on whether a transaction may execute without interactive
// confirmation, combining the sub-account's own daily cap with the global
// auto-spend policy.
//
// The arbiter never persists spend outcomes. Successful execution is
// reported to the period tracker by the orchestrator, not here.
package autospend

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/spendguard/spendguard/internal/domain"
)

// probeAmount is the nominal amount used by Status to project eligibility.
const probeAmount = 1 // one cent

// ─── Arbiter ────────────────────────────────────────────────────────────────

// Arbiter decides auto-spend eligibility. A nil persisted config means
// auto-spend is disabled entirely.
type Arbiter struct {
	mu     sync.Mutex
	store  domain.Store
	config *domain.AutoSpendConfig

	// Injectable clock for testing.
	now func() time.Time
}

// New creates an arbiter, loading any persisted auto-spend config.
// A malformed blob is treated as absent (auto-spend disabled).
func New(store domain.Store) *Arbiter {
	a := &Arbiter{
		store: store,
		now:   time.Now,
	}
	raw, err := store.Get(domain.KeyAutoSpendConfig)
	if err != nil {
		log.Printf("[autospend] read config: %v (auto-spend disabled)", err)
		return a
	}
	if raw == nil {
		return a
	}
	var cfg domain.AutoSpendConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		log.Printf("[autospend] corrupt config blob, auto-spend disabled: %v", err)
		return a
	}
	a.config = &cfg
	return a
}

// SetConfig enables or reconfigures auto-spend, write-through.
func (a *Arbiter) SetConfig(cfg domain.AutoSpendConfig) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal autospend config: %w", err)
	}
	if err := a.store.Set(domain.KeyAutoSpendConfig, raw); err != nil {
		return fmt.Errorf("persist autospend config: %w", err)
	}
	a.config = &cfg
	return nil
}

// Disable removes the auto-spend config entirely.
func (a *Arbiter) Disable() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.store.Delete(domain.KeyAutoSpendConfig); err != nil {
		return fmt.Errorf("delete autospend config: %w", err)
	}
	a.config = nil
	return nil
}

// Config returns a copy of the current config, or nil when disabled.
func (a *Arbiter) Config() *domain.AutoSpendConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.config == nil {
		return nil
	}
	cfg := *a.config
	return &cfg
}

// ─── Decisions ──────────────────────────────────────────────────────────────

// CanAutoSpend reports whether amount may be spent from the sub-account
// without interactive confirmation. Four independent gates, any single
// failure denies: policy enabled + sub-account active, sub-account daily
// headroom, approval threshold, global max amount.
func (a *Arbiter) CanAutoSpend(amount int64, sub *domain.SubAccount) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	ok, _ := a.evaluate(amount, sub)
	return ok
}

// evaluate runs the gates under an already-held lock, returning the first
// failing gate's reason.
func (a *Arbiter) evaluate(amount int64, sub *domain.SubAccount) (bool, string) {
	if a.config == nil || !a.config.Enabled {
		return false, "auto-spend is disabled"
	}
	if sub == nil || !sub.IsActive {
		return false, "sub-account is not active"
	}
	if amount > sub.DailyRemaining() {
		return false, fmt.Sprintf("amount %s exceeds sub-account daily headroom %s",
			domain.FormatAmount(amount), domain.FormatAmount(sub.DailyRemaining()))
	}
	if a.config.RequiresApproval && amount > a.config.ApprovalThreshold {
		return false, fmt.Sprintf("amount %s exceeds auto-spend approval threshold %s",
			domain.FormatAmount(amount), domain.FormatAmount(a.config.ApprovalThreshold))
	}
	if amount > a.config.MaxAmount {
		return false, fmt.Sprintf("amount %s exceeds auto-spend ceiling %s",
			domain.FormatAmount(amount), domain.FormatAmount(a.config.MaxAmount))
	}
	return true, ""
}

// ─── Execution ──────────────────────────────────────────────────────────────

// ProcessAutoSpend re-validates eligibility at this moment — it never
// trusts a prior check — and, if allowed, delegates the transfer to the
// executor, returning its result verbatim tagged with the funding
// sub-account. No persistence happens here.
func (a *Arbiter) ProcessAutoSpend(ctx context.Context, amount int64, recipient string, sub *domain.SubAccount, exec domain.TransferExecutor) domain.TransferResult {
	a.mu.Lock()
	ok, reason := a.evaluate(amount, sub)
	a.mu.Unlock()

	if !ok {
		return domain.TransferResult{Error: reason}
	}
	if exec == nil {
		return domain.TransferResult{Error: domain.ErrNoExecutor.Error()}
	}

	txHash, err := exec.Transfer(ctx, sub.Address, recipient, amount)
	if err != nil {
		return domain.TransferResult{
			Error:          err.Error(),
			UsedSubAccount: sub.ID,
		}
	}

	log.Printf("[autospend] %s → %s from sub-account %s tx=%s",
		domain.FormatAmount(amount), recipient, sub.ID, txHash)
	return domain.TransferResult{
		Success:        true,
		TxHash:         txHash,
		UsedSubAccount: sub.ID,
	}
}

// ─── Diagnostics ────────────────────────────────────────────────────────────

// Status projects current eligibility using a nominal one-cent probe.
// Purely diagnostic — real spends must go through CanAutoSpend with the
// actual amount.
func (a *Arbiter) Status(sub *domain.SubAccount) domain.AutoSpendStatus {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := domain.AutoSpendStatus{}
	if a.config != nil {
		st.Enabled = a.config.Enabled
		st.MaxAmount = a.config.MaxAmount
	}
	if sub != nil {
		st.DailyRemaining = sub.DailyRemaining()
	}
	st.Eligible, st.Reason = a.evaluate(probeAmount, sub)
	return st
}
