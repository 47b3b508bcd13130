// Package wallet provides the daemon's stand-in wallet collaborators:
// a static sub-account provider fed from config, and a dry-run transfer
// executor for running the checkout flow without a real payment provider.
// Production embedders supply their own implementations of the domain
// interfaces instead.
package wallet

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/spendguard/spendguard/internal/domain"
)

// ─── Static Sub-Account Provider ────────────────────────────────────────────

// StaticProvider serves a fixed set of sub-accounts. Read-only.
type StaticProvider struct {
	mu   sync.RWMutex
	subs map[string]domain.SubAccount
}

// NewStaticProvider creates a provider over the given sub-accounts.
func NewStaticProvider(subs []domain.SubAccount) *StaticProvider {
	m := make(map[string]domain.SubAccount, len(subs))
	for _, sub := range subs {
		m[sub.ID] = sub
	}
	return &StaticProvider{subs: m}
}

// SubAccount returns a copy of the sub-account with the given id.
func (p *StaticProvider) SubAccount(id string) (*domain.SubAccount, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	sub, ok := p.subs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSubAccountNotFound, id)
	}
	return &sub, nil
}

// ─── Dry-Run Executor ───────────────────────────────────────────────────────

// DryRunExecutor accepts every transfer and fabricates a transaction hash
// without touching any chain. Useful for demos and integration tests.
type DryRunExecutor struct{}

// Transfer logs the intent and returns a synthetic transaction hash.
func (DryRunExecutor) Transfer(ctx context.Context, from, to string, amount int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	txHash := "0xdry" + strings.ReplaceAll(uuid.NewString(), "-", "")
	log.Printf("[wallet] dry-run transfer %s: %s → %s tx=%s",
		domain.FormatAmount(amount), from, to, txHash)
	return txHash, nil
}
