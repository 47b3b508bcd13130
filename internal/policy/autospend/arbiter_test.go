package autospend

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spendguard/spendguard/internal/domain"
	"github.com/spendguard/spendguard/internal/infra/kvstore"
)

// ─── Helpers ────────────────────────────────────────────────────────────────

func enabledConfig() domain.AutoSpendConfig {
	return domain.AutoSpendConfig{
		Enabled:           true,
		MaxAmount:         5_000, // $50
		RequiresApproval:  true,
		ApprovalThreshold: 1_000, // $10
	}
}

func activeSub() *domain.SubAccount {
	return &domain.SubAccount{
		ID:              "agent-1",
		Address:         "0xsub1",
		IsActive:        true,
		DailySpendLimit: 2_000,
		TotalSpentToday: 0,
	}
}

func newTestArbiter(t *testing.T, cfg *domain.AutoSpendConfig) (*Arbiter, *kvstore.Memory) {
	t.Helper()
	store := kvstore.NewMemory()
	a := New(store)
	if cfg != nil {
		if err := a.SetConfig(*cfg); err != nil {
			t.Fatalf("SetConfig: %v", err)
		}
	}
	return a, store
}

// recordingExecutor captures the transfer it was asked to make.
type recordingExecutor struct {
	from, to string
	amount   int64
	err      error
}

func (e *recordingExecutor) Transfer(ctx context.Context, from, to string, amount int64) (string, error) {
	e.from, e.to, e.amount = from, to, amount
	if e.err != nil {
		return "", e.err
	}
	return "0xtesttx", nil
}

// ─── Gates ──────────────────────────────────────────────────────────────────

func TestFourGates(t *testing.T) {
	cfg := enabledConfig()

	tests := []struct {
		name   string
		config *domain.AutoSpendConfig
		sub    *domain.SubAccount
		amount int64
		want   bool
	}{
		{"no config", nil, activeSub(), 100, false},
		{"disabled", &domain.AutoSpendConfig{Enabled: false, MaxAmount: 5_000}, activeSub(), 100, false},
		{"nil sub-account", &cfg, nil, 100, false},
		{"inactive sub-account", &cfg, &domain.SubAccount{ID: "x", IsActive: false, DailySpendLimit: 2_000}, 100, false},
		{"over daily headroom", &cfg, &domain.SubAccount{ID: "x", IsActive: true, DailySpendLimit: 2_000, TotalSpentToday: 1_950}, 100, false},
		{"over approval threshold", &cfg, activeSub(), 1_001, false},
		{"at approval threshold", &cfg, activeSub(), 1_000, true},
		{"all gates pass", &cfg, activeSub(), 500, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newTestArbiter(t, tt.config)
			if got := a.CanAutoSpend(tt.amount, tt.sub); got != tt.want {
				t.Errorf("CanAutoSpend(%d) = %v, want %v", tt.amount, got, tt.want)
			}
		})
	}
}

func TestGlobalMaxGate(t *testing.T) {
	// Threshold check off, so the ceiling is the binding gate.
	cfg := enabledConfig()
	cfg.RequiresApproval = false
	cfg.MaxAmount = 300
	a, _ := newTestArbiter(t, &cfg)

	sub := activeSub()
	if !a.CanAutoSpend(300, sub) {
		t.Error("CanAutoSpend at ceiling denied")
	}
	if a.CanAutoSpend(301, sub) {
		t.Error("CanAutoSpend above ceiling allowed")
	}
}

// Every gate is independent: fixing one failing condition must not mask
// another.
func TestGatesAreIndependent(t *testing.T) {
	cfg := enabledConfig()
	a, _ := newTestArbiter(t, &cfg)

	sub := activeSub()
	sub.TotalSpentToday = 1_900 // headroom 100

	if a.CanAutoSpend(1_001, sub) {
		t.Error("allowed despite failing both headroom and threshold")
	}
	sub.TotalSpentToday = 0
	if a.CanAutoSpend(1_001, sub) {
		t.Error("headroom fixed, threshold gate must still deny")
	}
}

// ─── ProcessAutoSpend ───────────────────────────────────────────────────────

func TestProcessAutoSpendDelegatesToExecutor(t *testing.T) {
	cfg := enabledConfig()
	a, _ := newTestArbiter(t, &cfg)

	exec := &recordingExecutor{}
	sub := activeSub()
	res := a.ProcessAutoSpend(context.Background(), 500, "shop.example", sub, exec)

	if !res.Success {
		t.Fatalf("ProcessAutoSpend failed: %s", res.Error)
	}
	if res.TxHash != "0xtesttx" {
		t.Errorf("TxHash = %q, want executor's hash", res.TxHash)
	}
	if res.UsedSubAccount != "agent-1" {
		t.Errorf("UsedSubAccount = %q, want agent-1", res.UsedSubAccount)
	}
	if exec.from != "0xsub1" || exec.to != "shop.example" || exec.amount != 500 {
		t.Errorf("executor called with (%s, %s, %d)", exec.from, exec.to, exec.amount)
	}
}

func TestProcessAutoSpendRevalidates(t *testing.T) {
	// The arbiter must not trust a prior CanAutoSpend: state may have
	// changed between check and execution.
	cfg := enabledConfig()
	a, _ := newTestArbiter(t, &cfg)

	sub := activeSub()
	if !a.CanAutoSpend(500, sub) {
		t.Fatal("precondition: 500 should be eligible")
	}
	sub.TotalSpentToday = 1_900 // headroom collapses to 100

	exec := &recordingExecutor{}
	res := a.ProcessAutoSpend(context.Background(), 500, "shop.example", sub, exec)
	if res.Success {
		t.Fatal("executed despite collapsed headroom")
	}
	if exec.to != "" {
		t.Error("executor was called for an ineligible spend")
	}
	if !strings.Contains(res.Error, "headroom") {
		t.Errorf("Error = %q, want headroom reason", res.Error)
	}
}

func TestProcessAutoSpendExecutorFailure(t *testing.T) {
	cfg := enabledConfig()
	a, _ := newTestArbiter(t, &cfg)

	exec := &recordingExecutor{err: errors.New("insufficient funds")}
	res := a.ProcessAutoSpend(context.Background(), 500, "shop.example", activeSub(), exec)

	if res.Success {
		t.Fatal("Success = true on executor failure")
	}
	if res.Error != "insufficient funds" {
		t.Errorf("Error = %q, want executor's error", res.Error)
	}
	if res.UsedSubAccount != "agent-1" {
		t.Errorf("UsedSubAccount = %q; failure is still attributed to the sub-account", res.UsedSubAccount)
	}
}

func TestProcessAutoSpendNoExecutor(t *testing.T) {
	cfg := enabledConfig()
	a, _ := newTestArbiter(t, &cfg)

	res := a.ProcessAutoSpend(context.Background(), 500, "shop.example", activeSub(), nil)
	if res.Success || res.Error != domain.ErrNoExecutor.Error() {
		t.Errorf("result = %+v, want no-executor error", res)
	}
}

// ─── Config Lifecycle ───────────────────────────────────────────────────────

func TestConfigSurvivesReload(t *testing.T) {
	cfg := enabledConfig()
	a, store := newTestArbiter(t, &cfg)
	_ = a

	reloaded := New(store)
	got := reloaded.Config()
	if got == nil || !got.Enabled || got.MaxAmount != 5_000 {
		t.Errorf("reloaded config = %+v, want %+v", got, cfg)
	}
}

func TestDisableRemovesConfig(t *testing.T) {
	cfg := enabledConfig()
	a, store := newTestArbiter(t, &cfg)

	if err := a.Disable(); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if a.Config() != nil {
		t.Error("Config() != nil after Disable")
	}
	if a.CanAutoSpend(100, activeSub()) {
		t.Error("CanAutoSpend allowed after Disable")
	}

	reloaded := New(store)
	if reloaded.Config() != nil {
		t.Error("disabled state did not persist")
	}
}

func TestCorruptConfigDisablesAutoSpend(t *testing.T) {
	store := kvstore.NewMemory()
	store.Set(domain.KeyAutoSpendConfig, []byte("{not valid"))

	a := New(store)
	if a.Config() != nil {
		t.Error("corrupt config blob must read as disabled")
	}
	if a.CanAutoSpend(1, activeSub()) {
		t.Error("CanAutoSpend allowed with corrupt config")
	}
}

// ─── Status ─────────────────────────────────────────────────────────────────

func TestStatus(t *testing.T) {
	cfg := enabledConfig()
	a, _ := newTestArbiter(t, &cfg)

	sub := activeSub()
	sub.TotalSpentToday = 500

	st := a.Status(sub)
	if !st.Enabled || !st.Eligible {
		t.Errorf("Status = %+v, want enabled and eligible", st)
	}
	if st.DailyRemaining != 1_500 {
		t.Errorf("DailyRemaining = %d, want 1500", st.DailyRemaining)
	}
	if st.MaxAmount != 5_000 {
		t.Errorf("MaxAmount = %d, want 5000", st.MaxAmount)
	}
}

func TestStatusDisabled(t *testing.T) {
	a, _ := newTestArbiter(t, nil)

	st := a.Status(activeSub())
	if st.Eligible {
		t.Error("Eligible = true with no config")
	}
	if st.Reason == "" {
		t.Error("Reason empty for ineligible status")
	}
}
