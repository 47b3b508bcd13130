package daemon

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if got := cfg.API.Addr(); got != "127.0.0.1:7710" {
		t.Errorf("API.Addr() = %q, want 127.0.0.1:7710", got)
	}
	if !cfg.API.Metrics {
		t.Error("metrics disabled by default")
	}
	if cfg.Limits.Daily != 2_000 || cfg.Limits.Monthly != 50_000 {
		t.Errorf("limits = %d/%d, want 2000/50000", cfg.Limits.Daily, cfg.Limits.Monthly)
	}
	if !cfg.Limits.AutoResetDaily || !cfg.Limits.AutoResetMonthly {
		t.Error("auto resets off by default")
	}
	if cfg.Approval.AutoApproveThreshold != 500 {
		t.Errorf("AutoApproveThreshold = %d, want 500", cfg.Approval.AutoApproveThreshold)
	}
	if cfg.AutoSpend.Enabled {
		t.Error("auto-spend enabled by default; it must be opt-in")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.Port != 7710 {
		t.Errorf("Port = %d, want default 7710", cfg.API.Port)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[api]
port = 9000

[limits]
daily = 5000

[autospend]
enabled = true
sub_account_id = "agent-1"
max_amount = 3000

[[wallet.sub_accounts]]
id = "agent-1"
address = "0xsub1"
is_active = true
daily_spend_limit = 2000
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.API.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.API.Port)
	}
	// Unset keys keep their defaults.
	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("Host = %q, want default", cfg.API.Host)
	}
	if cfg.Limits.Daily != 5_000 {
		t.Errorf("Limits.Daily = %d, want 5000", cfg.Limits.Daily)
	}
	if cfg.Limits.Monthly != 50_000 {
		t.Errorf("Limits.Monthly = %d, want default 50000", cfg.Limits.Monthly)
	}

	subs := cfg.WalletSubAccounts()
	if len(subs) != 1 || subs[0].ID != "agent-1" || !subs[0].IsActive {
		t.Errorf("WalletSubAccounts = %+v", subs)
	}
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[api\nport="), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted malformed TOML")
	}
}

func TestDomainConversions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Limits.Daily = 3_000
	cfg.Approval.BlockedRecipients = []string{"bad.example"}

	limits := cfg.SpendLimits()
	if limits.DailyLimit != 3_000 || limits.MonthlyLimit != 50_000 {
		t.Errorf("SpendLimits = %+v", limits)
	}

	approval := cfg.ApprovalPolicy()
	if len(approval.BlockedRecipients) != 1 || approval.BlockedRecipients[0] != "bad.example" {
		t.Errorf("ApprovalPolicy = %+v", approval)
	}

	if cfg.AutoSpendPolicy() != nil {
		t.Error("AutoSpendPolicy != nil while disabled")
	}
	cfg.AutoSpend.Enabled = true
	cfg.AutoSpend.MaxAmount = 3_000
	policy := cfg.AutoSpendPolicy()
	if policy == nil || !policy.Enabled || policy.MaxAmount != 3_000 {
		t.Errorf("AutoSpendPolicy = %+v", policy)
	}
}

func TestHomeDirHonorsEnv(t *testing.T) {
	t.Setenv("SPENDGUARD_HOME", "/tmp/sg-test")
	if got := DefaultConfigPath(); got != filepath.Join("/tmp/sg-test", "config.toml") {
		t.Errorf("DefaultConfigPath = %q", got)
	}
}
