// Package daemon holds process configuration for the spendguard daemon.
// Config is TOML (~/.spendguard/config.toml), with safe defaults so the
// daemon runs without any file present.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/spendguard/spendguard/internal/domain"
)

// Config is the full daemon configuration.
type Config struct {
	API       APIConfig       `toml:"api"`
	Store     StoreConfig     `toml:"store"`
	Limits    LimitsConfig    `toml:"limits"`
	Approval  ApprovalConfig  `toml:"approval"`
	AutoSpend AutoSpendConfig `toml:"autospend"`
	Checkout  CheckoutConfig  `toml:"checkout"`
	Wallet    WalletConfig    `toml:"wallet"`
}

// APIConfig configures the admin HTTP API.
type APIConfig struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	Metrics bool   `toml:"metrics"`
}

// Addr returns the host:port listen address.
func (a APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// StoreConfig configures durable storage.
type StoreConfig struct {
	// Path to the SQLite database file. Empty means in-memory only.
	Path string `toml:"path"`
}

// LimitsConfig is the spend-limit policy. Amounts are cents.
type LimitsConfig struct {
	Daily             int64 `toml:"daily"`
	Monthly           int64 `toml:"monthly"`
	RequiresApproval  bool  `toml:"requires_approval"`
	ApprovalThreshold int64 `toml:"approval_threshold"`
	AutoResetDaily    bool  `toml:"auto_reset_daily"`
	AutoResetMonthly  bool  `toml:"auto_reset_monthly"`
}

// ApprovalConfig is the permission ledger policy. Amounts are cents.
type ApprovalConfig struct {
	AutoApproveThreshold          int64    `toml:"auto_approve_threshold"`
	MaxPendingRequests            int      `toml:"max_pending_requests"`
	RequestExpiryHours            int      `toml:"request_expiry_hours"`
	RequireApprovalForSubAccounts bool     `toml:"require_approval_for_sub_accounts"`
	AllowedRecipients             []string `toml:"allowed_recipients"`
	BlockedRecipients             []string `toml:"blocked_recipients"`
}

// AutoSpendConfig is the unattended-spend policy. Amounts are cents.
type AutoSpendConfig struct {
	Enabled           bool   `toml:"enabled"`
	SubAccountID      string `toml:"sub_account_id"`
	MaxAmount         int64  `toml:"max_amount"`
	RequiresApproval  bool   `toml:"requires_approval"`
	ApprovalThreshold int64  `toml:"approval_threshold"`
}

// CheckoutConfig configures the checkout orchestrator.
type CheckoutConfig struct {
	PrimaryAddress string `toml:"primary_address"`
}

// WalletConfig declares the daemon's demo wallet: static sub-accounts
// served to the arbiter. Amounts are cents.
type WalletConfig struct {
	SubAccounts []SubAccountConfig `toml:"sub_accounts"`
}

// SubAccountConfig is one configured sub-account.
type SubAccountConfig struct {
	ID              string `toml:"id"`
	Address         string `toml:"address"`
	Name            string `toml:"name"`
	IsActive        bool   `toml:"is_active"`
	DailySpendLimit int64  `toml:"daily_spend_limit"`
	TotalSpentToday int64  `toml:"total_spent_today"`
}

// DefaultConfig returns safe daemon defaults.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:    "127.0.0.1",
			Port:    7710,
			Metrics: true,
		},
		Store: StoreConfig{
			Path: defaultStorePath(),
		},
		Limits: LimitsConfig{
			Daily:             2_000,  // $20.00
			Monthly:           50_000, // $500.00
			RequiresApproval:  true,
			ApprovalThreshold: 1_000, // $10.00
			AutoResetDaily:    true,
			AutoResetMonthly:  true,
		},
		Approval: ApprovalConfig{
			AutoApproveThreshold:          500, // $5.00
			MaxPendingRequests:            5,
			RequestExpiryHours:            24,
			RequireApprovalForSubAccounts: true,
		},
	}
}

// Load reads config from path, overlaying defaults. A missing file is not
// an error — defaults apply.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = DefaultConfigPath()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// DefaultConfigPath returns ~/.spendguard/config.toml.
func DefaultConfigPath() string {
	return filepath.Join(homeDir(), "config.toml")
}

func defaultStorePath() string {
	return filepath.Join(homeDir(), "spendguard.db")
}

// homeDir returns the spendguard state directory, honoring SPENDGUARD_HOME.
func homeDir() string {
	if env := os.Getenv("SPENDGUARD_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".spendguard")
}

// ─── Domain Conversions ─────────────────────────────────────────────────────

// SpendLimits converts the limits section to the tracker's policy type.
func (c Config) SpendLimits() domain.SpendLimitConfig {
	return domain.SpendLimitConfig{
		DailyLimit:        c.Limits.Daily,
		MonthlyLimit:      c.Limits.Monthly,
		RequiresApproval:  c.Limits.RequiresApproval,
		ApprovalThreshold: c.Limits.ApprovalThreshold,
		AutoResetDaily:    c.Limits.AutoResetDaily,
		AutoResetMonthly:  c.Limits.AutoResetMonthly,
	}
}

// ApprovalPolicy converts the approval section to the ledger's policy type.
func (c Config) ApprovalPolicy() domain.ApprovalConfig {
	return domain.ApprovalConfig{
		AutoApproveThreshold:          c.Approval.AutoApproveThreshold,
		MaxPendingRequests:            c.Approval.MaxPendingRequests,
		RequestExpiryHours:            c.Approval.RequestExpiryHours,
		RequireApprovalForSubAccounts: c.Approval.RequireApprovalForSubAccounts,
		AllowedRecipients:             c.Approval.AllowedRecipients,
		BlockedRecipients:             c.Approval.BlockedRecipients,
	}
}

// WalletSubAccounts converts configured sub-accounts to domain records.
func (c Config) WalletSubAccounts() []domain.SubAccount {
	subs := make([]domain.SubAccount, 0, len(c.Wallet.SubAccounts))
	for _, sa := range c.Wallet.SubAccounts {
		subs = append(subs, domain.SubAccount{
			ID:              sa.ID,
			Address:         sa.Address,
			Name:            sa.Name,
			IsActive:        sa.IsActive,
			DailySpendLimit: sa.DailySpendLimit,
			TotalSpentToday: sa.TotalSpentToday,
		})
	}
	return subs
}

// AutoSpendPolicy converts the autospend section, or nil when not enabled
// in config (persisted state may still enable it).
func (c Config) AutoSpendPolicy() *domain.AutoSpendConfig {
	if !c.AutoSpend.Enabled {
		return nil
	}
	return &domain.AutoSpendConfig{
		Enabled:           true,
		SubAccountID:      c.AutoSpend.SubAccountID,
		MaxAmount:         c.AutoSpend.MaxAmount,
		RequiresApproval:  c.AutoSpend.RequiresApproval,
		ApprovalThreshold: c.AutoSpend.ApprovalThreshold,
	}
}
