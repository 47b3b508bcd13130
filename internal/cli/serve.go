package cli

import (
	"fmt"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/spendguard/spendguard/internal/api"
	"github.com/spendguard/spendguard/internal/app/checkout"
	"github.com/spendguard/spendguard/internal/daemon"
	"github.com/spendguard/spendguard/internal/domain"
	"github.com/spendguard/spendguard/internal/infra/kvstore"
	"github.com/spendguard/spendguard/internal/infra/observability"
	"github.com/spendguard/spendguard/internal/infra/wallet"
	"github.com/spendguard/spendguard/internal/policy/autospend"
	"github.com/spendguard/spendguard/internal/policy/permission"
	"github.com/spendguard/spendguard/internal/policy/spendtrack"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the spendguard daemon",
	Long: `Start the policy engine and its admin HTTP API. State persists in
SQLite at [store].path (in-memory when empty). Transfers execute through
the built-in dry-run wallet unless embedded with a real provider.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.Load(configPath)
	if err != nil {
		return err
	}

	var store domain.Store
	if cfg.Store.Path != "" {
		db, err := kvstore.Open(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer db.Close()
		store = db
		log.Printf("[daemon] store: %s", cfg.Store.Path)
	} else {
		store = kvstore.NewMemory()
		log.Printf("[daemon] store: in-memory (state is lost on exit)")
	}

	tracker := spendtrack.New(store, cfg.SpendLimits())
	ledger := permission.New(store, cfg.ApprovalPolicy())
	arbiter := autospend.New(store)
	if policy := cfg.AutoSpendPolicy(); policy != nil {
		if err := arbiter.SetConfig(*policy); err != nil {
			return fmt.Errorf("apply autospend config: %w", err)
		}
	}

	provider := wallet.NewStaticProvider(cfg.WalletSubAccounts())
	executor := wallet.DryRunExecutor{}
	metrics := observability.New(prometheus.DefaultRegisterer)

	service := checkout.New(
		checkout.Config{PrimaryAddress: cfg.Checkout.PrimaryAddress},
		tracker, ledger, arbiter, provider, executor, metrics,
	)

	server := api.NewServer(tracker, ledger, arbiter, service, provider)
	if cfg.API.Metrics {
		server.EnableMetrics()
	}

	limits := tracker.Config()
	log.Printf("[daemon] limits: daily %s, monthly %s, approval above %s",
		domain.FormatAmount(limits.DailyLimit),
		domain.FormatAmount(limits.MonthlyLimit),
		domain.FormatAmount(limits.ApprovalThreshold))
	log.Printf("[daemon] listening on %s", cfg.API.Addr())
	return http.ListenAndServe(cfg.API.Addr(), server.Handler())
}
