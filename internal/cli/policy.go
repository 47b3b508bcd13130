package cli

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/spendguard/spendguard/internal/domain"
)

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(requestsCmd)
	rootCmd.AddCommand(resetCmd)

	requestsCmd.AddCommand(requestsListCmd)
	requestsCmd.AddCommand(requestsApproveCmd)
	requestsCmd.AddCommand(requestsRejectCmd)
	requestsCmd.AddCommand(requestsCleanupCmd)

	requestsListCmd.Flags().String("status", "", "filter by status (pending|approved|rejected|expired)")
	requestsApproveCmd.Flags().String("by", "", "approver identity (required)")
	requestsRejectCmd.Flags().String("by", "", "rejecter identity (required)")
	requestsRejectCmd.Flags().String("reason", "", "rejection reason")
}

// ─── status ─────────────────────────────────────────────────────────────────

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show policy status: limits, counters, request stats",
	RunE: func(cmd *cobra.Command, args []string) error {
		var out map[string]interface{}
		if err := getJSON("/api/status", &out); err != nil {
			return err
		}
		printJSON(out)
		return nil
	},
}

// ─── check ──────────────────────────────────────────────────────────────────

var checkCmd = &cobra.Command{
	Use:   "check AMOUNT_CENTS",
	Short: "Check whether an amount fits the remaining spend budget",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || amount <= 0 {
			return fmt.Errorf("amount must be a positive integer in cents, got %q", args[0])
		}

		var d domain.SpendDecision
		if err := getJSON(fmt.Sprintf("/api/spend/check?amount=%d", amount), &d); err != nil {
			return err
		}

		if d.Allowed {
			fmt.Fprintf(os.Stdout, "✅ %s allowed\n", domain.FormatAmount(amount))
		} else {
			fmt.Fprintf(os.Stdout, "❌ %s denied: %s\n", domain.FormatAmount(amount), d.Reason)
		}
		fmt.Fprintf(os.Stdout, "   daily remaining:   %s\n", domain.FormatAmount(d.DailyRemaining))
		fmt.Fprintf(os.Stdout, "   monthly remaining: %s\n", domain.FormatAmount(d.MonthlyRemaining))
		return nil
	},
}

// ─── requests ───────────────────────────────────────────────────────────────

var requestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "Manage permission requests",
}

var requestsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List permission requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")

		var out struct {
			Requests []domain.PermissionRequest `json:"requests"`
			Stats    domain.RequestStats        `json:"stats"`
		}
		path := "/api/requests/"
		if status != "" {
			path += "?status=" + status
		}
		if err := getJSON(path, &out); err != nil {
			return err
		}

		if len(out.Requests) == 0 {
			fmt.Fprintln(os.Stdout, "No permission requests.")
			return nil
		}
		for _, req := range out.Requests {
			fmt.Fprintf(os.Stdout, "%s  %-8s  %-10s  %s → %s  %q\n",
				req.ID, req.Status, domain.FormatAmount(req.Amount),
				req.SubAccountID, req.Recipient, req.Purpose)
		}
		fmt.Fprintf(os.Stdout, "\n%d total: %d pending, %d approved, %d rejected, %d expired\n",
			out.Stats.Total, out.Stats.Pending, out.Stats.Approved,
			out.Stats.Rejected, out.Stats.Expired)
		return nil
	},
}

var requestsApproveCmd = &cobra.Command{
	Use:   "approve REQUEST_ID",
	Short: "Approve a pending permission request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		by, _ := cmd.Flags().GetString("by")
		if by == "" {
			return fmt.Errorf("--by is required")
		}

		var req domain.PermissionRequest
		if err := postJSON("/api/requests/"+args[0]+"/approve",
			map[string]string{"approved_by": by}, &req); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "✅ Request %s approved by %s at %s\n",
			req.ID, req.ApprovedBy, req.ApprovedAt.Format(time.RFC3339))
		return nil
	},
}

var requestsRejectCmd = &cobra.Command{
	Use:   "reject REQUEST_ID",
	Short: "Reject a pending permission request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		by, _ := cmd.Flags().GetString("by")
		reason, _ := cmd.Flags().GetString("reason")
		if by == "" {
			return fmt.Errorf("--by is required")
		}

		var req domain.PermissionRequest
		if err := postJSON("/api/requests/"+args[0]+"/reject",
			map[string]string{"rejected_by": by, "reason": reason}, &req); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "✅ Request %s rejected by %s\n", req.ID, req.RejectedBy)
		return nil
	},
}

var requestsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Expire stale pending requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			Expired int                 `json:"expired"`
			Stats   domain.RequestStats `json:"stats"`
		}
		if err := postJSON("/api/requests/cleanup", struct{}{}, &out); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Expired %d request(s); %d still pending.\n",
			out.Expired, out.Stats.Pending)
		return nil
	},
}

// ─── reset ──────────────────────────────────────────────────────────────────

var resetCmd = &cobra.Command{
	Use:   "reset {daily|monthly}",
	Short: "Reset a spend window (administrative override)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "daily", "monthly":
		default:
			return fmt.Errorf("expected 'daily' or 'monthly', got %q", args[0])
		}

		var tracking domain.SpendTracking
		if err := postJSON("/api/limits/reset/"+args[0], struct{}{}, &tracking); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "✅ %s window reset. daily %s/%s, monthly %s/%s\n",
			args[0],
			domain.FormatAmount(tracking.Daily.Amount), domain.FormatAmount(tracking.Daily.Limit),
			domain.FormatAmount(tracking.Monthly.Amount), domain.FormatAmount(tracking.Monthly.Limit))
		return nil
	},
}
