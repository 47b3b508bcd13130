// Package checkout composes the three policy engines into the payment
// control flow: budget check, permission routing, arbiter gate, execution
// hand-off, and report-back to the spend counters.
//
// The flow is one-way: the policy layer decides, the execution collaborator
// acts, and only a successful execution is recorded against the limits.
package checkout

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/spendguard/spendguard/internal/domain"
	"github.com/spendguard/spendguard/internal/infra/observability"
	"github.com/spendguard/spendguard/internal/policy/autospend"
	"github.com/spendguard/spendguard/internal/policy/permission"
	"github.com/spendguard/spendguard/internal/policy/spendtrack"
)

// Final checkout results.
const (
	ResultCompleted       = "completed"
	ResultPendingApproval = "pending_approval"
	ResultDenied          = "denied"
	ResultFailed          = "failed"
)

// ─── Configuration ──────────────────────────────────────────────────────────

// Config controls checkout behavior.
type Config struct {
	// PrimaryAddress funds spends that name no sub-account.
	PrimaryAddress string
}

// ─── Service ────────────────────────────────────────────────────────────────

// Service orchestrates one payment attempt end to end.
type Service struct {
	mu       sync.Mutex
	config   Config
	tracker  *spendtrack.Tracker
	ledger   *permission.Ledger
	arbiter  *autospend.Arbiter
	accounts domain.SubAccountProvider
	executor domain.TransferExecutor
	metrics  *observability.Metrics // nil disables metrics

	completed int64
	pending   int64
	denied    int64
	failed    int64
}

// New creates a checkout service. metrics may be nil.
func New(cfg Config, tracker *spendtrack.Tracker, ledger *permission.Ledger, arbiter *autospend.Arbiter,
	accounts domain.SubAccountProvider, executor domain.TransferExecutor, metrics *observability.Metrics) *Service {
	return &Service{
		config:   cfg,
		tracker:  tracker,
		ledger:   ledger,
		arbiter:  arbiter,
		accounts: accounts,
		executor: executor,
		metrics:  metrics,
	}
}

// PayRequest is one payment attempt.
type PayRequest struct {
	SubAccountID string `json:"sub_account_id,omitempty"` // empty = primary account
	Recipient    string `json:"recipient_address"`
	Amount       int64  `json:"amount"` // cents
	Purpose      string `json:"purpose,omitempty"`
}

// PayResult is the structured outcome of a payment attempt.
type PayResult struct {
	Result           string `json:"result"` // completed | pending_approval | denied | failed
	Reason           string `json:"reason,omitempty"`
	TxHash           string `json:"transaction_hash,omitempty"`
	RequestID        string `json:"request_id,omitempty"` // set while awaiting approval
	UsedSubAccount   string `json:"used_sub_account,omitempty"`
	DailyRemaining   int64  `json:"daily_remaining"`
	MonthlyRemaining int64  `json:"monthly_remaining"`
}

// Pay runs the full policy flow for one payment attempt.
//
//  1. Period tracker: does the amount fit remaining budget?
//  2. Permission ledger: above-threshold or sub-account spends need an
//     approved request; filing one may auto-approve.
//  3. Arbiter: final go/no-go for sub-account funding, then execution.
//  4. Report-back: successful execution is recorded against the limits.
func (s *Service) Pay(ctx context.Context, req PayRequest) PayResult {
	budget := s.tracker.CanSpend(req.Amount)
	s.countSpendDecision(req.Amount, budget)

	res := PayResult{
		DailyRemaining:   budget.DailyRemaining,
		MonthlyRemaining: budget.MonthlyRemaining,
	}

	if !budget.Allowed && !budget.RequiresApproval {
		// Hard budget denial — approval cannot help.
		res.Result = ResultDenied
		res.Reason = budget.Reason
		return s.finish(res)
	}

	// Route through the permission ledger when the tracker demands
	// approval or a sub-account is the funding source.
	if budget.RequiresApproval || req.SubAccountID != "" {
		perm := s.ledger.CanSpend(req.SubAccountID, req.Amount, req.Recipient)
		s.countPermissionDecision(perm)

		if !perm.Allowed {
			if perm.PendingRequestID != "" {
				res.Result = ResultPendingApproval
				res.Reason = perm.Reason
				res.RequestID = perm.PendingRequestID
				return s.finish(res)
			}
			if !perm.RequiresApproval {
				res.Result = ResultDenied
				res.Reason = perm.Reason
				return s.finish(res)
			}

			created, err := s.ledger.Request(req.SubAccountID, req.Amount, req.Recipient, req.Purpose)
			if err != nil {
				res.Result = ResultDenied
				res.Reason = err.Error()
				return s.finish(res)
			}
			s.countTransition(created.Status)
			if created.Status != domain.RequestApproved {
				res.Result = ResultPendingApproval
				res.Reason = "permission request filed, awaiting approval"
				res.RequestID = created.ID
				return s.finish(res)
			}
			// Auto-approved — fall through to execution.
		}
	}

	transfer := s.execute(ctx, req)
	if !transfer.Success {
		res.Result = ResultFailed
		res.Reason = transfer.Error
		res.UsedSubAccount = transfer.UsedSubAccount
		return s.finish(res)
	}

	// Report back to the period tracker. The transfer has already
	// settled; a storage failure here understates usage and is logged
	// rather than turned into a payment failure.
	if err := s.tracker.RecordSpend(req.Amount, req.SubAccountID); err != nil {
		log.Printf("[checkout] record spend after tx %s: %v", transfer.TxHash, err)
	} else if s.metrics != nil {
		s.metrics.SpentCents.Add(float64(req.Amount))
	}

	tracking := s.tracker.Tracking()
	res.Result = ResultCompleted
	res.TxHash = transfer.TxHash
	res.UsedSubAccount = transfer.UsedSubAccount
	res.DailyRemaining = tracking.Daily.Remaining()
	res.MonthlyRemaining = tracking.Monthly.Remaining()
	return s.finish(res)
}

// execute hands the transfer to the right funding path.
func (s *Service) execute(ctx context.Context, req PayRequest) domain.TransferResult {
	if req.SubAccountID == "" {
		if s.executor == nil {
			return domain.TransferResult{Error: domain.ErrNoExecutor.Error()}
		}
		txHash, err := s.executor.Transfer(ctx, s.config.PrimaryAddress, req.Recipient, req.Amount)
		if err != nil {
			return domain.TransferResult{Error: err.Error()}
		}
		return domain.TransferResult{Success: true, TxHash: txHash}
	}

	sub, err := s.accounts.SubAccount(req.SubAccountID)
	if err != nil {
		return domain.TransferResult{Error: fmt.Sprintf("sub-account %s: %v", req.SubAccountID, err)}
	}
	return s.arbiter.ProcessAutoSpend(ctx, req.Amount, req.Recipient, sub, s.executor)
}

// ─── Stats ──────────────────────────────────────────────────────────────────

// Stats summarizes checkout outcomes since process start.
type Stats struct {
	Completed int64 `json:"completed"`
	Pending   int64 `json:"pending"`
	Denied    int64 `json:"denied"`
	Failed    int64 `json:"failed"`
}

// Stats returns current checkout statistics.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Completed: s.completed,
		Pending:   s.pending,
		Denied:    s.denied,
		Failed:    s.failed,
	}
}

// finish updates counters and metrics for a final result.
func (s *Service) finish(res PayResult) PayResult {
	s.mu.Lock()
	switch res.Result {
	case ResultCompleted:
		s.completed++
	case ResultPendingApproval:
		s.pending++
	case ResultDenied:
		s.denied++
	case ResultFailed:
		s.failed++
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.Checkouts.WithLabelValues(res.Result).Inc()
	}
	if res.Result != ResultCompleted {
		log.Printf("[checkout] %s: %s", res.Result, res.Reason)
	}
	return res
}

// ─── Metric Helpers ─────────────────────────────────────────────────────────

func (s *Service) countSpendDecision(amount int64, d domain.SpendDecision) {
	if s.metrics == nil {
		return
	}
	outcome := "allowed"
	switch {
	case d.Allowed:
	case d.RequiresApproval:
		outcome = "denied_approval"
	case amount > d.DailyRemaining:
		outcome = "denied_daily"
	default:
		outcome = "denied_monthly"
	}
	s.metrics.SpendDecisions.WithLabelValues(outcome).Inc()
}

func (s *Service) countPermissionDecision(d domain.PermissionDecision) {
	if s.metrics == nil {
		return
	}
	outcome := "allowed"
	switch {
	case d.Allowed:
	case d.PendingRequestID != "":
		outcome = "pending"
	default:
		outcome = "approval_required"
	}
	s.metrics.PermissionDecisions.WithLabelValues(outcome).Inc()
}

func (s *Service) countTransition(status domain.RequestStatus) {
	if s.metrics != nil {
		s.metrics.RequestTransitions.WithLabelValues(string(status)).Inc()
	}
}
