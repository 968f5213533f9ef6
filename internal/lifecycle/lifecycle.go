// Package lifecycle implements the payment intent state machine:
// pending → simulating → blocked | awaiting_approval → executing →
// succeeded | failed.
//
// Every transition checks the current status first and leaves the intent
// untouched when the transition is not permitted, returning an error that
// wraps domain.ErrInvalidState. Persistence, locking and collaborator calls
// belong to the service layer.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/omniagentpay/payguard/internal/domain"
	"github.com/omniagentpay/payguard/internal/guard"
)

const (
	DefaultCurrency = "USDC"

	blockedDetails      = "Blocked by guard checks"
	autoApprovedDetails = "Auto-approved"
)

// Decision is the outcome of a completed simulation.
type Decision string

const (
	DecisionBlocked       Decision = "blocked"
	DecisionHumanApproval Decision = "human_approval"
	DecisionAutoApproved  Decision = "auto_approved"
)

// Lifecycle applies transitions that need guard evaluation.
type Lifecycle struct {
	evaluator *guard.Evaluator
}

// New creates a lifecycle backed by the given evaluator.
func New(evaluator *guard.Evaluator) *Lifecycle {
	return &Lifecycle{evaluator: evaluator}
}

// Evaluator returns the evaluator used for simulation and replay.
func (l *Lifecycle) Evaluator() *guard.Evaluator {
	return l.evaluator
}

// NewIntent builds a pending intent from a creation request.
func NewIntent(id string, req domain.CreateIntentRequest, now time.Time) (*domain.PaymentIntent, error) {
	if err := req.Candidate().Validate(); err != nil {
		return nil, err
	}
	currency := req.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	return &domain.PaymentIntent{
		ID:               id,
		Amount:           req.Amount,
		Currency:         currency,
		Recipient:        req.Recipient,
		RecipientAddress: req.RecipientAddress,
		WalletID:         req.WalletID,
		Chain:            req.Chain,
		Description:      req.Description,
		AgentID:          req.AgentID,
		Tool:             req.Tool,
		Status:           domain.IntentStatusPending,
		Steps:            domain.NewSteps(),
		GuardResults:     []domain.GuardResult{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// BeginSimulation moves a pending intent to simulating.
func BeginSimulation(in *domain.PaymentIntent, now time.Time) error {
	if in.Status != domain.IntentStatusPending {
		return invalidState("simulate", in)
	}
	in.Status = domain.IntentStatusSimulating
	in.SetStep(domain.StepSimulation, domain.StepStatusInProgress, "", now)
	in.UpdatedAt = now
	return nil
}

// CompleteSimulation evaluates the intent against rules and spend, records
// the results and decides between blocked, human approval and automatic
// approval. route may be nil.
func (l *Lifecycle) CompleteSimulation(ctx context.Context, in *domain.PaymentIntent, rules []domain.GuardRule, spend domain.SpendSnapshot, route *domain.Route, now time.Time) (Decision, error) {
	if in.Status != domain.IntentStatusSimulating {
		return "", invalidState("complete simulation of", in)
	}

	c := in.Candidate()
	results := l.evaluator.Evaluate(ctx, c, rules, spend)
	snap := spend.Clone()

	in.GuardResults = results
	in.SpendSnapshot = &snap
	if route != nil {
		r := *route
		in.Route = &r
	}
	in.SetStep(domain.StepSimulation, domain.StepStatusCompleted, fmt.Sprintf("%d guards evaluated", len(results)), now)
	in.UpdatedAt = now

	if !guard.Allowed(results) {
		in.Status = domain.IntentStatusBlocked
		in.SetStep(domain.StepApproval, domain.StepStatusFailed, blockedDetails, now)
		return DecisionBlocked, nil
	}

	in.Status = domain.IntentStatusAwaitingApproval
	if required, reason := guard.HumanApprovalRequired(c, rules); required {
		in.SetStep(domain.StepApproval, domain.StepStatusInProgress, reason, now)
		return DecisionHumanApproval, nil
	}
	in.SetStep(domain.StepApproval, domain.StepStatusCompleted, autoApprovedDetails, now)
	return DecisionAutoApproved, nil
}

// Simulate runs BeginSimulation and CompleteSimulation in one step.
func (l *Lifecycle) Simulate(ctx context.Context, in *domain.PaymentIntent, rules []domain.GuardRule, spend domain.SpendSnapshot, now time.Time) (Decision, error) {
	if err := BeginSimulation(in, now); err != nil {
		return "", err
	}
	return l.CompleteSimulation(ctx, in, rules, spend, nil, now)
}

// FailSimulation marks the intent failed at the Simulation step. It applies
// to any non-terminal intent that has not started executing.
func FailSimulation(in *domain.PaymentIntent, details string, now time.Time) error {
	switch in.Status {
	case domain.IntentStatusPending, domain.IntentStatusSimulating:
	default:
		return invalidState("fail simulation of", in)
	}
	in.Status = domain.IntentStatusFailed
	in.SetStep(domain.StepSimulation, domain.StepStatusFailed, details, now)
	in.UpdatedAt = now
	return nil
}

// Approve records an approval and moves the intent to executing. It is only
// legal from awaiting_approval.
func Approve(in *domain.PaymentIntent, decidedBy string, now time.Time) error {
	if in.Status != domain.IntentStatusAwaitingApproval {
		return invalidState("approve", in)
	}
	if in.ApprovalState() == domain.ApprovalStatePendingHuman {
		if decidedBy == "" {
			decidedBy = "operator"
		}
		in.ApprovedBy = decidedBy
		in.SetStep(domain.StepApproval, domain.StepStatusCompleted, "Approved by "+decidedBy, now)
	}
	in.Status = domain.IntentStatusExecuting
	in.SetStep(domain.StepExecution, domain.StepStatusInProgress, "", now)
	in.UpdatedAt = now
	return nil
}

// Reject denies an intent waiting on a human decision.
func Reject(in *domain.PaymentIntent, decidedBy, reason string, now time.Time) error {
	if in.Status != domain.IntentStatusAwaitingApproval || in.ApprovalState() != domain.ApprovalStatePendingHuman {
		return invalidState("reject", in)
	}
	details := "Rejected"
	if decidedBy != "" {
		details += " by " + decidedBy
	}
	if reason != "" {
		details += ": " + reason
	}
	in.Status = domain.IntentStatusFailed
	in.SetStep(domain.StepApproval, domain.StepStatusFailed, details, now)
	in.UpdatedAt = now
	return nil
}

// ExpireApproval fails an intent whose human approval is overdue.
func ExpireApproval(in *domain.PaymentIntent, timeout time.Duration, now time.Time) error {
	if in.Status != domain.IntentStatusAwaitingApproval || in.ApprovalState() != domain.ApprovalStatePendingHuman {
		return invalidState("expire approval of", in)
	}
	in.Status = domain.IntentStatusFailed
	in.SetStep(domain.StepApproval, domain.StepStatusFailed, fmt.Sprintf("approval timed out after %s", timeout), now)
	in.UpdatedAt = now
	return nil
}

// BeginExecution prepares an intent for the executor call and stamps
// ExecutionStartedAt. It accepts executing intents that have not started yet
// and awaiting_approval intents whose approval is already complete; the
// latter pass through approval completion first. An execution that already
// started is never begun again: its outcome may be unknown.
func BeginExecution(in *domain.PaymentIntent, now time.Time) error {
	switch in.Status {
	case domain.IntentStatusExecuting:
		if in.ExecutionStartedAt != nil {
			return errors.Wrapf(domain.ErrInvalidState, "cannot execute intent %s: execution already started at %s",
				in.ID, in.ExecutionStartedAt.Format(time.RFC3339))
		}
	case domain.IntentStatusAwaitingApproval, domain.IntentStatusApproved:
		if in.ApprovalState() == domain.ApprovalStatePendingHuman {
			return errors.Wrapf(domain.ErrInvalidState, "cannot execute intent %s: human approval is pending", in.ID)
		}
		in.Status = domain.IntentStatusExecuting
	default:
		return invalidState("execute", in)
	}
	in.SetStep(domain.StepExecution, domain.StepStatusInProgress, "", now)
	started := now
	in.ExecutionStartedAt = &started
	in.UpdatedAt = now
	return nil
}

// CompleteExecution applies the executor's report. A successful result
// moves the intent to succeeded and returns the ledger record to emit; a
// failed one moves it to failed and returns nil.
func CompleteExecution(in *domain.PaymentIntent, res domain.ExecutionResult, now time.Time) (*domain.Transaction, error) {
	if in.Status != domain.IntentStatusExecuting {
		return nil, invalidState("complete execution of", in)
	}
	if !res.Success {
		details := res.Error
		if details == "" {
			details = "payment execution failed"
		}
		return nil, FailExecution(in, details, now)
	}

	in.Status = domain.IntentStatusSucceeded
	in.TxHash = res.TxHash
	if res.Fee != nil {
		fee := *res.Fee
		in.Fee = &fee
	}
	in.SetStep(domain.StepExecution, domain.StepStatusCompleted, "", now)
	in.SetStep(domain.StepConfirmation, domain.StepStatusCompleted, "tx "+res.TxHash, now)
	in.UpdatedAt = now

	tx := &domain.Transaction{
		ID:               domain.NewTransactionID(),
		IntentID:         in.ID,
		WalletID:         in.WalletID,
		Amount:           in.Amount,
		Currency:         in.Currency,
		Recipient:        in.Recipient,
		RecipientAddress: in.RecipientAddress,
		Chain:            in.Chain,
		TxHash:           in.TxHash,
		Timestamp:        now,
	}
	if in.Fee != nil {
		tx.Fee = *in.Fee
	}
	return tx, nil
}

// FailExecution moves an executing intent to failed with details on the
// Execution step.
func FailExecution(in *domain.PaymentIntent, details string, now time.Time) error {
	if in.Status != domain.IntentStatusExecuting {
		return invalidState("fail execution of", in)
	}
	in.Status = domain.IntentStatusFailed
	in.SetStep(domain.StepExecution, domain.StepStatusFailed, details, now)
	in.UpdatedAt = now
	return nil
}

func invalidState(op string, in *domain.PaymentIntent) error {
	return errors.Wrapf(domain.ErrInvalidState, "cannot %s intent %s in status %s", op, in.ID, in.Status)
}
