package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/omniagentpay/payguard/internal/domain"
	"github.com/omniagentpay/payguard/internal/lifecycle"
	"github.com/omniagentpay/payguard/internal/repository"
)

// CreateIntent validates the request and stores a pending intent.
func (s *Service) CreateIntent(ctx context.Context, req domain.CreateIntentRequest) (*domain.PaymentIntent, error) {
	in, err := lifecycle.NewIntent(domain.NewIntentID(), req, s.clock())
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateIntent(ctx, in); err != nil {
		return nil, errors.Wrap(err, "failed to create intent")
	}
	s.metrics.Transition(in.Status)
	s.emit(ctx, in, domain.EventTypeIntentCreated, in.Candidate())
	s.logger.InfoContext(ctx, "intent created",
		"intent_id", in.ID, "wallet_id", in.WalletID, "amount", in.Amount.String())
	return in, nil
}

// GetIntent returns an intent or domain.ErrIntentNotFound.
func (s *Service) GetIntent(ctx context.Context, intentID string) (*domain.PaymentIntent, error) {
	in, err := s.store.GetIntent(ctx, intentID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get intent")
	}
	if in == nil {
		return nil, errors.Wrapf(domain.ErrIntentNotFound, "intent %s", intentID)
	}
	return in, nil
}

// ListIntents lists intents, newest first.
func (s *Service) ListIntents(ctx context.Context, filter repository.IntentFilter) ([]domain.PaymentIntent, error) {
	intents, err := s.store.ListIntents(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list intents")
	}
	if intents == nil {
		intents = []domain.PaymentIntent{}
	}
	return intents, nil
}

// GetIntentEvents returns the intent's timeline, oldest first.
func (s *Service) GetIntentEvents(ctx context.Context, intentID string, afterTs int64) ([]domain.Event, error) {
	if _, err := s.GetIntent(ctx, intentID); err != nil {
		return nil, err
	}
	events, err := s.store.GetEvents(ctx, repository.EventFilter{IntentID: intentID, AfterTs: afterTs})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get events")
	}
	if events == nil {
		events = []domain.Event{}
	}
	return events, nil
}

// SimulateIntent evaluates a pending intent and moves it to blocked or
// awaiting_approval. Failures to load rules, spend or a route leave the
// intent failed on the Simulation step instead of returning an error.
func (s *Service) SimulateIntent(ctx context.Context, intentID string) (*domain.PaymentIntent, error) {
	release, err := s.locks.acquire(ctx, intentID)
	if err != nil {
		return nil, err
	}
	defer release()

	in, err := s.GetIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.BeginSimulation(in, s.clock()); err != nil {
		return nil, err
	}
	if err := s.save(ctx, in); err != nil {
		return nil, err
	}
	s.emit(ctx, in, domain.EventTypeSimulationStarted, statusPayload{Status: in.Status})

	decision, err := s.completeSimulation(ctx, in)
	if err != nil {
		s.logger.WarnContext(ctx, "simulation failed", "intent_id", in.ID, "error", err.Error())
		if ferr := lifecycle.FailSimulation(in, "simulation failed: "+err.Error(), s.clock()); ferr != nil {
			return nil, ferr
		}
		if err := s.save(ctx, in); err != nil {
			return nil, err
		}
		s.emit(ctx, in, domain.EventTypeSimulationFailed, statusPayload{Status: in.Status, Details: stepDetails(in, domain.StepSimulation)})
		return in, nil
	}

	if err := s.save(ctx, in); err != nil {
		return nil, err
	}
	s.metrics.GuardResults(in.GuardResults)
	s.emit(ctx, in, domain.EventTypeGuardEvaluated, in.GuardResults)

	details := stepDetails(in, domain.StepApproval)
	switch decision {
	case lifecycle.DecisionBlocked:
		s.emit(ctx, in, domain.EventTypeBlocked, statusPayload{Status: in.Status, Details: details})
	case lifecycle.DecisionHumanApproval:
		s.emit(ctx, in, domain.EventTypeApprovalRequired, statusPayload{Status: in.Status, Details: details})
	case lifecycle.DecisionAutoApproved:
		s.emit(ctx, in, domain.EventTypeAutoApproved, statusPayload{Status: in.Status, Details: details})
	}
	s.logger.InfoContext(ctx, "intent simulated", "intent_id", in.ID, "decision", string(decision))
	return in, nil
}

func (s *Service) completeSimulation(ctx context.Context, in *domain.PaymentIntent) (decision lifecycle.Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("panic: %v", r)
		}
	}()

	rules, err := s.store.ListGuards(ctx)
	if err != nil {
		return "", errors.Wrap(err, "failed to load guards")
	}
	now := s.clock()
	spend, err := s.spend.SpendSnapshot(ctx, in.WalletID, now)
	if err != nil {
		return "", errors.Wrap(err, "failed to load spend")
	}
	var route *domain.Route
	if s.router != nil {
		route, err = s.router.Route(ctx, in.Candidate())
		if err != nil {
			return "", errors.Wrap(err, "failed to route payment")
		}
	}
	return s.lifecycle.CompleteSimulation(ctx, in, rules, spend, route, now)
}

// ApproveIntent records an approval and moves the intent to executing.
func (s *Service) ApproveIntent(ctx context.Context, intentID string, req domain.ApprovalDecisionRequest) (*domain.PaymentIntent, error) {
	release, err := s.locks.acquire(ctx, intentID)
	if err != nil {
		return nil, err
	}
	defer release()

	in, err := s.GetIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.Approve(in, req.DecidedBy, s.clock()); err != nil {
		return nil, err
	}
	if err := s.save(ctx, in); err != nil {
		return nil, err
	}
	s.emit(ctx, in, domain.EventTypeApproved, req)
	s.logger.InfoContext(ctx, "intent approved", "intent_id", in.ID, "approved_by", in.ApprovedBy)
	return in, nil
}

// RejectIntent denies an intent waiting on a human decision.
func (s *Service) RejectIntent(ctx context.Context, intentID string, req domain.ApprovalDecisionRequest) (*domain.PaymentIntent, error) {
	release, err := s.locks.acquire(ctx, intentID)
	if err != nil {
		return nil, err
	}
	defer release()

	in, err := s.GetIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.Reject(in, req.DecidedBy, req.Reason, s.clock()); err != nil {
		return nil, err
	}
	if err := s.save(ctx, in); err != nil {
		return nil, err
	}
	s.emit(ctx, in, domain.EventTypeRejected, req)
	s.logger.InfoContext(ctx, "intent rejected", "intent_id", in.ID, "decided_by", req.DecidedBy)
	return in, nil
}

// ExecuteIntent hands an approved intent to the payment executor and applies
// its result. The executor call is time-boxed by the execution timeout; a
// timeout fails the intent. The intent lock is held for the whole call, so a
// concurrent Execute on the same intent waits and then observes the
// terminal status.
func (s *Service) ExecuteIntent(ctx context.Context, intentID string) (*domain.PaymentIntent, error) {
	release, err := s.locks.acquire(ctx, intentID)
	if err != nil {
		return nil, err
	}
	defer release()

	in, err := s.GetIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.BeginExecution(in, s.clock()); err != nil {
		return nil, err
	}
	if err := s.save(ctx, in); err != nil {
		return nil, err
	}
	s.emit(ctx, in, domain.EventTypeExecutionStarted, statusPayload{Status: in.Status})

	res := s.callExecutor(ctx, in)

	// The executor may have moved money; the outcome is persisted even if the
	// caller has gone away.
	persistCtx := context.WithoutCancel(ctx)
	tx, err := lifecycle.CompleteExecution(in, res, s.clock())
	if err != nil {
		return nil, err
	}
	if err := s.save(persistCtx, in); err != nil {
		return nil, err
	}

	if tx == nil {
		s.emit(persistCtx, in, domain.EventTypeExecutionFailed, statusPayload{Status: in.Status, Details: stepDetails(in, domain.StepExecution)})
		s.logger.WarnContext(ctx, "execution failed", "intent_id", in.ID, "error", res.Error)
		return in, nil
	}

	s.emit(persistCtx, in, domain.EventTypeExecutionSucceeded, res)
	if err := s.ledger.RecordTransaction(persistCtx, tx); err != nil {
		s.metrics.LedgerError()
		s.logger.ErrorContext(ctx, "failed to record transaction",
			"intent_id", in.ID, "tx_id", tx.ID, "error", err.Error())
	}
	s.logger.InfoContext(ctx, "intent executed", "intent_id", in.ID, "tx_hash", in.TxHash)
	return in, nil
}

func (s *Service) callExecutor(ctx context.Context, in *domain.PaymentIntent) domain.ExecutionResult {
	execCtx, cancel := context.WithTimeout(ctx, s.opts.ExecutionTimeout)
	defer cancel()

	start := time.Now()
	res, err := s.executor.ExecutePayment(execCtx, in.Clone())
	switch {
	case err != nil && errors.Is(execCtx.Err(), context.DeadlineExceeded):
		res = domain.ExecutionResult{Error: fmt.Sprintf("execution timed out after %s", s.opts.ExecutionTimeout)}
	case err != nil:
		res = domain.ExecutionResult{Error: err.Error()}
	}

	outcome := "succeeded"
	if !res.Success {
		outcome = "failed"
	}
	s.metrics.Execution(outcome, time.Since(start))
	return res
}

// ReplayIntent re-evaluates an intent against the current rules without
// changing it.
func (s *Service) ReplayIntent(ctx context.Context, intentID string) (domain.ReplayReport, error) {
	in, err := s.GetIntent(ctx, intentID)
	if err != nil {
		return domain.ReplayReport{}, err
	}
	rules, err := s.store.ListGuards(ctx)
	if err != nil {
		return domain.ReplayReport{}, errors.Wrap(err, "failed to load guards")
	}
	return s.lifecycle.Replay(ctx, in, rules), nil
}

// save persists the intent and counts the transition.
func (s *Service) save(ctx context.Context, in *domain.PaymentIntent) error {
	if err := s.store.UpdateIntent(ctx, in); err != nil {
		return errors.Wrapf(err, "failed to update intent %s", in.ID)
	}
	s.metrics.Transition(in.Status)
	return nil
}
