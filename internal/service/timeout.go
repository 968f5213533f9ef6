package service

import (
	"context"
	"fmt"
	"time"

	"github.com/omniagentpay/payguard/internal/domain"
	"github.com/omniagentpay/payguard/internal/lifecycle"
	"github.com/omniagentpay/payguard/internal/repository"
)

const sweepBatch = 100

// RunTimeoutMonitor settles intents that would otherwise never move: human
// approvals pending past the approval timeout, executor calls started longer
// ago than the execution timeout, and simulations left unfinished past the
// simulation timeout. Approved intents whose execution has not started are
// left alone. It returns when ctx is done.
func (s *Service) RunTimeoutMonitor(ctx context.Context) {
	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepTimeouts(ctx)
		}
	}
}

func (s *Service) sweepTimeouts(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	now := s.clock()
	s.sweepApprovals(sweepCtx, now)
	s.sweepExecutions(sweepCtx, now)
	s.sweepSimulations(sweepCtx, now)
}

func (s *Service) sweepApprovals(ctx context.Context, now time.Time) {
	stale, err := s.store.ListIntents(ctx, repository.IntentFilter{
		Statuses:      []domain.IntentStatus{domain.IntentStatusAwaitingApproval},
		UpdatedBefore: now.Add(-s.opts.ApprovalTimeout),
		Limit:         sweepBatch,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "approval timeout sweep failed", "error", err.Error())
		return
	}
	for i := range stale {
		s.expire(ctx, stale[i].ID, func(in *domain.PaymentIntent) (domain.EventType, bool) {
			if in.ApprovalState() != domain.ApprovalStatePendingHuman {
				return "", false
			}
			if err := lifecycle.ExpireApproval(in, s.opts.ApprovalTimeout, s.clock()); err != nil {
				return "", false
			}
			return domain.EventTypeApprovalExpired, true
		})
	}
}

func (s *Service) sweepExecutions(ctx context.Context, now time.Time) {
	cutoff := now.Add(-s.opts.ExecutionTimeout)
	stale, err := s.store.ListIntents(ctx, repository.IntentFilter{
		Statuses:               []domain.IntentStatus{domain.IntentStatusExecuting},
		ExecutionStartedBefore: cutoff,
		Limit:                  sweepBatch,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "execution timeout sweep failed", "error", err.Error())
		return
	}
	details := fmt.Sprintf("execution timed out after %s", s.opts.ExecutionTimeout)
	for i := range stale {
		s.expire(ctx, stale[i].ID, func(in *domain.PaymentIntent) (domain.EventType, bool) {
			if in.ExecutionStartedAt == nil || !in.ExecutionStartedAt.Before(cutoff) {
				return "", false
			}
			if err := lifecycle.FailExecution(in, details, s.clock()); err != nil {
				return "", false
			}
			return domain.EventTypeExecutionFailed, true
		})
	}
}

func (s *Service) sweepSimulations(ctx context.Context, now time.Time) {
	stale, err := s.store.ListIntents(ctx, repository.IntentFilter{
		Statuses:      []domain.IntentStatus{domain.IntentStatusSimulating},
		UpdatedBefore: now.Add(-s.opts.SimulationTimeout),
		Limit:         sweepBatch,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "simulation timeout sweep failed", "error", err.Error())
		return
	}
	details := fmt.Sprintf("simulation did not complete within %s", s.opts.SimulationTimeout)
	for i := range stale {
		s.expire(ctx, stale[i].ID, func(in *domain.PaymentIntent) (domain.EventType, bool) {
			if in.Status != domain.IntentStatusSimulating {
				return "", false
			}
			if err := lifecycle.FailSimulation(in, details, s.clock()); err != nil {
				return "", false
			}
			return domain.EventTypeSimulationFailed, true
		})
	}
}

// expire re-reads the intent under its lock and applies fn. Intents whose
// lock is held are skipped: an operation is in flight and will settle them.
func (s *Service) expire(ctx context.Context, intentID string, fn func(*domain.PaymentIntent) (domain.EventType, bool)) {
	release, ok := s.locks.tryAcquire(intentID)
	if !ok {
		return
	}
	defer release()

	in, err := s.GetIntent(ctx, intentID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to load intent for timeout", "intent_id", intentID, "error", err.Error())
		return
	}
	eventType, changed := fn(in)
	if !changed {
		return
	}
	if err := s.save(ctx, in); err != nil {
		s.logger.WarnContext(ctx, "failed to mark intent timed out", "intent_id", intentID, "error", err.Error())
		return
	}

	step := domain.StepApproval
	switch eventType {
	case domain.EventTypeExecutionFailed:
		step = domain.StepExecution
	case domain.EventTypeSimulationFailed:
		step = domain.StepSimulation
	}
	s.emit(ctx, in, eventType, statusPayload{Status: in.Status, Details: stepDetails(in, step)})
	s.logger.InfoContext(ctx, "intent timed out", "intent_id", in.ID, "type", string(eventType))
}
