package service

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/omniagentpay/payguard/internal/domain"
	"github.com/omniagentpay/payguard/internal/guard"
)

// ListGuards returns every rule in evaluation order.
func (s *Service) ListGuards(ctx context.Context) ([]domain.GuardRule, error) {
	rules, err := s.store.ListGuards(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list guards")
	}
	if rules == nil {
		rules = []domain.GuardRule{}
	}
	return rules, nil
}

// GetGuard returns a rule or domain.ErrGuardNotFound.
func (s *Service) GetGuard(ctx context.Context, guardID string) (*domain.GuardRule, error) {
	rule, err := s.store.GetGuard(ctx, guardID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get guard")
	}
	if rule == nil {
		return nil, errors.Wrapf(domain.ErrGuardNotFound, "guard %s", guardID)
	}
	return rule, nil
}

// CreateGuard validates and stores a new rule. A rule with an unreadable
// config is refused with domain.ErrInvalidGuardConfig.
func (s *Service) CreateGuard(ctx context.Context, rule domain.GuardRule) (*domain.GuardRule, error) {
	if rule.ID == "" {
		rule.ID = domain.NewGuardID()
	}
	if err := s.validateGuard(ctx, &rule); err != nil {
		return nil, err
	}
	now := s.clock()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	if err := s.store.CreateGuard(ctx, &rule); err != nil {
		return nil, errors.Wrap(err, "failed to create guard")
	}
	s.logger.InfoContext(ctx, "guard created", "guard_id", rule.ID, "kind", string(rule.Kind))
	return &rule, nil
}

// UpdateGuard replaces a rule's name, enabled flag, kind and config. The
// change is visible to the next evaluation.
func (s *Service) UpdateGuard(ctx context.Context, guardID string, rule domain.GuardRule) (*domain.GuardRule, error) {
	existing, err := s.GetGuard(ctx, guardID)
	if err != nil {
		return nil, err
	}
	rule.ID = guardID
	if err := s.validateGuard(ctx, &rule); err != nil {
		return nil, err
	}
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = s.clock()
	if err := s.store.UpdateGuard(ctx, &rule); err != nil {
		return nil, errors.Wrap(err, "failed to update guard")
	}
	s.logger.InfoContext(ctx, "guard updated", "guard_id", rule.ID, "enabled", rule.Enabled)
	return &rule, nil
}

// DeleteGuard removes a rule.
func (s *Service) DeleteGuard(ctx context.Context, guardID string) error {
	if err := s.store.DeleteGuard(ctx, guardID); err != nil {
		return errors.Wrap(err, "failed to delete guard")
	}
	s.logger.InfoContext(ctx, "guard deleted", "guard_id", guardID)
	return nil
}

// SeedGuards stores rules that are not yet in the registry. Existing rules
// are left as they are so edits made through the API survive restarts.
func (s *Service) SeedGuards(ctx context.Context, rules []domain.GuardRule) (int, error) {
	created := 0
	for _, rule := range rules {
		existing, err := s.store.GetGuard(ctx, rule.ID)
		if err != nil {
			return created, errors.Wrap(err, "failed to get guard")
		}
		if existing != nil {
			continue
		}
		if _, err := s.CreateGuard(ctx, rule); err != nil {
			return created, errors.Wrapf(err, "failed to seed guard %s", rule.ID)
		}
		created++
	}
	return created, nil
}

// EvaluateCandidate runs the current rules against a candidate without
// creating an intent.
func (s *Service) EvaluateCandidate(ctx context.Context, c domain.PaymentCandidate) (*domain.EvaluateResponse, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	rules, err := s.store.ListGuards(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load guards")
	}
	spend, err := s.spend.SpendSnapshot(ctx, c.WalletID, s.clock())
	if err != nil {
		return nil, errors.Wrap(err, "failed to load spend")
	}
	results := s.lifecycle.Evaluator().Evaluate(ctx, c, rules, spend)
	s.metrics.GuardResults(results)
	required, _ := guard.HumanApprovalRequired(c, rules)
	return &domain.EvaluateResponse{
		Allowed:               guard.Allowed(results),
		HumanApprovalRequired: required,
		Results:               results,
		SpendSnapshot:         spend,
	}, nil
}

func (s *Service) validateGuard(ctx context.Context, rule *domain.GuardRule) error {
	rule.Name = strings.TrimSpace(rule.Name)
	if rule.Name == "" {
		return errors.Wrap(domain.ErrBadParameter, "name is required")
	}
	if rule.Config == nil {
		rule.Config = domain.RuleConfig{}
	}
	return s.lifecycle.Evaluator().Validate(ctx, *rule)
}
