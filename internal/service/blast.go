package service

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/omniagentpay/payguard/internal/blastradius"
	"github.com/omniagentpay/payguard/internal/domain"
	"github.com/omniagentpay/payguard/internal/repository"
)

// BlastRadius estimates which agents and tools a guard change touches.
func (s *Service) BlastRadius(ctx context.Context, req domain.BlastRadiusRequest) (*domain.BlastRadius, error) {
	if req.Proposed != nil {
		proposed := *req.Proposed
		if proposed.ID == "" {
			proposed.ID = req.GuardID
		}
		if err := s.validateGuard(ctx, &proposed); err != nil {
			return nil, err
		}
		req.Proposed = &proposed
	}

	rules, err := s.store.ListGuards(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load guards")
	}
	intents, err := s.store.ListIntents(ctx, repository.IntentFilter{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to load intents")
	}
	agents, err := s.store.ListAgents(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load agents")
	}

	report, err := s.blast.Analyze(ctx, blastradius.Input{
		GuardID:          req.GuardID,
		Proposed:         req.Proposed,
		Rules:            rules,
		Intents:          intents,
		Agents:           agents,
		Now:              s.clock(),
		FallbackExposure: s.opts.DefaultDailyExposure,
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}
