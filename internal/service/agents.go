package service

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/omniagentpay/payguard/internal/domain"
)

// RegisterAgent registers or updates an agent.
func (s *Service) RegisterAgent(ctx context.Context, agent domain.Agent) (*domain.Agent, error) {
	agent.Name = strings.TrimSpace(agent.Name)
	if agent.Name == "" {
		return nil, errors.Wrap(domain.ErrBadParameter, "name is required")
	}
	if agent.AgentID == "" {
		agent.AgentID = domain.NewAgentID()
	}
	existing, err := s.store.GetAgent(ctx, agent.AgentID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get agent")
	}
	if existing != nil {
		agent.CreatedAt = existing.CreatedAt
	} else {
		agent.CreatedAt = s.clock()
	}
	if err := s.store.RegisterAgent(ctx, &agent); err != nil {
		return nil, errors.Wrap(err, "failed to register agent")
	}
	return &agent, nil
}

// GetAgent returns an agent or domain.ErrAgentNotFound.
func (s *Service) GetAgent(ctx context.Context, agentID string) (*domain.Agent, error) {
	agent, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get agent")
	}
	if agent == nil {
		return nil, errors.Wrapf(domain.ErrAgentNotFound, "agent %s", agentID)
	}
	return agent, nil
}

// ListAgents lists all agents.
func (s *Service) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	agents, err := s.store.ListAgents(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list agents")
	}
	if agents == nil {
		agents = []domain.Agent{}
	}
	return agents, nil
}
