// Package repository defines the storage interface and its SQLite implementation.
package repository

import (
	"context"
	"time"

	"github.com/omniagentpay/payguard/internal/domain"
)

// Store defines the interface for data persistence.
// Getters return (nil, nil) when the record does not exist.
type Store interface {
	// Guard operations
	CreateGuard(ctx context.Context, rule *domain.GuardRule) error
	GetGuard(ctx context.Context, guardID string) (*domain.GuardRule, error)
	ListGuards(ctx context.Context) ([]domain.GuardRule, error)
	UpdateGuard(ctx context.Context, rule *domain.GuardRule) error
	DeleteGuard(ctx context.Context, guardID string) error

	// Intent operations
	CreateIntent(ctx context.Context, intent *domain.PaymentIntent) error
	GetIntent(ctx context.Context, intentID string) (*domain.PaymentIntent, error)
	// UpdateIntent writes the intent if its version still matches the stored
	// one, then bumps intent.Version. A mismatch returns domain.ErrStaleIntent.
	UpdateIntent(ctx context.Context, intent *domain.PaymentIntent) error
	ListIntents(ctx context.Context, filter IntentFilter) ([]domain.PaymentIntent, error)

	// Event operations
	CreateEvent(ctx context.Context, event *domain.Event) error
	GetEvents(ctx context.Context, filter EventFilter) ([]domain.Event, error)

	// Agent operations
	RegisterAgent(ctx context.Context, agent *domain.Agent) error
	GetAgent(ctx context.Context, agentID string) (*domain.Agent, error)
	ListAgents(ctx context.Context) ([]domain.Agent, error)

	// Ledger operations
	RecordTransaction(ctx context.Context, tx *domain.Transaction) error
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]domain.Transaction, error)
	SpendSnapshot(ctx context.Context, walletID string, asOf time.Time) (domain.SpendSnapshot, error)

	// Lifecycle
	Close() error
}

// IntentFilter provides filtering options for intents. Results are newest first.
type IntentFilter struct {
	Statuses      []domain.IntentStatus
	WalletID      string
	AgentID       string
	UpdatedBefore time.Time
	UpdatedSince  time.Time
	// ExecutionStartedBefore keeps intents whose executor call began before
	// this time. Intents that never started executing are excluded.
	ExecutionStartedBefore time.Time
	Limit                  int
}

// EventFilter provides filtering options for events.
type EventFilter struct {
	IntentID string
	AfterTs  int64
	Types    []string
	Limit    int
}

// TransactionFilter provides filtering options for ledger transactions.
// Results are newest first.
type TransactionFilter struct {
	WalletID string
	IntentID string
	Since    time.Time
	Limit    int
}
