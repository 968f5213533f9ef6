// Package service orchestrates guard evaluation and the intent lifecycle
// with persistence, locking and the payment collaborators.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/omniagentpay/payguard/internal/blastradius"
	"github.com/omniagentpay/payguard/internal/domain"
	"github.com/omniagentpay/payguard/internal/guard"
	"github.com/omniagentpay/payguard/internal/lifecycle"
	"github.com/omniagentpay/payguard/internal/metrics"
	"github.com/omniagentpay/payguard/internal/repository"
)

const (
	defaultExecutionTimeout  = 30 * time.Second
	defaultApprovalTimeout   = 24 * time.Hour
	defaultSweepInterval     = 5 * time.Second
	defaultSimulationTimeout = time.Minute
)

// PaymentExecutor performs the payment for an approved intent.
type PaymentExecutor interface {
	ExecutePayment(ctx context.Context, in *domain.PaymentIntent) (domain.ExecutionResult, error)
}

// Router picks a transfer route during simulation.
type Router interface {
	Route(ctx context.Context, c domain.PaymentCandidate) (*domain.Route, error)
}

// LedgerSink receives a transaction for every successful execution.
type LedgerSink interface {
	RecordTransaction(ctx context.Context, tx *domain.Transaction) error
}

// SpendProvider returns the spend history guard evaluation reads. A wallet
// without history must yield zero spend, not an error.
type SpendProvider interface {
	SpendSnapshot(ctx context.Context, walletID string, asOf time.Time) (domain.SpendSnapshot, error)
}

// EventPublisher receives every event after it has been stored.
type EventPublisher interface {
	Publish(ev domain.Event)
}

// Options tunes timeouts and reporting defaults. Zero values pick defaults.
type Options struct {
	ExecutionTimeout time.Duration
	ApprovalTimeout  time.Duration
	SweepInterval    time.Duration
	// SimulationTimeout bounds how long an intent may stay simulating before
	// the sweeper fails it.
	SimulationTimeout    time.Duration
	DefaultDailyExposure decimal.Decimal
}

// Dependencies are the collaborators of a Service. Store and Executor are
// required. Spend and Ledger default to Store; Router may be nil.
type Dependencies struct {
	Store    repository.Store
	Spend    SpendProvider
	Ledger   LedgerSink
	Executor PaymentExecutor
	Router   Router
	Events   EventPublisher
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Options  Options
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Service coordinates guard evaluation, the intent lifecycle and persistence.
type Service struct {
	store     repository.Store
	spend     SpendProvider
	ledger    LedgerSink
	executor  PaymentExecutor
	router    Router
	events    EventPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	opts      Options
	now       func() time.Time
	lifecycle *lifecycle.Lifecycle
	blast     *blastradius.Analyzer
	locks     *intentLocks
}

// New builds a Service from its dependencies, filling in default options.
func New(deps Dependencies) *Service {
	s := &Service{
		store:    deps.Store,
		spend:    deps.Spend,
		ledger:   deps.Ledger,
		executor: deps.Executor,
		router:   deps.Router,
		events:   deps.Events,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		opts:     deps.Options,
		now:      deps.Now,
		locks:    newIntentLocks(),
	}
	if s.spend == nil {
		s.spend = deps.Store
	}
	if s.ledger == nil {
		s.ledger = deps.Store
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.opts.ExecutionTimeout <= 0 {
		s.opts.ExecutionTimeout = defaultExecutionTimeout
	}
	if s.opts.ApprovalTimeout <= 0 {
		s.opts.ApprovalTimeout = defaultApprovalTimeout
	}
	if s.opts.SweepInterval <= 0 {
		s.opts.SweepInterval = defaultSweepInterval
	}
	if s.opts.SimulationTimeout <= 0 {
		s.opts.SimulationTimeout = defaultSimulationTimeout
	}

	evaluator := guard.NewEvaluator()
	s.lifecycle = lifecycle.New(evaluator)
	s.blast = blastradius.New(evaluator)
	return s
}

// clock returns the current time at the storage precision, so that an
// intent read back from the store compares equal to the one just written.
func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}
