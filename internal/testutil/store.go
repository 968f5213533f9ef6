// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/omniagentpay/payguard/internal/domain"
	"github.com/omniagentpay/payguard/internal/repository"
)

// NewTestSQLiteStore returns an in-memory store closed at test cleanup.
func NewTestSQLiteStore(t *testing.T) *repository.SQLiteStore {
	t.Helper()

	s, err := repository.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

// Clock is a settable clock for services under test.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Executor is a scripted payment executor that counts its calls.
type Executor struct {
	mu    sync.Mutex
	calls []string
	Fn    func(ctx context.Context, in *domain.PaymentIntent) (domain.ExecutionResult, error)
}

// SucceedWith returns an executor reporting success with txHash.
func SucceedWith(txHash string) *Executor {
	return &Executor{Fn: func(context.Context, *domain.PaymentIntent) (domain.ExecutionResult, error) {
		return domain.ExecutionResult{Success: true, TxHash: txHash}, nil
	}}
}

// FailWith returns an executor reporting failure with reason.
func FailWith(reason string) *Executor {
	return &Executor{Fn: func(context.Context, *domain.PaymentIntent) (domain.ExecutionResult, error) {
		return domain.ExecutionResult{Success: false, Error: reason}, nil
	}}
}

func (e *Executor) ExecutePayment(ctx context.Context, in *domain.PaymentIntent) (domain.ExecutionResult, error) {
	e.mu.Lock()
	e.calls = append(e.calls, in.ID)
	e.mu.Unlock()
	return e.Fn(ctx, in)
}

// Calls returns the intent ids the executor was called with.
func (e *Executor) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}
