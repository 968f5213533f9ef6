package service

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniagentpay/payguard/internal/domain"
	"github.com/omniagentpay/payguard/internal/lifecycle"
	"github.com/omniagentpay/payguard/internal/testutil"
)

func TestSweepExpiresPendingApproval(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testutil.SucceedWith("0x1"))
	f.addGuard(t, "g_auto", domain.GuardKindAutoApprove, domain.RuleConfig{domain.ConfigThreshold: 100})

	human := f.createIntent(t, 500)
	_, err := f.svc.SimulateIntent(ctx, human.ID)
	require.NoError(t, err)
	auto := f.createIntent(t, 50)
	_, err = f.svc.SimulateIntent(ctx, auto.ID)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	f.svc.sweepTimeouts(ctx)
	got, err := f.svc.GetIntent(ctx, human.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentStatusAwaitingApproval, got.Status, "not yet overdue")

	f.clock.Advance(24 * time.Hour)
	f.svc.sweepTimeouts(ctx)

	got, err = f.svc.GetIntent(ctx, human.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentStatusFailed, got.Status)
	assert.Equal(t, domain.ApprovalStateDenied, got.ApprovalState())
	assert.Equal(t, "approval timed out after 24h0m0s", got.Step(domain.StepApproval).Details)
	assert.Contains(t, eventTypes(t, f, human.ID), domain.EventTypeApprovalExpired)

	// Auto-approved intents are not waiting on anyone.
	got, err = f.svc.GetIntent(ctx, auto.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentStatusAwaitingApproval, got.Status)
}

func TestSweepLeavesApprovedIntentExecutable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testutil.SucceedWith("0x1"))
	f.addGuard(t, "g_auto", domain.GuardKindAutoApprove, domain.RuleConfig{domain.ConfigThreshold: 100})

	in := f.createIntent(t, 500)
	_, err := f.svc.SimulateIntent(ctx, in.ID)
	require.NoError(t, err)
	_, err = f.svc.ApproveIntent(ctx, in.ID, domain.ApprovalDecisionRequest{DecidedBy: "alice"})
	require.NoError(t, err)

	f.clock.Advance(31 * time.Second)
	f.svc.sweepTimeouts(ctx)

	got, err := f.svc.GetIntent(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentStatusExecuting, got.Status)
	assert.Nil(t, got.ExecutionStartedAt)

	got, err = f.svc.ExecuteIntent(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentStatusSucceeded, got.Status)
	assert.Equal(t, "0x1", got.TxHash)
	assert.Equal(t, []string{in.ID}, f.executor.Calls())
}

func TestSweepFailsStaleExecution(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testutil.SucceedWith("0x1"))

	in := f.createIntent(t, 10)
	_, err := f.svc.SimulateIntent(ctx, in.ID)
	require.NoError(t, err)

	// The executor call started and the process went away before the result
	// was saved.
	stuck, err := f.svc.GetIntent(ctx, in.ID)
	require.NoError(t, err)
	require.NoError(t, lifecycle.BeginExecution(stuck, f.svc.clock()))
	require.NoError(t, f.svc.save(ctx, stuck))

	f.svc.sweepTimeouts(ctx)
	got, err := f.svc.GetIntent(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentStatusExecuting, got.Status, "not yet overdue")

	f.clock.Advance(2 * time.Second)
	f.svc.sweepTimeouts(ctx)

	got, err = f.svc.GetIntent(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentStatusFailed, got.Status)
	assert.Equal(t, "execution timed out after 1s", got.Step(domain.StepExecution).Details)
	assert.Contains(t, eventTypes(t, f, in.ID), domain.EventTypeExecutionFailed)
	assert.Empty(t, f.executor.Calls())
}

func TestExecuteRefusesStartedExecution(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testutil.SucceedWith("0x1"))

	in := f.createIntent(t, 10)
	_, err := f.svc.SimulateIntent(ctx, in.ID)
	require.NoError(t, err)
	stuck, err := f.svc.GetIntent(ctx, in.ID)
	require.NoError(t, err)
	require.NoError(t, lifecycle.BeginExecution(stuck, f.svc.clock()))
	require.NoError(t, f.svc.save(ctx, stuck))

	_, err = f.svc.ExecuteIntent(ctx, in.ID)
	assert.True(t, errors.Is(err, domain.ErrInvalidState))
	assert.Empty(t, f.executor.Calls())
}

func TestSweepFailsStaleSimulation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testutil.SucceedWith("0x1"))

	in := f.createIntent(t, 10)
	stuck, err := f.svc.GetIntent(ctx, in.ID)
	require.NoError(t, err)
	require.NoError(t, lifecycle.BeginSimulation(stuck, f.svc.clock()))
	require.NoError(t, f.svc.save(ctx, stuck))

	f.clock.Advance(30 * time.Second)
	f.svc.sweepTimeouts(ctx)
	got, err := f.svc.GetIntent(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentStatusSimulating, got.Status)

	f.clock.Advance(time.Minute)
	f.svc.sweepTimeouts(ctx)

	got, err = f.svc.GetIntent(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentStatusFailed, got.Status)
	assert.Equal(t, domain.StepStatusFailed, got.Step(domain.StepSimulation).Status)
	assert.Equal(t, "simulation did not complete within 1m0s", got.Step(domain.StepSimulation).Details)
	assert.Contains(t, eventTypes(t, f, in.ID), domain.EventTypeSimulationFailed)
}

func TestSweepSkipsLockedIntent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testutil.SucceedWith("0x1"))

	in := f.createIntent(t, 10)
	_, err := f.svc.SimulateIntent(ctx, in.ID)
	require.NoError(t, err)
	_, err = f.svc.ApproveIntent(ctx, in.ID, domain.ApprovalDecisionRequest{})
	require.NoError(t, err)

	release, ok := f.svc.locks.tryAcquire(in.ID)
	require.True(t, ok)
	f.clock.Advance(time.Minute)
	f.svc.sweepTimeouts(ctx)
	release()

	got, err := f.svc.GetIntent(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentStatusExecuting, got.Status)
}

func TestRunTimeoutMonitorStopsOnCancel(t *testing.T) {
	f := newFixture(t, testutil.SucceedWith("0x1"), func(d *Dependencies) {
		d.Options.SweepInterval = time.Millisecond
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.svc.RunTimeoutMonitor(ctx)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}

func TestIntentLocks(t *testing.T) {
	locks := newIntentLocks()

	release, err := locks.acquire(context.Background(), "pi_1")
	require.NoError(t, err)

	_, ok := locks.tryAcquire("pi_1")
	assert.False(t, ok)

	other, ok := locks.tryAcquire("pi_2")
	require.True(t, ok)
	other()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = locks.acquire(ctx, "pi_1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	again, ok := locks.tryAcquire("pi_1")
	require.True(t, ok)
	again()
	assert.Empty(t, locks.locks)
}
