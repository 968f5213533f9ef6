package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniagentpay/payguard/internal/domain"
	"github.com/omniagentpay/payguard/internal/guard"
)

func scenarioRules(singleLimit int64) []domain.GuardRule {
	return []domain.GuardRule{
		{ID: "single", Name: "Single tx", Enabled: true, Kind: domain.GuardKindSingleTx, Config: domain.RuleConfig{"limit": singleLimit}},
		{ID: "daily", Name: "Daily budget", Enabled: true, Kind: domain.GuardKindBudget, Config: domain.RuleConfig{"limit": 3000, "period": "day"}},
	}
}

func TestReplayAfterLimitRaised(t *testing.T) {
	l := New(guard.NewEvaluator())
	in := newTestIntent(t, 2500)

	_, err := l.Simulate(context.Background(), in, scenarioRules(2000), emptySpend(), testNow)
	require.NoError(t, err)
	require.Equal(t, domain.IntentStatusBlocked, in.Status)
	before := in.Clone()

	report := l.Replay(context.Background(), in, scenarioRules(3000))
	require.Len(t, report.Differences, 1)
	assert.Equal(t, "single", report.Differences[0].GuardID)
	assert.False(t, report.Differences[0].Original)
	assert.True(t, report.Differences[0].Current)
	assert.False(t, report.OriginalAllowed)
	assert.True(t, report.CurrentAllowed)
	assert.Empty(t, report.Added)
	assert.Empty(t, report.Removed)

	assert.Equal(t, before, in)
}

func TestReplayWithSameRulesHasNoDifferences(t *testing.T) {
	l := New(guard.NewEvaluator())
	rules := append(scenarioRules(2000), domain.GuardRule{
		ID: "rate", Name: "Rate", Enabled: true, Kind: domain.GuardKindRateLimit,
		Config: domain.RuleConfig{"limit": 2, "period": "hour"},
	})
	spend := domain.NewSpendSnapshot("w1", testNow, []domain.SpendEntry{
		{Amount: decimal.NewFromInt(2000), Timestamp: testNow.Add(-30 * time.Minute)},
	})
	in := newTestIntent(t, 900)

	_, err := l.Simulate(context.Background(), in, rules, spend, testNow)
	require.NoError(t, err)

	report := l.Replay(context.Background(), in, rules)
	assert.Empty(t, report.Differences)
	assert.Equal(t, report.Original, report.Current)
	assert.Equal(t, report.OriginalAllowed, report.CurrentAllowed)
}

func TestReplayReportsAddedAndRemovedGuards(t *testing.T) {
	l := New(guard.NewEvaluator())
	in := newTestIntent(t, 100)
	_, err := l.Simulate(context.Background(), in, scenarioRules(2000), emptySpend(), testNow)
	require.NoError(t, err)

	current := []domain.GuardRule{
		scenarioRules(2000)[0],
		{ID: "block", Name: "Blocklist", Enabled: true, Kind: domain.GuardKindBlocklist, Config: domain.RuleConfig{"addresses": []string{"0xabc"}}},
	}
	report := l.Replay(context.Background(), in, current)
	require.Len(t, report.Removed, 1)
	assert.Equal(t, "daily", report.Removed[0].GuardID)
	require.Len(t, report.Added, 1)
	assert.Equal(t, "block", report.Added[0].GuardID)
	assert.Empty(t, report.Differences)
	assert.False(t, report.CurrentAllowed)
}
