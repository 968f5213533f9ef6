package guard

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniagentpay/payguard/internal/domain"
)

// Wednesday, mid-day UTC.
var testNow = time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)

func newRule(id string, kind domain.GuardKind, cfg domain.RuleConfig) domain.GuardRule {
	return domain.GuardRule{ID: id, Name: id, Enabled: true, Kind: kind, Config: cfg}
}

func candidate(amount int64) domain.PaymentCandidate {
	return domain.PaymentCandidate{
		Amount:           decimal.NewFromInt(amount),
		Currency:         "USDC",
		Recipient:        "Acme",
		RecipientAddress: "0xabc",
		WalletID:         "w1",
		Chain:            "base",
	}
}

func emptySpend() domain.SpendSnapshot {
	return domain.NewSpendSnapshot("w1", testNow, nil)
}

func spendOf(entries ...domain.SpendEntry) domain.SpendSnapshot {
	return domain.NewSpendSnapshot("w1", testNow, entries)
}

func entry(amount int64, ago time.Duration) domain.SpendEntry {
	return domain.SpendEntry{Amount: decimal.NewFromInt(amount), Timestamp: testNow.Add(-ago)}
}

func TestEvaluateSingleTxBlocksAboveLimit(t *testing.T) {
	e := NewEvaluator()
	rules := []domain.GuardRule{
		newRule("single", domain.GuardKindSingleTx, domain.RuleConfig{"limit": 2000}),
		newRule("daily", domain.GuardKindBudget, domain.RuleConfig{"limit": 3000, "period": "day"}),
	}

	results := e.Evaluate(context.Background(), candidate(2500), rules, emptySpend())
	require.Len(t, results, 2)

	assert.Equal(t, "single", results[0].GuardID)
	assert.False(t, results[0].Passed)
	assert.Contains(t, results[0].Reason, "$2500")
	assert.Contains(t, results[0].Reason, "$2000")

	assert.Equal(t, "daily", results[1].GuardID)
	assert.True(t, results[1].Passed)

	assert.False(t, Allowed(results))
	assert.Len(t, Failed(results), 1)
}

func TestEvaluateSingleTxMinimum(t *testing.T) {
	e := NewEvaluator()
	rules := []domain.GuardRule{
		newRule("bounds", domain.GuardKindSingleTx, domain.RuleConfig{"limit": 100, "min_amount": 5}),
	}

	results := e.Evaluate(context.Background(), candidate(2), rules, emptySpend())
	require.Len(t, results, 1)
	assert.False(t, results[0].Passed)
	assert.Contains(t, results[0].Reason, "below")

	results = e.Evaluate(context.Background(), candidate(5), rules, emptySpend())
	assert.True(t, results[0].Passed)
}

func TestEvaluateBudgetBoundary(t *testing.T) {
	e := NewEvaluator()
	rules := []domain.GuardRule{
		newRule("daily", domain.GuardKindBudget, domain.RuleConfig{"limit": 1000, "period": "day"}),
	}
	spend := spendOf(entry(900, 2*time.Hour))

	results := e.Evaluate(context.Background(), candidate(100), rules, spend)
	require.Len(t, results, 1)
	assert.True(t, results[0].Passed, results[0].Reason)

	results = e.Evaluate(context.Background(), candidate(101), rules, spend)
	require.Len(t, results, 1)
	assert.False(t, results[0].Passed)
	assert.Contains(t, results[0].Reason, "$1000")
	assert.Contains(t, results[0].Reason, "day")
}

func TestEvaluateBudgetIgnoresEarlierPeriods(t *testing.T) {
	e := NewEvaluator()
	rules := []domain.GuardRule{
		newRule("daily", domain.GuardKindBudget, domain.RuleConfig{"limit": "1000", "period": "day"}),
		newRule("monthly", domain.GuardKindBudget, domain.RuleConfig{"limit": "1000", "period": "month"}),
	}
	// Yesterday's spend counts toward the month, not the day.
	spend := spendOf(entry(950, 24*time.Hour))

	results := e.Evaluate(context.Background(), candidate(100), rules, spend)
	require.Len(t, results, 2)
	assert.True(t, results[0].Passed)
	assert.False(t, results[1].Passed)
}

func TestEvaluateBadConfigFailsClosed(t *testing.T) {
	e := NewEvaluator()
	rules := []domain.GuardRule{
		newRule("broken", domain.GuardKindBudget, domain.RuleConfig{"limit": "lots", "period": "day"}),
		newRule("single", domain.GuardKindSingleTx, domain.RuleConfig{"limit": 2000}),
	}

	results := e.Evaluate(context.Background(), candidate(10), rules, emptySpend())
	require.Len(t, results, 2)

	assert.False(t, results[0].Passed)
	assert.True(t, strings.HasPrefix(results[0].Reason, "invalid guard configuration"), results[0].Reason)
	assert.True(t, results[1].Passed)
	assert.False(t, Allowed(results))
}

func TestEvaluateMissingConfigFailsClosed(t *testing.T) {
	e := NewEvaluator()
	rules := []domain.GuardRule{
		newRule("budget", domain.GuardKindBudget, domain.RuleConfig{"limit": 10}),
		newRule("rate", domain.GuardKindRateLimit, domain.RuleConfig{"period": "hour"}),
		newRule("allow", domain.GuardKindAllowlist, domain.RuleConfig{}),
		newRule("auto", domain.GuardKindAutoApprove, nil),
		newRule("mystery", domain.GuardKind("velocity"), domain.RuleConfig{}),
	}

	results := e.Evaluate(context.Background(), candidate(1), rules, emptySpend())
	require.Len(t, results, len(rules))
	for _, r := range results {
		assert.False(t, r.Passed, r.GuardID)
		assert.Contains(t, r.Reason, "invalid guard configuration", r.GuardID)
	}
}

func TestEvaluateSkipsDisabledRules(t *testing.T) {
	e := NewEvaluator()
	blocking := newRule("single", domain.GuardKindSingleTx, domain.RuleConfig{"limit": 1})
	blocking.Enabled = false
	rules := []domain.GuardRule{
		blocking,
		newRule("daily", domain.GuardKindBudget, domain.RuleConfig{"limit": 3000, "period": "day"}),
	}

	results := e.Evaluate(context.Background(), candidate(500), rules, emptySpend())
	require.Len(t, results, 1)
	assert.Equal(t, "daily", results[0].GuardID)
	assert.True(t, Allowed(results))
}

func TestEvaluateIsRepeatable(t *testing.T) {
	e := NewEvaluator()
	rules := []domain.GuardRule{
		newRule("single", domain.GuardKindSingleTx, domain.RuleConfig{"limit": 2000}),
		newRule("daily", domain.GuardKindBudget, domain.RuleConfig{"limit": 1000, "period": "day"}),
		newRule("rate", domain.GuardKindRateLimit, domain.RuleConfig{"limit": 3, "period": "hour"}),
		newRule("auto", domain.GuardKindAutoApprove, domain.RuleConfig{"threshold": 100}),
	}
	spend := spendOf(entry(400, time.Hour), entry(200, 10*time.Minute))
	c := candidate(300)

	first := e.Evaluate(context.Background(), c, rules, spend)
	second := e.Evaluate(context.Background(), c, rules, spend)
	assert.Equal(t, first, second)
	assert.Equal(t, domain.RuleConfig{"limit": 2000}, rules[0].Config)
	assert.Equal(t, decimal.NewFromInt(600).String(), spend.PeriodToDate(domain.PeriodDay).String())
}

func TestEvaluateRateLimitRollingWindow(t *testing.T) {
	e := NewEvaluator()
	rules := []domain.GuardRule{
		newRule("rate", domain.GuardKindRateLimit, domain.RuleConfig{"limit": 2, "period": "hour"}),
	}

	spend := spendOf(entry(1, 10*time.Minute), entry(1, 2*time.Hour))
	results := e.Evaluate(context.Background(), candidate(1), rules, spend)
	require.Len(t, results, 1)
	assert.True(t, results[0].Passed, results[0].Reason)

	spend = spendOf(entry(1, 10*time.Minute), entry(1, 50*time.Minute))
	results = e.Evaluate(context.Background(), candidate(1), rules, spend)
	assert.False(t, results[0].Passed)
	assert.Contains(t, results[0].Reason, "rate limit exceeded")
}

func TestEvaluateRateLimitRejectsFractionalLimit(t *testing.T) {
	e := NewEvaluator()
	rules := []domain.GuardRule{
		newRule("rate", domain.GuardKindRateLimit, domain.RuleConfig{"limit": 2.5, "period": "hour"}),
	}
	results := e.Evaluate(context.Background(), candidate(1), rules, emptySpend())
	assert.False(t, results[0].Passed)
	assert.Contains(t, results[0].Reason, "whole number")
}

func TestEvaluateAllowlist(t *testing.T) {
	e := NewEvaluator()
	rules := []domain.GuardRule{
		newRule("allow", domain.GuardKindAllowlist, domain.RuleConfig{
			"addresses": []any{"0xABC", "*.example.com"},
		}),
	}

	tests := []struct {
		name    string
		address string
		passed  bool
	}{
		{"exact match ignores case", "0xabc", true},
		{"url host matches glob", "https://api.example.com/pay", true},
		{"unknown address", "0xdef", false},
		{"other host", "https://evil.test/pay", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := candidate(10)
			c.RecipientAddress = tt.address
			results := e.Evaluate(context.Background(), c, rules, emptySpend())
			require.Len(t, results, 1)
			assert.Equal(t, tt.passed, results[0].Passed, results[0].Reason)
		})
	}
}

func TestEvaluateBlocklistPatterns(t *testing.T) {
	e := NewEvaluator()
	rules := []domain.GuardRule{
		newRule("block", domain.GuardKindBlocklist, domain.RuleConfig{
			"addresses": []string{"0xbad"},
			"patterns":  []string{"^0xdead"},
		}),
	}

	c := candidate(10)
	c.RecipientAddress = "0xDEADbeef"
	results := e.Evaluate(context.Background(), c, rules, emptySpend())
	assert.False(t, results[0].Passed)
	assert.Contains(t, results[0].Reason, "blocklisted")

	c.RecipientAddress = "0xBAD"
	results = e.Evaluate(context.Background(), c, rules, emptySpend())
	assert.False(t, results[0].Passed)

	c.RecipientAddress = "0xgood"
	results = e.Evaluate(context.Background(), c, rules, emptySpend())
	assert.True(t, results[0].Passed)
}

func TestEvaluateBlocklistFallsBackToRecipient(t *testing.T) {
	e := NewEvaluator()
	rules := []domain.GuardRule{
		newRule("block", domain.GuardKindBlocklist, domain.RuleConfig{"addresses": []string{"mallory"}}),
	}
	c := candidate(10)
	c.RecipientAddress = ""
	c.Recipient = "Mallory"

	results := e.Evaluate(context.Background(), c, rules, emptySpend())
	assert.False(t, results[0].Passed)
}

func TestEvaluateAutoApproveNeverBlocks(t *testing.T) {
	e := NewEvaluator()
	rules := []domain.GuardRule{
		newRule("auto", domain.GuardKindAutoApprove, domain.RuleConfig{"threshold": 100}),
	}

	results := e.Evaluate(context.Background(), candidate(150), rules, emptySpend())
	require.Len(t, results, 1)
	assert.True(t, results[0].Passed)
	assert.Contains(t, results[0].Reason, "human approval required")

	required, reason := HumanApprovalRequired(candidate(150), rules)
	assert.True(t, required)
	assert.Contains(t, reason, "$100")

	required, _ = HumanApprovalRequired(candidate(50), rules)
	assert.False(t, required)

	required, _ = HumanApprovalRequired(candidate(100), rules)
	assert.False(t, required)
}

func TestHumanApprovalIgnoresDisabledRules(t *testing.T) {
	rule := newRule("auto", domain.GuardKindAutoApprove, domain.RuleConfig{"threshold": 100})
	rule.Enabled = false

	required, _ := HumanApprovalRequired(candidate(150), []domain.GuardRule{rule})
	assert.False(t, required)
}

const allowSmallPayments = `
package payguard

import rego.v1

default allow := false

allow if input.amount <= 500
`

const toolDecision = `
package payguard

import rego.v1

decision = {"allow": false, "reason": sprintf("tool %s may not pay", [input.tool])} if input.tool == "shell"

decision = {"allow": true, "reason": "tool permitted"} if input.tool != "shell"
`

const undefinedPolicy = `
package payguard

import rego.v1

allow if input.amount > 1000
`

func TestEvaluatePolicyBoolean(t *testing.T) {
	e := NewEvaluator()
	rules := []domain.GuardRule{
		newRule("policy", domain.GuardKindPolicy, domain.RuleConfig{"module": allowSmallPayments}),
	}

	results := e.Evaluate(context.Background(), candidate(100), rules, emptySpend())
	require.Len(t, results, 1)
	assert.True(t, results[0].Passed, results[0].Reason)

	results = e.Evaluate(context.Background(), candidate(600), rules, emptySpend())
	assert.False(t, results[0].Passed)
	assert.Equal(t, "denied by policy", results[0].Reason)
}

func TestEvaluatePolicyObject(t *testing.T) {
	e := NewEvaluator()
	rules := []domain.GuardRule{
		newRule("policy", domain.GuardKindPolicy, domain.RuleConfig{
			"module": toolDecision,
			"query":  "data.payguard.decision",
		}),
	}

	c := candidate(10)
	c.Tool = "shell"
	results := e.Evaluate(context.Background(), c, rules, emptySpend())
	assert.False(t, results[0].Passed)
	assert.Equal(t, "tool shell may not pay", results[0].Reason)

	c.Tool = "pay_invoice"
	results = e.Evaluate(context.Background(), c, rules, emptySpend())
	assert.True(t, results[0].Passed)
	assert.Equal(t, "tool permitted", results[0].Reason)
}

func TestEvaluatePolicyUndefinedBlocks(t *testing.T) {
	e := NewEvaluator()
	rules := []domain.GuardRule{
		newRule("policy", domain.GuardKindPolicy, domain.RuleConfig{"module": undefinedPolicy}),
	}

	results := e.Evaluate(context.Background(), candidate(10), rules, emptySpend())
	assert.False(t, results[0].Passed)
	assert.Equal(t, "policy produced no decision", results[0].Reason)
}

func TestValidate(t *testing.T) {
	e := NewEvaluator()
	ctx := context.Background()

	valid := []domain.GuardRule{
		newRule("a", domain.GuardKindBudget, domain.RuleConfig{"limit": 10, "period": "week"}),
		newRule("b", domain.GuardKindSingleTx, domain.RuleConfig{"min_amount": 1}),
		newRule("c", domain.GuardKindRateLimit, domain.RuleConfig{"limit": 5, "period": "day"}),
		newRule("d", domain.GuardKindAllowlist, domain.RuleConfig{"patterns": []any{"^0x"}}),
		newRule("e", domain.GuardKindAutoApprove, domain.RuleConfig{"threshold": "99.5"}),
		newRule("f", domain.GuardKindPolicy, domain.RuleConfig{"module": allowSmallPayments}),
	}
	for _, r := range valid {
		assert.NoError(t, e.Validate(ctx, r), r.ID)
	}

	invalid := []domain.GuardRule{
		newRule("a", domain.GuardKindBudget, domain.RuleConfig{"limit": 10, "period": "fortnight"}),
		newRule("b", domain.GuardKindSingleTx, domain.RuleConfig{}),
		newRule("c", domain.GuardKindBlocklist, domain.RuleConfig{"patterns": []any{"("}}),
		newRule("d", domain.GuardKindPolicy, domain.RuleConfig{"module": "not rego at all"}),
		newRule("e", domain.GuardKind("velocity"), nil),
	}
	for _, r := range invalid {
		err := e.Validate(ctx, r)
		require.Error(t, err, r.ID)
		assert.True(t, errors.Is(err, domain.ErrInvalidGuardConfig), r.ID)
	}
}

func TestTarget(t *testing.T) {
	assert.Equal(t, "0xabc", Target(domain.PaymentCandidate{RecipientAddress: " 0xabc "}))
	assert.Equal(t, "shop.example.com", Target(domain.PaymentCandidate{RecipientAddress: "https://shop.example.com/checkout"}))
	assert.Equal(t, "Acme", Target(domain.PaymentCandidate{Recipient: "Acme"}))
}
