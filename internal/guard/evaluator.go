// Package guard evaluates guard rules against payment candidates.
//
// Evaluation is pure with respect to its inputs: it never mutates the rules,
// the candidate or the spend snapshot, and a rule that cannot be evaluated
// yields a failing result instead of aborting the batch.
package guard

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"github.com/omniagentpay/payguard/internal/domain"
)

type checkFunc func(ctx context.Context, e *Evaluator, rule domain.GuardRule, c domain.PaymentCandidate, spend domain.SpendSnapshot) (passed bool, reason string, err error)

// Evaluator runs guard rules. The zero value is not usable; use NewEvaluator.
type Evaluator struct {
	policies *policyCache
	checks   map[domain.GuardKind]checkFunc
}

// NewEvaluator creates an evaluator with every built-in guard kind registered.
func NewEvaluator() *Evaluator {
	return &Evaluator{
		policies: newPolicyCache(),
		checks: map[domain.GuardKind]checkFunc{
			domain.GuardKindBudget:      checkBudget,
			domain.GuardKindSingleTx:    checkSingleTx,
			domain.GuardKindRateLimit:   checkRateLimit,
			domain.GuardKindAllowlist:   checkAllowlist,
			domain.GuardKindBlocklist:   checkBlocklist,
			domain.GuardKindAutoApprove: checkAutoApprove,
			domain.GuardKindPolicy:      checkPolicy,
		},
	}
}

// Evaluate returns one result per enabled rule, in rule order.
func (e *Evaluator) Evaluate(ctx context.Context, c domain.PaymentCandidate, rules []domain.GuardRule, spend domain.SpendSnapshot) []domain.GuardResult {
	results := make([]domain.GuardResult, 0, len(rules))
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		results = append(results, e.evaluateRule(ctx, rule, c, spend))
	}
	return results
}

func (e *Evaluator) evaluateRule(ctx context.Context, rule domain.GuardRule, c domain.PaymentCandidate, spend domain.SpendSnapshot) (res domain.GuardResult) {
	res = domain.GuardResult{
		GuardID:   rule.ID,
		GuardName: rule.Name,
		Kind:      rule.Kind,
	}
	defer func() {
		if r := recover(); r != nil {
			res.Passed = false
			res.Reason = fmt.Sprintf("guard evaluation failed: %v", r)
		}
	}()

	check, ok := e.checks[rule.Kind]
	if !ok {
		res.Reason = configErrorReason(errors.Newf("unknown guard kind %q", rule.Kind))
		return res
	}

	passed, reason, err := check(ctx, e, rule, c, spend)
	if err != nil {
		res.Reason = configErrorReason(err)
		return res
	}
	res.Passed = passed
	res.Reason = reason
	return res
}

// Validate reports whether a rule's config is complete and well formed.
func (e *Evaluator) Validate(ctx context.Context, rule domain.GuardRule) error {
	if !rule.Kind.Valid() {
		return errors.Mark(errors.Newf("%s: unknown guard kind %q", domain.ErrInvalidGuardConfig.Error(), rule.Kind), domain.ErrInvalidGuardConfig)
	}
	var err error
	switch rule.Kind {
	case domain.GuardKindBudget:
		_, err = parseBudget(rule.Config)
	case domain.GuardKindSingleTx:
		_, err = parseSingleTx(rule.Config)
	case domain.GuardKindRateLimit:
		_, err = parseRateLimit(rule.Config)
	case domain.GuardKindAllowlist, domain.GuardKindBlocklist:
		_, err = newAddressMatcher(rule.Config)
	case domain.GuardKindAutoApprove:
		_, err = parseAutoApprove(rule.Config)
	case domain.GuardKindPolicy:
		_, err = e.policies.prepare(ctx, rule.Config)
	}
	if err != nil {
		return errors.Mark(errors.Wrap(err, domain.ErrInvalidGuardConfig.Error()), domain.ErrInvalidGuardConfig)
	}
	return nil
}

// Allowed reports whether every result passed.
func Allowed(results []domain.GuardResult) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// Failed returns the failing results.
func Failed(results []domain.GuardResult) []domain.GuardResult {
	var out []domain.GuardResult
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// HumanApprovalRequired reports whether any enabled auto_approve rule has a
// threshold below the candidate amount. Rules with unreadable thresholds are
// skipped here; Evaluate already reports them as failing.
func HumanApprovalRequired(c domain.PaymentCandidate, rules []domain.GuardRule) (bool, string) {
	for _, rule := range rules {
		if !rule.Enabled || rule.Kind != domain.GuardKindAutoApprove {
			continue
		}
		cfg, err := parseAutoApprove(rule.Config)
		if err != nil {
			continue
		}
		if c.Amount.GreaterThan(cfg.threshold) {
			return true, fmt.Sprintf("amount %s exceeds auto-approve threshold %s",
				domain.FormatAmount(c.Amount), domain.FormatAmount(cfg.threshold))
		}
	}
	return false, ""
}

func configErrorReason(err error) string {
	return fmt.Sprintf("%s: %v", domain.ErrInvalidGuardConfig.Error(), err)
}

func requireDecimal(cfg domain.RuleConfig, key string) (decimal.Decimal, error) {
	d, ok, err := cfg.Decimal(key)
	if err != nil {
		return decimal.Zero, err
	}
	if !ok {
		return decimal.Zero, errors.Newf("%s is required", key)
	}
	return d, nil
}

func requirePeriod(cfg domain.RuleConfig) (domain.Period, error) {
	p, ok, err := cfg.Period(domain.ConfigPeriod)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.Newf("%s is required", domain.ConfigPeriod)
	}
	return p, nil
}
