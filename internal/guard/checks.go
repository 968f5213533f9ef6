package guard

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"github.com/omniagentpay/payguard/internal/domain"
)

type budgetConfig struct {
	limit  decimal.Decimal
	period domain.Period
}

func parseBudget(cfg domain.RuleConfig) (budgetConfig, error) {
	limit, err := requireDecimal(cfg, domain.ConfigLimit)
	if err != nil {
		return budgetConfig{}, err
	}
	if limit.IsNegative() {
		return budgetConfig{}, errors.Newf("%s must not be negative", domain.ConfigLimit)
	}
	period, err := requirePeriod(cfg)
	if err != nil {
		return budgetConfig{}, err
	}
	return budgetConfig{limit: limit, period: period}, nil
}

// checkBudget fails when period-to-date spend plus the amount exceeds the
// limit. Reaching the limit exactly is allowed.
func checkBudget(_ context.Context, _ *Evaluator, rule domain.GuardRule, c domain.PaymentCandidate, spend domain.SpendSnapshot) (bool, string, error) {
	cfg, err := parseBudget(rule.Config)
	if err != nil {
		return false, "", err
	}
	spent := spend.PeriodToDate(cfg.period)
	total := spent.Add(c.Amount)
	if total.GreaterThan(cfg.limit) {
		return false, fmt.Sprintf("budget exceeded: %s spent this %s plus %s would exceed the %s per %s limit",
			domain.FormatAmount(spent), cfg.period, domain.FormatAmount(c.Amount),
			domain.FormatAmount(cfg.limit), cfg.period), nil
	}
	return true, fmt.Sprintf("within budget: %s of %s per %s",
		domain.FormatAmount(total), domain.FormatAmount(cfg.limit), cfg.period), nil
}

type singleTxConfig struct {
	max *decimal.Decimal
	min *decimal.Decimal
}

func parseSingleTx(cfg domain.RuleConfig) (singleTxConfig, error) {
	var out singleTxConfig
	if limit, ok, err := cfg.Decimal(domain.ConfigLimit); err != nil {
		return out, err
	} else if ok {
		out.max = &limit
	}
	if minAmount, ok, err := cfg.Decimal(domain.ConfigMinAmount); err != nil {
		return out, err
	} else if ok {
		out.min = &minAmount
	}
	if out.max == nil && out.min == nil {
		return out, errors.Newf("%s or %s is required", domain.ConfigLimit, domain.ConfigMinAmount)
	}
	return out, nil
}

func checkSingleTx(_ context.Context, _ *Evaluator, rule domain.GuardRule, c domain.PaymentCandidate, _ domain.SpendSnapshot) (bool, string, error) {
	cfg, err := parseSingleTx(rule.Config)
	if err != nil {
		return false, "", err
	}
	if cfg.max != nil && c.Amount.GreaterThan(*cfg.max) {
		return false, fmt.Sprintf("amount %s exceeds single transaction limit of %s",
			domain.FormatAmount(c.Amount), domain.FormatAmount(*cfg.max)), nil
	}
	if cfg.min != nil && c.Amount.LessThan(*cfg.min) {
		return false, fmt.Sprintf("amount %s is below single transaction minimum of %s",
			domain.FormatAmount(c.Amount), domain.FormatAmount(*cfg.min)), nil
	}
	return true, "within single transaction bounds", nil
}

type rateLimitConfig struct {
	limit  int64
	period domain.Period
}

func parseRateLimit(cfg domain.RuleConfig) (rateLimitConfig, error) {
	limit, err := requireDecimal(cfg, domain.ConfigLimit)
	if err != nil {
		return rateLimitConfig{}, err
	}
	if !limit.IsInteger() || limit.IsNegative() {
		return rateLimitConfig{}, errors.Newf("%s must be a non-negative whole number, got %s", domain.ConfigLimit, limit)
	}
	period, err := requirePeriod(cfg)
	if err != nil {
		return rateLimitConfig{}, err
	}
	return rateLimitConfig{limit: limit.IntPart(), period: period}, nil
}

// checkRateLimit counts transactions in the rolling window ending now and
// fails when this one would push the count past the limit.
func checkRateLimit(_ context.Context, _ *Evaluator, rule domain.GuardRule, _ domain.PaymentCandidate, spend domain.SpendSnapshot) (bool, string, error) {
	cfg, err := parseRateLimit(rule.Config)
	if err != nil {
		return false, "", err
	}
	count := int64(spend.CountWithin(cfg.period.Window()))
	if count+1 > cfg.limit {
		return false, fmt.Sprintf("rate limit exceeded: %d transactions in the last %s, limit is %d per %s",
			count, cfg.period, cfg.limit, cfg.period), nil
	}
	return true, fmt.Sprintf("%d of %d transactions per %s", count+1, cfg.limit, cfg.period), nil
}

func checkAllowlist(_ context.Context, _ *Evaluator, rule domain.GuardRule, c domain.PaymentCandidate, _ domain.SpendSnapshot) (bool, string, error) {
	m, err := newAddressMatcher(rule.Config)
	if err != nil {
		return false, "", err
	}
	target := Target(c)
	if !m.Match(target) {
		return false, fmt.Sprintf("recipient %s is not on the allowlist", target), nil
	}
	return true, fmt.Sprintf("recipient %s is allowlisted", target), nil
}

func checkBlocklist(_ context.Context, _ *Evaluator, rule domain.GuardRule, c domain.PaymentCandidate, _ domain.SpendSnapshot) (bool, string, error) {
	m, err := newAddressMatcher(rule.Config)
	if err != nil {
		return false, "", err
	}
	target := Target(c)
	if m.Match(target) {
		return false, fmt.Sprintf("recipient %s is blocklisted", target), nil
	}
	return true, "", nil
}

type autoApproveConfig struct {
	threshold decimal.Decimal
}

func parseAutoApprove(cfg domain.RuleConfig) (autoApproveConfig, error) {
	threshold, err := requireDecimal(cfg, domain.ConfigThreshold)
	if err != nil {
		return autoApproveConfig{}, err
	}
	return autoApproveConfig{threshold: threshold}, nil
}

// checkAutoApprove never blocks. Its result only records whether the amount
// can skip human approval.
func checkAutoApprove(_ context.Context, _ *Evaluator, rule domain.GuardRule, c domain.PaymentCandidate, _ domain.SpendSnapshot) (bool, string, error) {
	cfg, err := parseAutoApprove(rule.Config)
	if err != nil {
		return false, "", err
	}
	if c.Amount.GreaterThan(cfg.threshold) {
		return true, fmt.Sprintf("amount %s exceeds auto-approve threshold %s; human approval required",
			domain.FormatAmount(c.Amount), domain.FormatAmount(cfg.threshold)), nil
	}
	return true, fmt.Sprintf("amount %s within auto-approve threshold %s",
		domain.FormatAmount(c.Amount), domain.FormatAmount(cfg.threshold)), nil
}
