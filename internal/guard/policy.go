package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/open-policy-agent/opa/rego"

	"github.com/omniagentpay/payguard/internal/domain"
)

// DefaultPolicyQuery is evaluated when a policy guard does not set a query.
const DefaultPolicyQuery = "data.payguard.allow"

// policyCache keeps prepared Rego queries keyed by query and module source,
// so a policy guard is compiled once and then reused for every evaluation.
type policyCache struct {
	mu      sync.RWMutex
	queries map[string]rego.PreparedEvalQuery
}

func newPolicyCache() *policyCache {
	return &policyCache{queries: make(map[string]rego.PreparedEvalQuery)}
}

func (p *policyCache) prepare(ctx context.Context, cfg domain.RuleConfig) (rego.PreparedEvalQuery, error) {
	module, ok, err := cfg.Text(domain.ConfigModule)
	if err != nil {
		return rego.PreparedEvalQuery{}, err
	}
	if !ok || strings.TrimSpace(module) == "" {
		return rego.PreparedEvalQuery{}, errors.Newf("%s is required", domain.ConfigModule)
	}
	query, _, err := cfg.Text(domain.ConfigQuery)
	if err != nil {
		return rego.PreparedEvalQuery{}, err
	}
	if strings.TrimSpace(query) == "" {
		query = DefaultPolicyQuery
	}

	key := query + "\x00" + module
	p.mu.RLock()
	prepared, ok := p.queries[key]
	p.mu.RUnlock()
	if ok {
		return prepared, nil
	}

	r := rego.New(
		rego.Query(query),
		rego.Module("guard.rego", module),
	)
	prepared, err = r.PrepareForEval(ctx)
	if err != nil {
		return rego.PreparedEvalQuery{}, errors.Wrap(err, "failed to prepare rego")
	}

	p.mu.Lock()
	p.queries[key] = prepared
	p.mu.Unlock()
	return prepared, nil
}

// checkPolicy evaluates a Rego module. The query must yield either a boolean
// or an object {allow: bool, reason: string}. An undefined result blocks.
func checkPolicy(ctx context.Context, e *Evaluator, rule domain.GuardRule, c domain.PaymentCandidate, spend domain.SpendSnapshot) (bool, string, error) {
	query, err := e.policies.prepare(ctx, rule.Config)
	if err != nil {
		return false, "", err
	}

	results, err := query.Eval(ctx, rego.EvalInput(policyInput(c, spend)))
	if err != nil {
		return false, "", errors.Wrap(err, "failed to evaluate policy")
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, "policy produced no decision", nil
	}

	switch v := results[0].Expressions[0].Value.(type) {
	case bool:
		if !v {
			return false, "denied by policy", nil
		}
		return true, "allowed by policy", nil
	case map[string]interface{}:
		allow, isBool := v["allow"].(bool)
		if !isBool {
			return false, "", errors.Newf("policy result field allow must be a boolean, got %T", v["allow"])
		}
		reason, _ := v["reason"].(string)
		if reason == "" {
			if allow {
				reason = "allowed by policy"
			} else {
				reason = "denied by policy"
			}
		}
		return allow, reason, nil
	default:
		return false, "", errors.Newf("policy result must be a boolean or an object, got %T", v)
	}
}

// policyInput is the document a policy module sees as input. Amounts are
// passed as JSON numbers so Rego comparisons work on them directly.
func policyInput(c domain.PaymentCandidate, spend domain.SpendSnapshot) map[string]interface{} {
	spent := make(map[string]interface{}, len(domain.Periods))
	counts := make(map[string]interface{}, len(domain.Periods))
	for _, p := range domain.Periods {
		spent[string(p)] = json.Number(spend.PeriodToDate(p).String())
		counts[string(p)] = json.Number(fmt.Sprint(spend.CountWithin(p.Window())))
	}
	return map[string]interface{}{
		"amount":            json.Number(c.Amount.String()),
		"currency":          c.Currency,
		"recipient":         c.Recipient,
		"recipient_address": c.RecipientAddress,
		"target":            Target(c),
		"wallet_id":         c.WalletID,
		"chain":             c.Chain,
		"agent_id":          c.AgentID,
		"tool":              c.Tool,
		"spend":             spent,
		"tx_count":          counts,
	}
}
