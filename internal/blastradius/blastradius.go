// Package blastradius estimates which agents and tools a guard change touches.
// It is read-only: everything is derived from intents already on record.
package blastradius

import (
	"context"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"github.com/omniagentpay/payguard/internal/domain"
	"github.com/omniagentpay/payguard/internal/guard"
)

// Input carries everything Analyze needs.
type Input struct {
	// GuardID selects the guard under review. Empty means no specific guard.
	GuardID string
	// Proposed replaces the rule with the same id, or is appended when no
	// rule has that id.
	Proposed *domain.GuardRule

	Rules   []domain.GuardRule
	Intents []domain.PaymentIntent
	Agents  []domain.Agent

	Now              time.Time
	FallbackExposure decimal.Decimal
}

// Analyzer computes blast radius reports.
type Analyzer struct {
	evaluator *guard.Evaluator
}

// New creates an analyzer that re-evaluates intents with evaluator when a
// proposed rule change is given.
func New(evaluator *guard.Evaluator) *Analyzer {
	return &Analyzer{evaluator: evaluator}
}

// Analyze builds the report. Affected intents are:
//   - with a proposed rule: simulated intents whose aggregate decision flips
//     between the current rule set and the modified one;
//   - with only a guard id: intents whose recorded results include the guard;
//   - otherwise: every intent.
func (a *Analyzer) Analyze(ctx context.Context, in Input) (domain.BlastRadius, error) {
	guardID := in.GuardID
	if guardID == "" && in.Proposed != nil {
		guardID = in.Proposed.ID
	}

	var target *domain.GuardRule
	if in.Proposed != nil {
		p := *in.Proposed
		if p.ID == "" {
			p.ID = guardID
		}
		target = &p
	} else if guardID != "" {
		for i := range in.Rules {
			if in.Rules[i].ID == guardID {
				target = &in.Rules[i]
				break
			}
		}
		if target == nil {
			return domain.BlastRadius{}, errors.Wrapf(domain.ErrGuardNotFound, "guard %s", guardID)
		}
	}

	var affected []domain.PaymentIntent
	switch {
	case in.Proposed != nil:
		modified := replaceRule(in.Rules, *target)
		for _, intent := range in.Intents {
			if !simulated(&intent) {
				continue
			}
			spend := snapshotFor(&intent)
			c := intent.Candidate()
			before := guard.Allowed(a.evaluator.Evaluate(ctx, c, in.Rules, spend))
			after := guard.Allowed(a.evaluator.Evaluate(ctx, c, modified, spend))
			if before != after {
				affected = append(affected, intent)
			}
		}
	case guardID != "":
		for _, intent := range in.Intents {
			for _, r := range intent.GuardResults {
				if r.GuardID == guardID {
					affected = append(affected, intent)
					break
				}
			}
		}
	default:
		affected = in.Intents
	}

	return domain.BlastRadius{
		GuardID:                guardID,
		AffectedAgents:         affectedAgents(affected, in.Agents),
		AffectedTools:          toolUsage(affected),
		CurrentDailySpend:      dailySpend(in.Intents, in.Now),
		EstimatedDailyExposure: exposure(target, in.FallbackExposure),
	}, nil
}

func replaceRule(rules []domain.GuardRule, rule domain.GuardRule) []domain.GuardRule {
	out := make([]domain.GuardRule, 0, len(rules)+1)
	replaced := false
	for _, r := range rules {
		if r.ID == rule.ID {
			out = append(out, rule)
			replaced = true
			continue
		}
		out = append(out, r)
	}
	if !replaced {
		out = append(out, rule)
	}
	return out
}

func simulated(in *domain.PaymentIntent) bool {
	return in.Status != domain.IntentStatusPending && in.Status != domain.IntentStatusSimulating
}

func snapshotFor(in *domain.PaymentIntent) domain.SpendSnapshot {
	if in.SpendSnapshot != nil {
		return *in.SpendSnapshot
	}
	return domain.NewSpendSnapshot(in.WalletID, in.CreatedAt, nil)
}

func affectedAgents(intents []domain.PaymentIntent, agents []domain.Agent) []domain.AffectedAgent {
	names := make(map[string]string, len(agents))
	for _, a := range agents {
		names[a.AgentID] = a.Name
	}

	byAgent := make(map[string]*domain.AffectedAgent)
	for _, in := range intents {
		if in.AgentID == "" {
			continue
		}
		entry, ok := byAgent[in.AgentID]
		if !ok {
			entry = &domain.AffectedAgent{AgentID: in.AgentID, Name: names[in.AgentID]}
			byAgent[in.AgentID] = entry
		}
		entry.IntentIDs = append(entry.IntentIDs, in.ID)
	}

	out := make([]domain.AffectedAgent, 0, len(byAgent))
	for _, entry := range byAgent {
		sort.Strings(entry.IntentIDs)
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

func toolUsage(intents []domain.PaymentIntent) []domain.ToolUsage {
	counts := make(map[string]int)
	for _, in := range intents {
		if in.Tool != "" {
			counts[in.Tool]++
		}
	}
	out := make([]domain.ToolUsage, 0, len(counts))
	for tool, n := range counts {
		out = append(out, domain.ToolUsage{Tool: tool, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tool < out[j].Tool
	})
	return out
}

// dailySpend sums intents that succeeded since UTC midnight.
func dailySpend(intents []domain.PaymentIntent, now time.Time) decimal.Decimal {
	start := domain.PeriodDay.Start(now)
	total := decimal.Zero
	for _, in := range intents {
		if in.Status == domain.IntentStatusSucceeded && !in.UpdatedAt.Before(start) {
			total = total.Add(in.Amount)
		}
	}
	return total
}

func exposure(rule *domain.GuardRule, fallback decimal.Decimal) decimal.Decimal {
	if rule == nil {
		return fallback
	}
	key := ""
	switch rule.Kind {
	case domain.GuardKindBudget, domain.GuardKindSingleTx:
		key = domain.ConfigLimit
	case domain.GuardKindAutoApprove:
		key = domain.ConfigThreshold
	default:
		return fallback
	}
	v, ok, err := rule.Config.Decimal(key)
	if !ok || err != nil {
		return fallback
	}
	return v
}
