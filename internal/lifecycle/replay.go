package lifecycle

import (
	"context"

	"github.com/omniagentpay/payguard/internal/domain"
	"github.com/omniagentpay/payguard/internal/guard"
)

// Replay re-evaluates the intent's candidate against rules without touching
// the intent. It reuses the spend snapshot recorded at simulation, so
// replaying against the original rules reports no differences.
func (l *Lifecycle) Replay(ctx context.Context, in *domain.PaymentIntent, rules []domain.GuardRule) domain.ReplayReport {
	spend := domain.NewSpendSnapshot(in.WalletID, in.CreatedAt, nil)
	if in.SpendSnapshot != nil {
		spend = in.SpendSnapshot.Clone()
	}

	original := append([]domain.GuardResult(nil), in.GuardResults...)
	current := l.evaluator.Evaluate(ctx, in.Candidate(), rules, spend)

	report := domain.ReplayReport{
		IntentID:        in.ID,
		OriginalAllowed: guard.Allowed(original),
		CurrentAllowed:  guard.Allowed(current),
		Original:        original,
		Current:         current,
		Differences:     []domain.GuardDiff{},
	}

	byID := make(map[string]domain.GuardResult, len(current))
	for _, r := range current {
		byID[r.GuardID] = r
	}
	seen := make(map[string]bool, len(original))
	for _, o := range original {
		seen[o.GuardID] = true
		c, ok := byID[o.GuardID]
		if !ok {
			report.Removed = append(report.Removed, o)
			continue
		}
		if c.Passed != o.Passed {
			report.Differences = append(report.Differences, domain.GuardDiff{
				GuardID:   o.GuardID,
				GuardName: c.GuardName,
				Original:  o.Passed,
				Current:   c.Passed,
				Reason:    c.Reason,
			})
		}
	}
	for _, c := range current {
		if !seen[c.GuardID] {
			report.Added = append(report.Added, c)
		}
	}
	return report
}
