package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SnapshotHorizon is how far back a spend snapshot looks. It covers the
// longest calendar period (a month) and the longest rolling window.
const SnapshotHorizon = 31 * 24 * time.Hour

// SpendEntry is one settled payment as seen by a spend provider.
type SpendEntry struct {
	Amount    decimal.Decimal
	Timestamp time.Time
}

// SpendSnapshot is the pre-fetched spend history a guard evaluation reads.
// Missing history is zero spend.
type SpendSnapshot struct {
	WalletID    string                     `json:"wallet_id"`
	AsOf        time.Time                  `json:"as_of"`
	PeriodSpend map[Period]decimal.Decimal `json:"period_spend"`
	Timestamps  []time.Time                `json:"timestamps,omitempty"`
}

// NewSpendSnapshot aggregates entries into period-to-date totals as of asOf.
// Entries after asOf or older than the horizon are ignored.
func NewSpendSnapshot(walletID string, asOf time.Time, entries []SpendEntry) SpendSnapshot {
	asOf = asOf.UTC()
	snap := SpendSnapshot{
		WalletID:    walletID,
		AsOf:        asOf,
		PeriodSpend: make(map[Period]decimal.Decimal, len(Periods)),
	}
	for _, p := range Periods {
		snap.PeriodSpend[p] = decimal.Zero
	}
	horizon := asOf.Add(-SnapshotHorizon)
	for _, e := range entries {
		ts := e.Timestamp.UTC()
		if ts.After(asOf) || ts.Before(horizon) {
			continue
		}
		snap.Timestamps = append(snap.Timestamps, ts)
		for _, p := range Periods {
			if !ts.Before(p.Start(asOf)) {
				snap.PeriodSpend[p] = snap.PeriodSpend[p].Add(e.Amount)
			}
		}
	}
	return snap
}

// PeriodToDate returns spend since the calendar start of p.
func (s SpendSnapshot) PeriodToDate(p Period) decimal.Decimal {
	if v, ok := s.PeriodSpend[p]; ok {
		return v
	}
	return decimal.Zero
}

// CountWithin counts transactions inside the rolling window ending at AsOf.
func (s SpendSnapshot) CountWithin(window time.Duration) int {
	since := s.AsOf.Add(-window)
	n := 0
	for _, ts := range s.Timestamps {
		if ts.After(since) && !ts.After(s.AsOf) {
			n++
		}
	}
	return n
}

// Clone returns a deep copy.
func (s SpendSnapshot) Clone() SpendSnapshot {
	out := s
	if s.PeriodSpend != nil {
		out.PeriodSpend = make(map[Period]decimal.Decimal, len(s.PeriodSpend))
		for k, v := range s.PeriodSpend {
			out.PeriodSpend[k] = v
		}
	}
	if s.Timestamps != nil {
		out.Timestamps = make([]time.Time, len(s.Timestamps))
		copy(out.Timestamps, s.Timestamps)
	}
	return out
}
