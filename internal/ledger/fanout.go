package ledger

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/omniagentpay/payguard/internal/domain"
)

// Sink receives a Transaction for every successful execution.
type Sink interface {
	RecordTransaction(ctx context.Context, tx *domain.Transaction) error
}

// Fanout writes every transaction to all of its sinks. A failing sink does
// not stop the others; the errors are combined.
type Fanout []Sink

// RecordTransaction implements Sink.
func (f Fanout) RecordTransaction(ctx context.Context, tx *domain.Transaction) error {
	var combined error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.RecordTransaction(ctx, tx); err != nil {
			combined = errors.CombineErrors(combined, err)
		}
	}
	return combined
}
