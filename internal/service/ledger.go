package service

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/omniagentpay/payguard/internal/domain"
	"github.com/omniagentpay/payguard/internal/repository"
)

// ListTransactions lists ledger records, newest first.
func (s *Service) ListTransactions(ctx context.Context, filter repository.TransactionFilter) ([]domain.Transaction, error) {
	txs, err := s.store.ListTransactions(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list transactions")
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	return txs, nil
}

// WalletSpend reports period-to-date spend for a wallet, read from the
// same provider guard evaluation uses.
func (s *Service) WalletSpend(ctx context.Context, walletID string, period domain.Period) (*domain.WalletSpendResponse, error) {
	if walletID == "" {
		return nil, errors.Wrap(domain.ErrBadParameter, "wallet_id is required")
	}
	if period == "" {
		period = domain.PeriodDay
	}
	if _, err := domain.ParsePeriod(string(period)); err != nil {
		return nil, errors.Mark(err, domain.ErrBadParameter)
	}
	now := s.clock()
	snap, err := s.spend.SpendSnapshot(ctx, walletID, now)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load spend")
	}
	start := period.Start(now)
	count := 0
	for _, ts := range snap.Timestamps {
		if !ts.Before(start) {
			count++
		}
	}
	return &domain.WalletSpendResponse{
		WalletID: walletID,
		Period:   period,
		Spent:    snap.PeriodToDate(period),
		Count:    count,
	}, nil
}
