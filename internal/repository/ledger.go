package repository

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"github.com/omniagentpay/payguard/internal/domain"
)

// RecordTransaction appends a ledger record. Recording the same intent twice
// is a no-op.
func (s *SQLiteStore) RecordTransaction(ctx context.Context, tx *domain.Transaction) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (tx_id, intent_id, wallet_id, amount, currency, recipient, recipient_address, chain, tx_hash, fee, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(intent_id) DO NOTHING`,
		tx.ID, tx.IntentID, tx.WalletID, tx.Amount.String(), tx.Currency, tx.Recipient, tx.RecipientAddress,
		tx.Chain, tx.TxHash, tx.Fee.String(), toMillis(tx.Timestamp))
	if err != nil {
		return errors.Wrapf(err, "failed to record transaction for intent %s", tx.IntentID)
	}
	return nil
}

// ListTransactions lists ledger records matching the filter, newest first.
func (s *SQLiteStore) ListTransactions(ctx context.Context, filter TransactionFilter) ([]domain.Transaction, error) {
	qb := sq.Select("tx_id", "intent_id", "wallet_id", "amount", "currency", "recipient",
		"recipient_address", "chain", "tx_hash", "fee", "ts").
		From("transactions").
		OrderBy("ts DESC", "rowid DESC")
	if filter.WalletID != "" {
		qb = qb.Where(sq.Eq{"wallet_id": filter.WalletID})
	}
	if filter.IntentID != "" {
		qb = qb.Where(sq.Eq{"intent_id": filter.IntentID})
	}
	if !filter.Since.IsZero() {
		qb = qb.Where(sq.GtOrEq{"ts": toMillis(filter.Since)})
	}
	if filter.Limit > 0 {
		qb = qb.Limit(uint64(filter.Limit))
	}

	rows, err := s.query(ctx, qb)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		var amount, fee string
		var ts int64
		if err := rows.Scan(&tx.ID, &tx.IntentID, &tx.WalletID, &amount, &tx.Currency, &tx.Recipient,
			&tx.RecipientAddress, &tx.Chain, &tx.TxHash, &fee, &ts); err != nil {
			return nil, err
		}
		if tx.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, errors.Wrapf(err, "failed to decode amount of transaction %s", tx.ID)
		}
		if strings.TrimSpace(fee) != "" {
			if tx.Fee, err = decimal.NewFromString(fee); err != nil {
				return nil, errors.Wrapf(err, "failed to decode fee of transaction %s", tx.ID)
			}
		}
		tx.Timestamp = fromMillis(ts)
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// SpendSnapshot aggregates the wallet's settled transactions inside the
// snapshot horizon ending at asOf. A wallet without history has zero spend.
func (s *SQLiteStore) SpendSnapshot(ctx context.Context, walletID string, asOf time.Time) (domain.SpendSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT amount, ts FROM transactions WHERE wallet_id = ? AND ts >= ? AND ts <= ? ORDER BY ts`,
		walletID, toMillis(asOf.Add(-domain.SnapshotHorizon)), toMillis(asOf))
	if err != nil {
		return domain.SpendSnapshot{}, errors.Wrapf(err, "failed to load spend for wallet %s", walletID)
	}
	defer rows.Close()

	var entries []domain.SpendEntry
	for rows.Next() {
		var amount string
		var ts int64
		if err := rows.Scan(&amount, &ts); err != nil {
			return domain.SpendSnapshot{}, err
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return domain.SpendSnapshot{}, errors.Wrapf(err, "failed to decode spend amount %q", amount)
		}
		entries = append(entries, domain.SpendEntry{Amount: d, Timestamp: fromMillis(ts)})
	}
	if err := rows.Err(); err != nil {
		return domain.SpendSnapshot{}, err
	}
	return domain.NewSpendSnapshot(walletID, asOf, entries), nil
}
