package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"github.com/omniagentpay/payguard/internal/domain"
)

var intentColumns = []string{
	"intent_id", "amount", "currency", "recipient", "recipient_address", "wallet_id", "chain",
	"description", "agent_id", "tool", "status", "steps", "guard_results", "spend_snapshot",
	"route", "tx_hash", "fee", "approved_by", "version", "created_at", "updated_at",
	"execution_started_at",
}

type intentRow struct {
	steps         string
	guardResults  string
	spendSnapshot sql.NullString
	route         sql.NullString
	fee           sql.NullString
	startedAt     sql.NullInt64
}

func encodeIntent(in *domain.PaymentIntent) (intentRow, error) {
	var row intentRow
	steps, err := json.Marshal(in.Steps)
	if err != nil {
		return row, errors.Wrap(err, "failed to encode steps")
	}
	row.steps = string(steps)

	results := in.GuardResults
	if results == nil {
		results = []domain.GuardResult{}
	}
	guardResults, err := json.Marshal(results)
	if err != nil {
		return row, errors.Wrap(err, "failed to encode guard results")
	}
	row.guardResults = string(guardResults)

	if in.SpendSnapshot != nil {
		b, err := json.Marshal(in.SpendSnapshot)
		if err != nil {
			return row, errors.Wrap(err, "failed to encode spend snapshot")
		}
		row.spendSnapshot = sql.NullString{String: string(b), Valid: true}
	}
	if in.Route != nil {
		b, err := json.Marshal(in.Route)
		if err != nil {
			return row, errors.Wrap(err, "failed to encode route")
		}
		row.route = sql.NullString{String: string(b), Valid: true}
	}
	if in.Fee != nil {
		row.fee = sql.NullString{String: in.Fee.String(), Valid: true}
	}
	if in.ExecutionStartedAt != nil {
		row.startedAt = sql.NullInt64{Int64: toMillis(*in.ExecutionStartedAt), Valid: true}
	}
	return row, nil
}

// CreateIntent creates a new payment intent at version 1.
func (s *SQLiteStore) CreateIntent(ctx context.Context, in *domain.PaymentIntent) error {
	row, err := encodeIntent(in)
	if err != nil {
		return err
	}
	if in.Version == 0 {
		in.Version = 1
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO intents (`+strings.Join(intentColumns, ", ")+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.Amount.String(), in.Currency, in.Recipient, in.RecipientAddress, in.WalletID, in.Chain,
		in.Description, in.AgentID, in.Tool, in.Status, row.steps, row.guardResults, row.spendSnapshot,
		row.route, in.TxHash, row.fee, in.ApprovedBy, in.Version, toMillis(in.CreatedAt), toMillis(in.UpdatedAt),
		row.startedAt)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return errors.Wrapf(domain.ErrConflict, "intent %s already exists", in.ID)
	}
	return err
}

// GetIntent retrieves a payment intent by ID.
func (s *SQLiteStore) GetIntent(ctx context.Context, intentID string) (*domain.PaymentIntent, error) {
	query, args, err := sq.Select(intentColumns...).From("intents").Where(sq.Eq{"intent_id": intentID}).ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build query")
	}
	in, err := scanIntent(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return in, nil
}

// UpdateIntent persists every mutable field of the intent under an
// optimistic version check.
func (s *SQLiteStore) UpdateIntent(ctx context.Context, in *domain.PaymentIntent) error {
	row, err := encodeIntent(in)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE intents SET status = ?, steps = ?, guard_results = ?, spend_snapshot = ?, route = ?,
		 tx_hash = ?, fee = ?, approved_by = ?, execution_started_at = ?, updated_at = ?, version = version + 1
		 WHERE intent_id = ? AND version = ?`,
		in.Status, row.steps, row.guardResults, row.spendSnapshot, row.route,
		in.TxHash, row.fee, in.ApprovedBy, row.startedAt, toMillis(in.UpdatedAt),
		in.ID, in.Version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		existing, err := s.GetIntent(ctx, in.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			return errors.Wrapf(domain.ErrIntentNotFound, "intent %s", in.ID)
		}
		return errors.Wrapf(domain.ErrStaleIntent, "intent %s at version %d, stored version %d", in.ID, in.Version, existing.Version)
	}
	in.Version++
	return nil
}

// ListIntents lists intents matching the filter, newest first.
func (s *SQLiteStore) ListIntents(ctx context.Context, filter IntentFilter) ([]domain.PaymentIntent, error) {
	qb := sq.Select(intentColumns...).From("intents").OrderBy("created_at DESC", "rowid DESC")
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		qb = qb.Where(sq.Eq{"status": statuses})
	}
	if filter.WalletID != "" {
		qb = qb.Where(sq.Eq{"wallet_id": filter.WalletID})
	}
	if filter.AgentID != "" {
		qb = qb.Where(sq.Eq{"agent_id": filter.AgentID})
	}
	if !filter.UpdatedBefore.IsZero() {
		qb = qb.Where(sq.Lt{"updated_at": toMillis(filter.UpdatedBefore)})
	}
	if !filter.UpdatedSince.IsZero() {
		qb = qb.Where(sq.GtOrEq{"updated_at": toMillis(filter.UpdatedSince)})
	}
	if !filter.ExecutionStartedBefore.IsZero() {
		qb = qb.Where(sq.Lt{"execution_started_at": toMillis(filter.ExecutionStartedBefore)})
	}
	if filter.Limit > 0 {
		qb = qb.Limit(uint64(filter.Limit))
	}

	rows, err := s.query(ctx, qb)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intents []domain.PaymentIntent
	for rows.Next() {
		in, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		intents = append(intents, *in)
	}
	return intents, rows.Err()
}

func scanIntent(row rowScanner) (*domain.PaymentIntent, error) {
	var in domain.PaymentIntent
	var amount string
	var r intentRow
	var createdAt, updatedAt int64
	err := row.Scan(&in.ID, &amount, &in.Currency, &in.Recipient, &in.RecipientAddress, &in.WalletID, &in.Chain,
		&in.Description, &in.AgentID, &in.Tool, &in.Status, &r.steps, &r.guardResults, &r.spendSnapshot,
		&r.route, &in.TxHash, &r.fee, &in.ApprovedBy, &in.Version, &createdAt, &updatedAt,
		&r.startedAt)
	if err != nil {
		return nil, err
	}

	if in.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, errors.Wrapf(err, "failed to decode amount of intent %s", in.ID)
	}
	if err := json.Unmarshal([]byte(r.steps), &in.Steps); err != nil {
		return nil, errors.Wrapf(err, "failed to decode steps of intent %s", in.ID)
	}
	if err := json.Unmarshal([]byte(r.guardResults), &in.GuardResults); err != nil {
		return nil, errors.Wrapf(err, "failed to decode guard results of intent %s", in.ID)
	}
	if r.spendSnapshot.Valid {
		var snap domain.SpendSnapshot
		if err := json.Unmarshal([]byte(r.spendSnapshot.String), &snap); err != nil {
			return nil, errors.Wrapf(err, "failed to decode spend snapshot of intent %s", in.ID)
		}
		in.SpendSnapshot = &snap
	}
	if r.route.Valid {
		var route domain.Route
		if err := json.Unmarshal([]byte(r.route.String), &route); err != nil {
			return nil, errors.Wrapf(err, "failed to decode route of intent %s", in.ID)
		}
		in.Route = &route
	}
	if r.fee.Valid {
		fee, err := decimal.NewFromString(r.fee.String)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to decode fee of intent %s", in.ID)
		}
		in.Fee = &fee
	}
	if r.startedAt.Valid {
		startedAt := fromMillis(r.startedAt.Int64)
		in.ExecutionStartedAt = &startedAt
	}
	in.CreatedAt = fromMillis(createdAt)
	in.UpdatedAt = fromMillis(updatedAt)
	return &in, nil
}
