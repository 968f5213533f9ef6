package ledger

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniagentpay/payguard/internal/domain"
)

type recordingSink struct {
	txs []*domain.Transaction
	err error
}

func (s *recordingSink) RecordTransaction(_ context.Context, tx *domain.Transaction) error {
	s.txs = append(s.txs, tx)
	return s.err
}

func TestFanoutWritesToEverySink(t *testing.T) {
	failing := &recordingSink{err: errors.New("redis down")}
	ok := &recordingSink{}
	tx := &domain.Transaction{ID: "tx_1", IntentID: "pi_1"}

	err := Fanout{failing, nil, ok}.RecordTransaction(context.Background(), tx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
	assert.Len(t, failing.txs, 1)
	assert.Len(t, ok.txs, 1)

	assert.NoError(t, Fanout{ok}.RecordTransaction(context.Background(), tx))
}

func TestMemberEncoding(t *testing.T) {
	member := encodeMember("pi_01H|x", decimal.RequireFromString("12.34"))
	id, amount, err := decodeMember(member)
	require.NoError(t, err)
	assert.Equal(t, "pi_01H|x", id)
	assert.Equal(t, "12.34", amount.String())

	_, _, err = decodeMember("no-separator")
	assert.Error(t, err)
	_, _, err = decodeMember("pi_1|abc")
	assert.Error(t, err)
}

// TestRedisLedgerIntegration requires a running Redis at REDIS_ADDR.
func TestRedisLedgerIntegration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("Skipping Redis integration test: REDIS_ADDR not set")
	}
	l := NewRedisLedger(addr, os.Getenv("REDIS_PASSWORD"), 0)
	defer l.Close()
	ctx := context.Background()
	if err := l.Ping(ctx); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}

	wallet := "test_" + domain.NewTransactionID()
	defer l.client.Del(ctx, walletKey(wallet))

	now := time.Now().UTC().Truncate(time.Millisecond)
	for i, amount := range []int64{100, 250} {
		tx := &domain.Transaction{
			ID:        domain.NewTransactionID(),
			IntentID:  "pi_" + string(rune('a'+i)),
			WalletID:  wallet,
			Amount:    decimal.NewFromInt(amount),
			Timestamp: now.Add(-time.Duration(i) * time.Second),
		}
		require.NoError(t, l.RecordTransaction(ctx, tx))
		// Duplicate writes are ignored.
		require.NoError(t, l.RecordTransaction(ctx, tx))
	}

	snap, err := l.SpendSnapshot(ctx, wallet, now)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.CountWithin(time.Hour))
	assert.Equal(t, "350", snap.PeriodToDate(domain.PeriodMonth).String())
}
