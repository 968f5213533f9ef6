// Package ledger provides ledger sinks and spend providers beyond the SQLite
// repository.
package ledger

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/omniagentpay/payguard/internal/domain"
)

const keyPrefix = "payguard:spend:"

// recordSpendScript adds a spend entry and trims the wallet's history to the
// snapshot horizon atomically.
// KEYS[1] = wallet key
// ARGV[1] = timestamp (unix ms, used as score)
// ARGV[2] = member ("<intent id>|<amount>")
// ARGV[3] = oldest score to keep
// ARGV[4] = key ttl (ms)
var recordSpendScript = redis.NewScript(`
local key = KEYS[1]
local added = redis.call("ZADD", key, "NX", tonumber(ARGV[1]), ARGV[2])
redis.call("ZREMRANGEBYSCORE", key, "-inf", "(" .. ARGV[3])
redis.call("PEXPIRE", key, tonumber(ARGV[4]))
return added
`)

// RedisLedger keeps a rolling spend history per wallet in Redis sorted sets.
// It serves both as a ledger sink and as a spend provider.
type RedisLedger struct {
	client *redis.Client
}

// NewRedisLedger creates a ledger backed by the Redis server at addr.
func NewRedisLedger(addr, password string, db int) *RedisLedger {
	return NewRedisLedgerWithClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}))
}

// NewRedisLedgerWithClient wraps an existing client.
func NewRedisLedgerWithClient(client *redis.Client) *RedisLedger {
	return &RedisLedger{client: client}
}

// Ping checks connectivity.
func (l *RedisLedger) Ping(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "could not check redis connectivity")
	}
	return nil
}

// Close closes the underlying client.
func (l *RedisLedger) Close() error {
	return l.client.Close()
}

// RecordTransaction adds the transaction to the wallet's spend history.
// Recording the same intent twice is a no-op.
func (l *RedisLedger) RecordTransaction(ctx context.Context, tx *domain.Transaction) error {
	ts := tx.Timestamp.UnixMilli()
	oldest := ts - domain.SnapshotHorizon.Milliseconds()
	ttl := (domain.SnapshotHorizon + 24*time.Hour).Milliseconds()
	err := recordSpendScript.Run(ctx, l.client, []string{walletKey(tx.WalletID)},
		ts, encodeMember(tx.IntentID, tx.Amount), oldest, ttl).Err()
	if err != nil {
		return errors.Wrapf(err, "redis ledger: failed to record transaction for intent %s", tx.IntentID)
	}
	return nil
}

// SpendSnapshot reads the wallet's history inside the snapshot horizon.
func (l *RedisLedger) SpendSnapshot(ctx context.Context, walletID string, asOf time.Time) (domain.SpendSnapshot, error) {
	res, err := l.client.ZRangeByScoreWithScores(ctx, walletKey(walletID), &redis.ZRangeBy{
		Min: strconv.FormatInt(asOf.Add(-domain.SnapshotHorizon).UnixMilli(), 10),
		Max: strconv.FormatInt(asOf.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return domain.SpendSnapshot{}, errors.Wrapf(err, "redis ledger: failed to load spend for wallet %s", walletID)
	}

	entries := make([]domain.SpendEntry, 0, len(res))
	for _, z := range res {
		member, ok := z.Member.(string)
		if !ok {
			return domain.SpendSnapshot{}, errors.Newf("redis ledger: unexpected member type %T", z.Member)
		}
		_, amount, err := decodeMember(member)
		if err != nil {
			return domain.SpendSnapshot{}, err
		}
		entries = append(entries, domain.SpendEntry{
			Amount:    amount,
			Timestamp: time.UnixMilli(int64(z.Score)).UTC(),
		})
	}
	return domain.NewSpendSnapshot(walletID, asOf, entries), nil
}

func walletKey(walletID string) string {
	return keyPrefix + walletID
}

func encodeMember(intentID string, amount decimal.Decimal) string {
	return fmt.Sprintf("%s|%s", intentID, amount.String())
}

func decodeMember(member string) (string, decimal.Decimal, error) {
	i := strings.LastIndexByte(member, '|')
	if i < 0 {
		return "", decimal.Zero, errors.Newf("redis ledger: malformed spend entry %q", member)
	}
	amount, err := decimal.NewFromString(member[i+1:])
	if err != nil {
		return "", decimal.Zero, errors.Wrapf(err, "redis ledger: malformed amount in %q", member)
	}
	return member[:i], amount, nil
}
