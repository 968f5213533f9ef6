package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniagentpay/payguard/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, LedgerSQLite, cfg.LedgerBackend)
	assert.Equal(t, 30*time.Second, cfg.ExecutionTimeout)
	assert.Equal(t, 24*time.Hour, cfg.ApprovalTimeout)
	assert.Equal(t, 5*time.Second, cfg.SweepInterval)
	assert.Equal(t, time.Minute, cfg.SimulationTimeout)
	assert.Equal(t, 200*time.Millisecond, cfg.MockExecutorLatency)
	assert.True(t, cfg.DefaultDailyExposure.Equal(decimal.NewFromInt(10000)))
	assert.Empty(t, cfg.ExecutorURL)
	assert.Equal(t, 30*time.Second, cfg.WSPingInterval)
	assert.Equal(t, int64(4096), cfg.WSMaxMessageSize)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("LEDGER_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("EXECUTION_TIMEOUT", "5s")
	t.Setenv("APPROVAL_TIMEOUT", "1h")
	t.Setenv("DEFAULT_DAILY_EXPOSURE", "2500.50")
	t.Setenv("EXECUTOR_URL", "http://executor:8081")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, LedgerRedis, cfg.LedgerBackend)
	assert.Equal(t, "redis:6380", cfg.RedisAddr)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, 5*time.Second, cfg.ExecutionTimeout)
	assert.Equal(t, time.Hour, cfg.ApprovalTimeout)
	assert.Equal(t, "2500.5", cfg.DefaultDailyExposure.String())
	assert.Equal(t, "http://executor:8081", cfg.ExecutorURL)
}

func TestLoadRejectsUnknownLedgerBackend(t *testing.T) {
	t.Setenv("LEDGER_BACKEND", "postgres")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LEDGER_BACKEND")
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	t.Setenv("EXECUTION_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
}

func TestNewLoggerFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn", "json")

	logger.Info("hidden")
	logger.Warn("shown", "intent_id", "pi_1")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"intent_id":"pi_1"`)
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `
guards:
  - id: g_daily
    name: Daily budget
    kind: budget
    config:
      limit: 1000
      period: day
  - id: g_block
    kind: blocklist
    enabled: false
    config:
      addresses:
        - "0xdead*"
  - id: g_auto
    name: Auto approve
    kind: auto_approve
    config:
      threshold: 25.5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	require.Len(t, rules, 3)

	assert.Equal(t, "g_daily", rules[0].ID)
	assert.True(t, rules[0].Enabled)
	assert.Equal(t, domain.GuardKindBudget, rules[0].Kind)
	limit, ok, err := rules[0].Config.Decimal(domain.ConfigLimit)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1000", limit.String())

	assert.Equal(t, "g_block", rules[1].Name)
	assert.False(t, rules[1].Enabled)
	addrs, _, err := rules[1].Config.Strings(domain.ConfigAddresses)
	require.NoError(t, err)
	assert.Equal(t, []string{"0xdead*"}, addrs)

	threshold, _, err := rules[2].Config.Decimal(domain.ConfigThreshold)
	require.NoError(t, err)
	assert.Equal(t, "25.5", threshold.String())
}

func TestParseRulesRejectsDuplicateIDs(t *testing.T) {
	_, err := ParseRules([]byte(`
guards:
  - id: g1
    kind: budget
  - id: g1
    kind: single_tx
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate id")
}

func TestParseRulesRequiresID(t *testing.T) {
	_, err := ParseRules([]byte("guards:\n  - kind: budget\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id is required")
}

func TestLoadRulesMissingFile(t *testing.T) {
	_, err := LoadRules(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
