package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniagentpay/payguard/internal/config"
	"github.com/omniagentpay/payguard/internal/domain"
	"github.com/omniagentpay/payguard/internal/service"
	"github.com/omniagentpay/payguard/internal/testutil"
	transport "github.com/omniagentpay/payguard/internal/transport/http"
)

const testRules = `
guards:
  - id: g_daily
    name: Daily budget
    kind: budget
    config:
      limit: 1000
      period: day
  - id: g_block
    kind: blocklist
    config:
      addresses:
        - "0xdead*"
  - id: g_auto
    kind: auto_approve
    config:
      threshold: 100
`

func writeRules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "payguard "+Version)
}

func TestRulesCheck(t *testing.T) {
	out, err := runCLI(t, "rules", "check", writeRules(t, testRules))
	require.NoError(t, err)
	assert.Contains(t, out, "OK    g_daily")
	assert.Contains(t, out, "3 guards valid")
}

func TestRulesCheckInvalid(t *testing.T) {
	path := writeRules(t, `
guards:
  - id: g_daily
    kind: budget
    config:
      period: day
  - id: g_tx
    kind: single_tx
    config:
      limit: 50
`)
	out, err := runCLI(t, "rules", "check", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 guards are invalid")
	assert.Contains(t, out, "FAIL  g_daily")
	assert.Contains(t, out, "OK    g_tx")
}

func TestEvaluateOffline(t *testing.T) {
	path := writeRules(t, testRules)

	out, err := runCLI(t, "evaluate", "--rules", path, "--amount", "600",
		"--wallet", "w1", "--recipient-address", "0xabc", "--spent-today", "500")
	require.NoError(t, err)

	var resp domain.EvaluateResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.False(t, resp.Allowed)
	assert.True(t, resp.HumanApprovalRequired)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "g_daily", resp.Results[0].GuardID)
	assert.False(t, resp.Results[0].Passed)

	out, err = runCLI(t, "evaluate", "--rules", path, "--amount", "50",
		"--wallet", "w1", "--recipient-address", "0xabc", "--spent-today=")
	require.NoError(t, err)
	resp = domain.EvaluateResponse{}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Allowed)
	assert.False(t, resp.HumanApprovalRequired)
}

func TestEvaluateRejectsBadAmount(t *testing.T) {
	_, err := runCLI(t, "evaluate", "--rules", writeRules(t, testRules), "--amount", "lots",
		"--wallet", "w1", "--recipient-address", "0xabc", "--spent-today=")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --amount")
}

func TestIntentCommands(t *testing.T) {
	db := testutil.NewTestSQLiteStore(t)
	svc := service.New(service.Dependencies{Store: db, Executor: testutil.SucceedWith("0xcafe")})
	srv := httptest.NewServer(transport.NewServer(svc, nil, nil))
	t.Cleanup(srv.Close)

	out, err := runCLI(t, "intent", "create", "--server", srv.URL,
		"--amount", "42", "--wallet", "w1", "--recipient-address", "0xabc")
	require.NoError(t, err)
	var created domain.IntentResponse
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	require.NotNil(t, created.PaymentIntent)
	assert.Equal(t, domain.IntentStatusPending, created.Status)
	assert.True(t, created.Amount.Equal(decimal.NewFromInt(42)))

	_, err = runCLI(t, "intent", "simulate", "--server", srv.URL, created.ID)
	require.NoError(t, err)

	out, err = runCLI(t, "intent", "execute", "--server", srv.URL, created.ID)
	require.NoError(t, err)
	var executed domain.IntentResponse
	require.NoError(t, json.Unmarshal([]byte(out), &executed))
	assert.Equal(t, domain.IntentStatusSucceeded, executed.Status)
	assert.Equal(t, "0xcafe", executed.TxHash)

	out, err = runCLI(t, "intent", "list", "--server", srv.URL, "--status", "succeeded")
	require.NoError(t, err)
	assert.Contains(t, out, created.ID)

	out, err = runCLI(t, "intent", "events", "--server", srv.URL, created.ID)
	require.NoError(t, err)
	assert.Contains(t, out, string(domain.EventTypeExecutionSucceeded))

	_, err = runCLI(t, "intent", "get", "--server", srv.URL, "pi_missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "intent not found")
}

func TestNewAppSeedsGuards(t *testing.T) {
	cfg := &config.Config{
		HTTPPort:             8080,
		DatabaseURL:          filepath.Join(t.TempDir(), "payguard.db"),
		RulesFile:            writeRules(t, testRules),
		LedgerBackend:        config.LedgerSQLite,
		DefaultDailyExposure: decimal.NewFromInt(10000),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := newApp(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	guards, err := a.service.ListGuards(context.Background())
	require.NoError(t, err)
	assert.Len(t, guards, 3)

	// Seeding again leaves existing guards alone.
	rules, err := config.LoadRules(cfg.RulesFile)
	require.NoError(t, err)
	n, err := a.service.SeedGuards(context.Background(), rules)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFinalEvent(t *testing.T) {
	assert.True(t, finalEvent(domain.EventTypeExecutionSucceeded))
	assert.True(t, finalEvent(domain.EventTypeBlocked))
	assert.False(t, finalEvent(domain.EventTypeApprovalRequired))
	assert.False(t, finalEvent(domain.EventTypeExecutionStarted))
}
