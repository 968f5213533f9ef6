package client

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniagentpay/payguard/internal/domain"
	"github.com/omniagentpay/payguard/internal/service"
	"github.com/omniagentpay/payguard/internal/testutil"
	transport "github.com/omniagentpay/payguard/internal/transport/http"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	db := testutil.NewTestSQLiteStore(t)
	svc := service.New(service.Dependencies{Store: db, Executor: testutil.SucceedWith("0xfeed")})
	srv := httptest.NewServer(transport.NewServer(svc, nil, nil))
	t.Cleanup(srv.Close)
	return New(srv.URL, 5*time.Second)
}

func TestClientLifecycle(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	in, err := c.CreateIntent(ctx, domain.CreateIntentRequest{
		Amount: decimal.NewFromInt(42), RecipientAddress: "0xabc", WalletID: "w1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.IntentStatusPending, in.Status)

	in, err = c.SimulateIntent(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalStateAutoApproved, in.ApprovalState)

	in, err = c.ExecuteIntent(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentStatusSucceeded, in.Status)
	assert.Equal(t, "0xfeed", in.TxHash)

	list, err := c.ListIntents(ctx, "succeeded", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)

	events, err := c.GetIntentEvents(ctx, in.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, events)

	report, err := c.ReplayIntent(ctx, in.ID)
	require.NoError(t, err)
	assert.Empty(t, report.Differences)
}

func TestClientAPIError(t *testing.T) {
	c := newTestClient(t)

	_, err := c.GetIntent(context.Background(), "pi_missing")
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 404, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "intent not found")
}
