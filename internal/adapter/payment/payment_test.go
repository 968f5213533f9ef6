package payment

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniagentpay/payguard/internal/domain"
)

func testIntent() *domain.PaymentIntent {
	return &domain.PaymentIntent{
		ID:               "pi_1",
		Amount:           decimal.NewFromInt(42),
		Currency:         "USDC",
		Recipient:        "Acme",
		RecipientAddress: "0xabc",
		WalletID:         "w1",
		Chain:            "base",
	}
}

func TestHTTPExecutorSuccess(t *testing.T) {
	var got ExecuteRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payments/execute" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		assert.Equal(t, "pi_1", r.Header.Get("Idempotency-Key"))
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("failed to read body: %v", err)
		}
		if err := json.Unmarshal(body, &got); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"tx_hash":"0xabc","fee":"0.02"}`))
	}))
	defer server.Close()

	exec := NewHTTPExecutor(server.URL+"/", time.Second)
	res, err := exec.ExecutePayment(context.Background(), testIntent())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "0xabc", res.TxHash)
	require.NotNil(t, res.Fee)
	assert.Equal(t, "0.02", res.Fee.String())

	assert.Equal(t, "pi_1", got.IntentID)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(42)))
}

func TestHTTPExecutorReportedFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"insufficient gas"}`))
	}))
	defer server.Close()

	res, err := NewHTTPExecutor(server.URL, time.Second).ExecutePayment(context.Background(), testIntent())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "insufficient gas", res.Error)
}

func TestHTTPExecutorStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewHTTPExecutor(server.URL, time.Second).ExecutePayment(context.Background(), testIntent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream unavailable")
}

func TestHTTPExecutorHonoursContext(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewHTTPExecutor(server.URL, time.Minute).ExecutePayment(ctx, testIntent())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestMockExecutor(t *testing.T) {
	m := NewMockExecutor(0)
	in := testIntent()

	first, err := m.ExecutePayment(context.Background(), in)
	require.NoError(t, err)
	second, err := m.ExecutePayment(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.Len(t, first.TxHash, 66)
	assert.Equal(t, first.TxHash, second.TxHash)

	m.FailWallet("w1", "insufficient balance")
	res, err := m.ExecutePayment(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "insufficient balance", res.Error)
}

func TestMockExecutorCancelled(t *testing.T) {
	m := NewMockExecutor(time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := m.ExecutePayment(ctx, testIntent())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMockRouter(t *testing.T) {
	r := NewMockRouter()
	ctx := context.Background()

	route, err := r.Route(ctx, domain.PaymentCandidate{Chain: "base", RecipientAddress: "0xabc"})
	require.NoError(t, err)
	assert.Equal(t, "direct", route.Type)
	assert.Equal(t, "base", route.DestinationChain)

	route, err = r.Route(ctx, domain.PaymentCandidate{Chain: "Ethereum", RecipientAddress: "solana:9xQe"})
	require.NoError(t, err)
	assert.Equal(t, "bridge", route.Type)
	assert.Equal(t, "ethereum", route.SourceChain)
	assert.Equal(t, "solana", route.DestinationChain)

	route, err = r.Route(ctx, domain.PaymentCandidate{RecipientAddress: "https://shop.example.com/pay"})
	require.NoError(t, err)
	assert.Equal(t, DefaultChain, route.SourceChain)

	_, err = r.Route(ctx, domain.PaymentCandidate{Chain: "dogechain"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported chain")
}
