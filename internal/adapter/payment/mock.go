package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/omniagentpay/payguard/internal/domain"
)

// MockExecutor simulates settlement. Transaction hashes are derived from the
// intent id, so repeated runs are reproducible.
type MockExecutor struct {
	latency time.Duration

	mu       sync.RWMutex
	failures map[string]string
}

// NewMockExecutor creates a mock executor that takes latency per payment.
func NewMockExecutor(latency time.Duration) *MockExecutor {
	return &MockExecutor{latency: latency, failures: make(map[string]string)}
}

// FailWallet makes every payment from walletID fail with reason.
func (m *MockExecutor) FailWallet(walletID, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[walletID] = reason
}

// ExecutePayment implements the payment execution contract.
func (m *MockExecutor) ExecutePayment(ctx context.Context, in *domain.PaymentIntent) (domain.ExecutionResult, error) {
	if m.latency > 0 {
		timer := time.NewTimer(m.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return domain.ExecutionResult{}, ctx.Err()
		case <-timer.C:
		}
	}

	m.mu.RLock()
	reason, fail := m.failures[in.WalletID]
	m.mu.RUnlock()
	if fail {
		return domain.ExecutionResult{Success: false, Error: reason}, nil
	}

	sum := sha256.Sum256([]byte(in.ID))
	fee := decimal.Zero
	if in.Route != nil {
		fee = in.Route.EstimatedFee
	}
	return domain.ExecutionResult{
		Success: true,
		TxHash:  "0x" + hex.EncodeToString(sum[:]),
		Fee:     &fee,
	}, nil
}
