// Package payment provides the payment execution and routing collaborators.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"github.com/omniagentpay/payguard/internal/domain"
)

// ExecuteRequest is the body sent to the payment execution service.
type ExecuteRequest struct {
	IntentID         string          `json:"intent_id"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Recipient        string          `json:"recipient"`
	RecipientAddress string          `json:"recipient_address"`
	WalletID         string          `json:"wallet_id"`
	Chain            string          `json:"chain"`
	Route            *domain.Route   `json:"route,omitempty"`
}

// HTTPExecutor calls a remote payment execution service.
type HTTPExecutor struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPExecutor creates an executor for the service at baseURL.
func NewHTTPExecutor(baseURL string, timeout time.Duration) *HTTPExecutor {
	return &HTTPExecutor{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ExecutePayment posts the intent to {base}/v1/payments/execute. A non-2xx
// status is an error; a decoded {success: false} is a failed payment.
func (e *HTTPExecutor) ExecutePayment(ctx context.Context, in *domain.PaymentIntent) (domain.ExecutionResult, error) {
	body, err := json.Marshal(ExecuteRequest{
		IntentID:         in.ID,
		Amount:           in.Amount,
		Currency:         in.Currency,
		Recipient:        in.Recipient,
		RecipientAddress: in.RecipientAddress,
		WalletID:         in.WalletID,
		Chain:            in.Chain,
		Route:            in.Route,
	})
	if err != nil {
		return domain.ExecutionResult{}, errors.Wrap(err, "failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/payments/execute", bytes.NewReader(body))
	if err != nil {
		return domain.ExecutionResult{}, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", in.ID)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return domain.ExecutionResult{}, errors.Wrap(err, "failed to call payment executor")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.ExecutionResult{}, errors.Wrap(err, "failed to read executor response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.ExecutionResult{}, errors.Newf("payment executor returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result domain.ExecutionResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return domain.ExecutionResult{}, errors.Wrap(err, "failed to decode executor response")
	}
	if result.Success && result.TxHash == "" {
		return domain.ExecutionResult{}, errors.New("payment executor reported success without a tx hash")
	}
	return result, nil
}
