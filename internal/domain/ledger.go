package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is the ledger record emitted for every successful execution.
type Transaction struct {
	ID               string          `json:"id"`
	IntentID         string          `json:"intent_id"`
	WalletID         string          `json:"wallet_id"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Recipient        string          `json:"recipient"`
	RecipientAddress string          `json:"recipient_address"`
	Chain            string          `json:"chain"`
	TxHash           string          `json:"tx_hash"`
	Fee              decimal.Decimal `json:"fee"`
	Timestamp        time.Time       `json:"timestamp"`
}

// Agent is an AI agent allowed to propose payments from a wallet.
type Agent struct {
	AgentID   string    `json:"agent_id"`
	Name      string    `json:"name"`
	WalletID  string    `json:"wallet_id,omitempty"`
	Tools     []string  `json:"tools,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Event represents an intent timeline event.
type Event struct {
	EventID  string          `json:"event_id"`
	IntentID string          `json:"intent_id"`
	Ts       int64           `json:"ts"` // Unix milliseconds
	Type     EventType       `json:"type"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// ExecutionResult is what the payment execution service reports for one
// intent. Success false carries the upstream error text.
type ExecutionResult struct {
	Success bool             `json:"success"`
	TxHash  string           `json:"tx_hash,omitempty"`
	Fee     *decimal.Decimal `json:"fee,omitempty"`
	Error   string           `json:"error,omitempty"`
}
