package domain

import (
	"github.com/shopspring/decimal"
)

// CreateIntentRequest represents the request to create a payment intent.
type CreateIntentRequest struct {
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency,omitempty"`
	Recipient        string          `json:"recipient"`
	RecipientAddress string          `json:"recipient_address"`
	WalletID         string          `json:"wallet_id"`
	Chain            string          `json:"chain,omitempty"`
	Description      string          `json:"description,omitempty"`
	AgentID          string          `json:"agent_id,omitempty"`
	Tool             string          `json:"tool,omitempty"`
}

// Candidate returns the evaluation input carried by the request.
func (r CreateIntentRequest) Candidate() PaymentCandidate {
	return PaymentCandidate{
		Amount:           r.Amount,
		Currency:         r.Currency,
		Recipient:        r.Recipient,
		RecipientAddress: r.RecipientAddress,
		WalletID:         r.WalletID,
		Chain:            r.Chain,
		AgentID:          r.AgentID,
		Tool:             r.Tool,
	}
}

// ApprovalDecisionRequest represents a human decision on an intent.
type ApprovalDecisionRequest struct {
	DecidedBy string `json:"decided_by,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// IntentResponse is an intent with its derived approval state.
type IntentResponse struct {
	*PaymentIntent
	ApprovalState ApprovalState `json:"approval_state"`
}

// NewIntentResponse wraps an intent for presentation.
func NewIntentResponse(in *PaymentIntent) IntentResponse {
	return IntentResponse{PaymentIntent: in, ApprovalState: in.ApprovalState()}
}

// GuardDiff describes one guard whose pass/fail flipped on replay.
type GuardDiff struct {
	GuardID   string `json:"guard_id"`
	GuardName string `json:"guard_name"`
	Original  bool   `json:"original"`
	Current   bool   `json:"current"`
	Reason    string `json:"reason,omitempty"`
}

// ReplayReport is the result of re-evaluating an intent against current rules.
type ReplayReport struct {
	IntentID        string        `json:"intent_id"`
	OriginalAllowed bool          `json:"original_allowed"`
	CurrentAllowed  bool          `json:"current_allowed"`
	Original        []GuardResult `json:"original"`
	Current         []GuardResult `json:"current"`
	Differences     []GuardDiff   `json:"differences"`
	Added           []GuardResult `json:"added,omitempty"`
	Removed         []GuardResult `json:"removed,omitempty"`
}

// EvaluateResponse is the outcome of a dry-run evaluation.
type EvaluateResponse struct {
	Allowed               bool          `json:"allowed"`
	HumanApprovalRequired bool          `json:"human_approval_required"`
	Results               []GuardResult `json:"results"`
	SpendSnapshot         SpendSnapshot `json:"spend_snapshot"`
}

// BlastRadiusRequest asks which agents and tools a guard change would touch.
// Proposed, when set, replaces the guard with the same id (or is added).
type BlastRadiusRequest struct {
	GuardID  string     `json:"guard_id,omitempty"`
	Proposed *GuardRule `json:"proposed,omitempty"`
}

// AffectedAgent lists an agent and the intents that make it affected.
type AffectedAgent struct {
	AgentID   string   `json:"agent_id"`
	Name      string   `json:"name,omitempty"`
	IntentIDs []string `json:"intent_ids"`
}

// ToolUsage tallies intents created through one agent tool.
type ToolUsage struct {
	Tool  string `json:"tool"`
	Count int    `json:"count"`
}

// BlastRadius is the estimated impact of a guard configuration change.
type BlastRadius struct {
	GuardID                string          `json:"guard_id,omitempty"`
	AffectedAgents         []AffectedAgent `json:"affected_agents"`
	AffectedTools          []ToolUsage     `json:"affected_tools"`
	CurrentDailySpend      decimal.Decimal `json:"current_daily_spend"`
	EstimatedDailyExposure decimal.Decimal `json:"estimated_daily_exposure"`
}

// WalletSpendResponse reports spend for a wallet.
type WalletSpendResponse struct {
	WalletID string          `json:"wallet_id"`
	Period   Period          `json:"period"`
	Spent    decimal.Decimal `json:"spent"`
	Count    int             `json:"count"`
}
