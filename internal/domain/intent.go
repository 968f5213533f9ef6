package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStep is one of the four fixed lifecycle steps of an intent.
type PaymentStep struct {
	Name      StepName   `json:"name"`
	Status    StepStatus `json:"status"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Details   string     `json:"details,omitempty"`
}

// Route is the transfer path chosen for an intent during simulation.
type Route struct {
	Type             string          `json:"type"` // direct or bridge
	SourceChain      string          `json:"source_chain"`
	DestinationChain string          `json:"destination_chain"`
	EstimatedFee     decimal.Decimal `json:"estimated_fee"`
	EstimatedTime    string          `json:"estimated_time,omitempty"`
}

// PaymentIntent represents one proposed payment moving through the
// simulate, approve, execute, confirm lifecycle.
type PaymentIntent struct {
	ID               string          `json:"id"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Recipient        string          `json:"recipient"`
	RecipientAddress string          `json:"recipient_address"`
	WalletID         string          `json:"wallet_id"`
	Chain            string          `json:"chain"`
	Description      string          `json:"description,omitempty"`
	AgentID          string          `json:"agent_id,omitempty"`
	Tool             string          `json:"tool,omitempty"`

	Status        IntentStatus     `json:"status"`
	Steps         []PaymentStep    `json:"steps"`
	GuardResults  []GuardResult    `json:"guard_results"`
	SpendSnapshot *SpendSnapshot   `json:"spend_snapshot,omitempty"`
	Route         *Route           `json:"route,omitempty"`
	TxHash        string           `json:"tx_hash,omitempty"`
	Fee           *decimal.Decimal `json:"fee,omitempty"`
	ApprovedBy    string           `json:"approved_by,omitempty"`

	// ExecutionStartedAt is set when the executor is about to be called.
	// An approved intent that has not been executed yet leaves it nil.
	ExecutionStartedAt *time.Time `json:"execution_started_at,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSteps returns the fixed step sequence, all pending.
func NewSteps() []PaymentStep {
	return []PaymentStep{
		{Name: StepSimulation, Status: StepStatusPending},
		{Name: StepApproval, Status: StepStatusPending},
		{Name: StepExecution, Status: StepStatusPending},
		{Name: StepConfirmation, Status: StepStatusPending},
	}
}

// Step returns the named step, or nil if the intent does not carry it.
func (in *PaymentIntent) Step(name StepName) *PaymentStep {
	for i := range in.Steps {
		if in.Steps[i].Name == name {
			return &in.Steps[i]
		}
	}
	return nil
}

// SetStep updates the named step's status, timestamp and details.
func (in *PaymentIntent) SetStep(name StepName, status StepStatus, details string, now time.Time) {
	step := in.Step(name)
	if step == nil {
		in.Steps = append(in.Steps, PaymentStep{Name: name})
		step = &in.Steps[len(in.Steps)-1]
	}
	step.Status = status
	step.Details = details
	if status != StepStatusPending {
		ts := now
		step.Timestamp = &ts
	}
}

// Candidate rebuilds the evaluation input from the intent's request fields.
func (in *PaymentIntent) Candidate() PaymentCandidate {
	return PaymentCandidate{
		Amount:           in.Amount,
		Currency:         in.Currency,
		Recipient:        in.Recipient,
		RecipientAddress: in.RecipientAddress,
		WalletID:         in.WalletID,
		Chain:            in.Chain,
		AgentID:          in.AgentID,
		Tool:             in.Tool,
	}
}

// ApprovalState derives the approval outcome from the Approval step. The
// status label awaiting_approval covers both a pending human decision and an
// automatic approval; this is the disambiguator.
func (in *PaymentIntent) ApprovalState() ApprovalState {
	step := in.Step(StepApproval)
	if step == nil {
		return ApprovalStateNone
	}
	switch step.Status {
	case StepStatusInProgress:
		return ApprovalStatePendingHuman
	case StepStatusCompleted:
		if in.ApprovedBy != "" {
			return ApprovalStateApproved
		}
		return ApprovalStateAutoApproved
	case StepStatusFailed:
		return ApprovalStateDenied
	}
	return ApprovalStateNone
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (in *PaymentIntent) Clone() *PaymentIntent {
	out := *in
	out.Steps = make([]PaymentStep, len(in.Steps))
	for i, s := range in.Steps {
		out.Steps[i] = s
		if s.Timestamp != nil {
			ts := *s.Timestamp
			out.Steps[i].Timestamp = &ts
		}
	}
	if in.GuardResults != nil {
		out.GuardResults = make([]GuardResult, len(in.GuardResults))
		copy(out.GuardResults, in.GuardResults)
	}
	if in.SpendSnapshot != nil {
		snap := in.SpendSnapshot.Clone()
		out.SpendSnapshot = &snap
	}
	if in.Route != nil {
		r := *in.Route
		out.Route = &r
	}
	if in.Fee != nil {
		f := *in.Fee
		out.Fee = &f
	}
	if in.ExecutionStartedAt != nil {
		ts := *in.ExecutionStartedAt
		out.ExecutionStartedAt = &ts
	}
	return &out
}
