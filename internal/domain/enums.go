// Package domain defines the core domain models for payguard.
package domain

import (
	"time"

	"github.com/cockroachdb/errors"
)

// GuardKind represents the kind of a guard rule.
type GuardKind string

const (
	GuardKindBudget      GuardKind = "budget"
	GuardKindSingleTx    GuardKind = "single_tx"
	GuardKindRateLimit   GuardKind = "rate_limit"
	GuardKindAllowlist   GuardKind = "allowlist"
	GuardKindBlocklist   GuardKind = "blocklist"
	GuardKindAutoApprove GuardKind = "auto_approve"
	GuardKindPolicy      GuardKind = "policy" // custom Rego module
)

// Valid reports whether k is a known guard kind.
func (k GuardKind) Valid() bool {
	switch k {
	case GuardKindBudget, GuardKindSingleTx, GuardKindRateLimit, GuardKindAllowlist,
		GuardKindBlocklist, GuardKindAutoApprove, GuardKindPolicy:
		return true
	}
	return false
}

// Period is the window a budget or rate limit applies to.
type Period string

const (
	PeriodHour  Period = "hour"
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// Periods lists every supported period, shortest first.
var Periods = []Period{PeriodHour, PeriodDay, PeriodWeek, PeriodMonth}

// ParsePeriod validates a period string.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case PeriodHour, PeriodDay, PeriodWeek, PeriodMonth:
		return p, nil
	}
	return "", errors.Newf("unknown period %q (want hour, day, week or month)", s)
}

// Start returns the calendar-aligned start of the period containing t, in UTC.
// Weeks start on Monday.
func (p Period) Start(t time.Time) time.Time {
	t = t.UTC()
	switch p {
	case PeriodHour:
		return t.Truncate(time.Hour)
	case PeriodDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case PeriodWeek:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case PeriodMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return t
}

// Window returns the length of the rolling window used by rate limits.
func (p Period) Window() time.Duration {
	switch p {
	case PeriodHour:
		return time.Hour
	case PeriodDay:
		return 24 * time.Hour
	case PeriodWeek:
		return 7 * 24 * time.Hour
	case PeriodMonth:
		return 30 * 24 * time.Hour
	}
	return 0
}

// IntentStatus represents the status of a payment intent.
type IntentStatus string

const (
	IntentStatusPending          IntentStatus = "pending"
	IntentStatusSimulating       IntentStatus = "simulating"
	IntentStatusAwaitingApproval IntentStatus = "awaiting_approval"
	IntentStatusRequiresApproval IntentStatus = "requires_approval"
	IntentStatusApproved         IntentStatus = "approved"
	IntentStatusExecuting        IntentStatus = "executing"
	IntentStatusSucceeded        IntentStatus = "succeeded"
	IntentStatusFailed           IntentStatus = "failed"
	IntentStatusBlocked          IntentStatus = "blocked"
)

// Terminal reports whether no further transition is possible.
func (s IntentStatus) Terminal() bool {
	switch s {
	case IntentStatusSucceeded, IntentStatusFailed, IntentStatusBlocked:
		return true
	}
	return false
}

// StepName names one of the four fixed lifecycle steps.
type StepName string

const (
	StepSimulation   StepName = "Simulation"
	StepApproval     StepName = "Approval"
	StepExecution    StepName = "Execution"
	StepConfirmation StepName = "Confirmation"
)

// StepStatus represents the status of a lifecycle step.
type StepStatus string

const (
	StepStatusPending    StepStatus = "pending"
	StepStatusInProgress StepStatus = "in_progress"
	StepStatusCompleted  StepStatus = "completed"
	StepStatusFailed     StepStatus = "failed"
)

// ApprovalState disambiguates the approval outcome of an intent, derived
// from its Approval step.
type ApprovalState string

const (
	ApprovalStateNone         ApprovalState = "none"
	ApprovalStatePendingHuman ApprovalState = "pending_human"
	ApprovalStateAutoApproved ApprovalState = "auto_approved"
	ApprovalStateApproved     ApprovalState = "approved"
	ApprovalStateDenied       ApprovalState = "denied"
)

// EventType represents the type of an intent timeline event.
type EventType string

const (
	EventTypeIntentCreated      EventType = "intent_created"
	EventTypeSimulationStarted  EventType = "simulation_started"
	EventTypeSimulationFailed   EventType = "simulation_failed"
	EventTypeGuardEvaluated     EventType = "guard_evaluated"
	EventTypeBlocked            EventType = "blocked"
	EventTypeApprovalRequired   EventType = "approval_required"
	EventTypeAutoApproved       EventType = "auto_approved"
	EventTypeApproved           EventType = "approved"
	EventTypeRejected           EventType = "rejected"
	EventTypeApprovalExpired    EventType = "approval_expired"
	EventTypeExecutionStarted   EventType = "execution_started"
	EventTypeExecutionSucceeded EventType = "execution_succeeded"
	EventTypeExecutionFailed    EventType = "execution_failed"
)
