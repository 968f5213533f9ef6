package domain

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewIntentID returns a time-ordered intent id.
func NewIntentID() string {
	return "pi_" + ulid.Make().String()
}

// NewID returns a random id with the given prefix.
func NewID(prefix string) string {
	return prefix + "_" + uuid.New().String()
}

func NewGuardID() string       { return NewID("guard") }
func NewTransactionID() string { return NewID("tx") }
func NewAgentID() string       { return NewID("agent") }
func NewEventID() string       { return NewID("evt") }
