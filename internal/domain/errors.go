package domain

import "github.com/cockroachdb/errors"

// Base errors, mapped to HTTP status codes by the transport layer.
var (
	// ErrBadParameter is rendered with the http status code 400
	ErrBadParameter = errors.New("bad parameter")

	// ErrNotFound is rendered with the http status code 404
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is rendered with the http status code 409. It signals a
	// lifecycle operation attempted from a status that does not permit it.
	ErrInvalidState = errors.New("invalid state")

	// ErrConflict is rendered with the http status code 409
	ErrConflict = errors.New("conflict")
)

var (
	ErrIntentNotFound = errors.Wrap(ErrNotFound, "intent not found")
	ErrGuardNotFound  = errors.Wrap(ErrNotFound, "guard not found")
	ErrAgentNotFound  = errors.Wrap(ErrNotFound, "agent not found")

	// ErrInvalidGuardConfig marks a guard whose config is missing or malformed.
	// It is rendered with the http status code 400.
	ErrInvalidGuardConfig = errors.New("invalid guard configuration")

	// ErrStaleIntent is returned when an intent was modified concurrently.
	ErrStaleIntent = errors.Wrap(ErrConflict, "intent was modified concurrently")
)
