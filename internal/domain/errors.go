package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a failure for propagation and HTTP mapping.
type ErrorKind string

const (
	// KindAuthentication covers missing or unresolvable caller identities.
	KindAuthentication ErrorKind = "authentication"
	// KindValidation covers malformed or ill-typed submission payloads.
	KindValidation ErrorKind = "validation"
	// KindPersistence covers store write failures on the critical path.
	KindPersistence ErrorKind = "persistence"
	// KindLeaderboard covers recompute failures; these are logged, never
	// surfaced to the submitting user.
	KindLeaderboard ErrorKind = "leaderboard"
)

// Error is the structured failure carried across component boundaries.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Status maps the error kind to an HTTP status class.
func (e *Error) Status() int {
	switch e.Kind {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// AuthenticationError reports a credential that resolved to no user.
func AuthenticationError(msg string) error {
	return &Error{Kind: KindAuthentication, Message: msg}
}

// ValidationError reports a payload shape or type mismatch.
func ValidationError(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// PersistenceError wraps a store failure during op.
func PersistenceError(op string, err error) error {
	return &Error{Kind: KindPersistence, Message: op + " failed", Err: err}
}

// LeaderboardError wraps a recompute failure.
func LeaderboardError(err error) error {
	return &Error{Kind: KindLeaderboard, Message: "leaderboard recompute failed", Err: err}
}

// KindOf extracts the kind of err, or empty if err is not a domain error.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// StatusOf maps any error to an HTTP status; non-domain errors are 500s.
func StatusOf(err error) int {
	var de *Error
	if errors.As(err, &de) {
		return de.Status()
	}
	return http.StatusInternalServerError
}
