// Package services defines the business logic for triage, share passes, and
// the assistant. This file centralizes common service-level error values so
// that they can be consistently returned by service methods and checked by
// callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMemberNotFound indicates that the referenced family member does not
	// exist or is not owned by the current user.
	ErrMemberNotFound = errors.New("family member not found")

	// ErrPassNotFound indicates that no share pass exists for the given code.
	ErrPassNotFound = errors.New("share pass not found")

	// ErrPassExpired is returned when a share pass is past its expiry.
	// Expired passes are permanently dead regardless of consumption state.
	ErrPassExpired = errors.New("share pass expired")

	// ErrPassConsumed is returned when a share pass was already redeemed,
	// including when a concurrent redemption won the consume race.
	ErrPassConsumed = errors.New("share pass already used")

	// ErrAccessNotEstablished is returned when a record handle is requested
	// for a pass that has never been redeemed.
	ErrAccessNotEstablished = errors.New("share access not established")

	// ErrIssuanceExhausted is returned when repeated code collisions prevent
	// issuing a new share pass.
	ErrIssuanceExhausted = errors.New("could not allocate a unique pass code")

	// ErrEmptyMessage is returned when an assistant request carries no text.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrMessageTooLong is returned when an assistant request exceeds the
	// maximum accepted length.
	ErrMessageTooLong = errors.New("message too long")
)

// ValidationError carries the full list of intake violations so handlers can
// return every problem at once instead of the first one found.
type ValidationError struct {
	Fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid intake: %d violation(s)", len(e.Fields))
}

// RateLimitedError signals that a per-operation fixed window is exhausted.
// RetryAfter is the remainder of the window, never less than one second.
type RateLimitedError struct {
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}
