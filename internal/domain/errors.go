package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.
// Policy denials are NOT errors; they travel as decision result values.

var (
	// Request lifecycle errors
	ErrRequestNotFound   = errors.New("permission request not found")
	ErrRequestNotPending = errors.New("permission request is not pending")
	ErrRequestExpired    = errors.New("permission request has expired")

	// Request validation errors
	ErrRecipientBlocked    = errors.New("recipient address is blocked")
	ErrRecipientNotAllowed = errors.New("recipient address is not on the allow-list")
	ErrTooManyPending      = errors.New("too many pending permission requests")

	// Collaborator errors
	ErrSubAccountNotFound = errors.New("sub-account not found")
	ErrNoExecutor         = errors.New("no transfer executor configured")
)
