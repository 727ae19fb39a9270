package apperrors

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput marks caller-attributable failures (empty query, bad session id).
	ErrInvalidInput = errors.New("invalid input")

	// ErrRateLimited is returned when admission is denied for the caller's key.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrAdapterTimeout and ErrAdapterFailure are absorbed by the orchestrator
	// into a fallback answer and never reach the caller.
	ErrAdapterTimeout = errors.New("answer source timed out")
	ErrAdapterFailure = errors.New("answer source failed")

	// ErrIsolationViolation means a pooled connection could not be bound to the
	// requesting tenant. It is never retried or swallowed.
	ErrIsolationViolation = errors.New("tenant isolation violation")

	ErrNoTenant = errors.New("no tenant in context")
)
