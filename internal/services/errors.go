package services

import "errors"

// Sentinel errors returned by services; handlers map them to HTTP
// status codes at the boundary.
var (
	// ErrInvalidInput indicates missing or malformed caller input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates failed credential or token
	// verification. Distinct refresh-token failure reasons (forged,
	// expired, no longer current) are collapsed into this one error
	// on purpose so callers cannot probe which check failed.
	ErrUnauthorized = errors.New("unauthorized")
)
