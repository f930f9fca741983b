// Package common defines shared constants and sentinel errors used across
// the instance and central components of medsync. Callers should use
// errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Versioning errors.
	ErrInvalidState = errors.New("invalid record state")
	ErrStaleVersion = errors.New("stale version")

	// Sync errors.
	ErrSyncUnavailable = errors.New("sync unavailable")

	// Service-level errors (generic/internal flow control).
	ErrInternal      = errors.New("internal error")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("validation error")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired = errors.New("token expired")
)
