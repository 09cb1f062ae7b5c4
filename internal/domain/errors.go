package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAlreadyActive is returned when a user starts a session while another one is still running.
	ErrAlreadyActive = errors.New("user already has an active session")
	// ErrGatewayUnavailable wraps any failure of the conversation partner gateway.
	ErrGatewayUnavailable = errors.New("conversation partner unavailable")
	// ErrPartialFailure means the session was terminated and saved but could not be scored.
	ErrPartialFailure = errors.New("session saved, score pending")

	ErrSessionBusy    = errors.New("a turn is already in flight for this session")
	ErrSessionEnded   = errors.New("session has ended")
	ErrDealDecided    = errors.New("deal has already been decided")
	ErrNotFound       = errors.New("not found")
	ErrNotOwner       = errors.New("only the owner can modify this personality")
	ErrNotRegistered  = errors.New("user is not registered")
	ErrInvalidInput   = errors.New("invalid input")
	ErrSnapshotExists = errors.New("snapshot already taken")
	ErrRateLimited    = errors.New("rate limited")
)

// DataIntegrityError reports a stored row that could not be interpreted.
// It is never fatal: aggregations skip the row and carry on.
type DataIntegrityError struct {
	Table  string
	Key    string
	Reason string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity: %s[%s]: %s", e.Table, e.Key, e.Reason)
}

// RateLimitScope names the bucket that refused a request.
type RateLimitScope string

const (
	RateLimitUser   RateLimitScope = "user"
	RateLimitGlobal RateLimitScope = "global"
)

// RateLimitError is returned when a request is refused for exceeding a rate
// limit. It matches ErrRateLimited.
type RateLimitError struct {
	Scope      RateLimitScope
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: %s limit, retry in %s", ErrRateLimited, e.Scope, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// Invalid builds an ErrInvalidInput carrying a human-readable reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
