package mailotp

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEngineNotReady is returned when an Engine method is called on an
	// engine missing a required collaborator.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrMalformedRequest is returned when a handler request fails boundary
	// validation before any store access.
	ErrMalformedRequest = errors.New("malformed request")
	// ErrInvalidEmail is returned by CreateChallenge for a syntactically
	// invalid email address.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrInvalidCodeFormat is returned by VerifyChallenge when the submitted
	// answer is not exactly six ASCII digits.
	ErrInvalidCodeFormat = errors.New("invalid code format")
	// ErrRateLimited is returned when the issuance budget for an address (or
	// client IP) is exhausted inside the trailing window.
	ErrRateLimited = errors.New("challenge rate limited")
	// ErrNoChallengePending is returned when no live challenge record exists
	// for the address.
	ErrNoChallengePending = errors.New("no challenge pending")
	// ErrChallengeExpired is returned when a record exists but its expiry has
	// passed; the stale record is deleted as a side effect.
	ErrChallengeExpired = errors.New("challenge expired")
	// ErrCodeMismatch is returned when the submitted code does not match the
	// outstanding challenge.
	ErrCodeMismatch = errors.New("code mismatch")
	// ErrUserNotFound is returned by UserProvider implementations when no
	// record exists for the lookup key.
	ErrUserNotFound = errors.New("user not found")
	// ErrStoreUnavailable is returned when the key-value store cannot be
	// reached or a store call exceeds the invocation deadline.
	ErrStoreUnavailable = errors.New("challenge store unavailable")
	// ErrDispatchFailed is reported when the outbound email could not be
	// handed to the mail collaborator. The challenge record stands.
	ErrDispatchFailed = errors.New("email dispatch failed")
)

// RateLimitedError wraps [ErrRateLimited] with a retry-after hint derived
// from the oldest request still inside the limiting window.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("challenge rate limited, retry after %s", e.RetryAfter.Round(time.Second))
}

// Unwrap makes errors.Is(err, ErrRateLimited) hold for rate-limit failures.
func (e *RateLimitedError) Unwrap() error {
	return ErrRateLimited
}
