package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrCapacityExhausted is matched by the error a Chain returns when no
// provider could serve the request.
var ErrCapacityExhausted = errors.New("all ai providers exhausted")

// ErrRateLimit indicates a 429 from the provider.
type ErrRateLimit struct {
	RetryAfter time.Duration
	Err        error
}

func (e *ErrRateLimit) Error() string {
	return fmt.Sprintf("rate limited (retry after %s): %v", e.RetryAfter, e.Err)
}

func (e *ErrRateLimit) Unwrap() error { return e.Err }

// ErrProviderUnavailable indicates a 5xx or a network failure.
type ErrProviderUnavailable struct {
	Err error
}

func (e *ErrProviderUnavailable) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ai provider unavailable: %v", e.Err)
	}
	return "ai provider unavailable"
}

func (e *ErrProviderUnavailable) Unwrap() error { return e.Err }

// ErrRequestRejected is a non-retryable 4xx such as a bad key or a refused prompt.
type ErrRequestRejected struct {
	Status int
	Err    error
}

func (e *ErrRequestRejected) Error() string {
	return fmt.Sprintf("ai request rejected (status %d): %v", e.Status, e.Err)
}

func (e *ErrRequestRejected) Unwrap() error { return e.Err }

// ErrInvalidResponse indicates output that does not match the requested schema.
type ErrInvalidResponse struct {
	Content json.RawMessage
	Err     error
}

func (e *ErrInvalidResponse) Error() string {
	return fmt.Sprintf("invalid ai response: %v", e.Err)
}

func (e *ErrInvalidResponse) Unwrap() error { return e.Err }

// ExhaustedError aggregates the per-provider failures of a Chain.
type ExhaustedError struct {
	Attempts map[string]error
	order    []string
}

func (e *ExhaustedError) add(name string, err error) {
	if e.Attempts == nil {
		e.Attempts = make(map[string]error)
	}
	e.Attempts[name] = err
	e.order = append(e.order, name)
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.order))
	for _, name := range e.order {
		parts = append(parts, name+": "+e.Attempts[name].Error())
	}
	if len(parts) == 0 {
		return ErrCapacityExhausted.Error()
	}
	return ErrCapacityExhausted.Error() + " (" + strings.Join(parts, "; ") + ")"
}

func (e *ExhaustedError) Is(target error) bool { return target == ErrCapacityExhausted }
