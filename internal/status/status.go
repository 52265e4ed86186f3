package status

import (
	"context"
	"errors"
)

var (
	ErrLocationNotFound     = errors.New("location: location not found")
	ErrEntryNotFound        = errors.New("queue: entry not found")
	ErrQueueDisabled        = errors.New("queue: queue is disabled")
	ErrCapacityExceeded     = errors.New("queue: capacity exceeded")
	ErrDuplicateActiveEntry = errors.New("queue: customer already has an active entry")
	ErrQueueEmpty           = errors.New("queue: no waiting entries")
	ErrInvalidTransition    = errors.New("queue: invalid state transition")
	ErrInvalidTimestamp     = errors.New("queue: completion precedes service start")
	ErrExpiredToken         = errors.New("join token: token expired")
	ErrInvalidToken         = errors.New("join token: invalid token")
	ErrRateLimited          = errors.New("join token: too many redemptions")
	ErrVersionConflict      = errors.New("store: version conflict")
)

var businessRules = []error{
	ErrQueueDisabled,
	ErrCapacityExceeded,
	ErrDuplicateActiveEntry,
	ErrQueueEmpty,
	ErrInvalidTransition,
	ErrInvalidTimestamp,
	ErrExpiredToken,
	ErrInvalidToken,
	ErrRateLimited,
}

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

func (v *ValidationError) Error() string {
	return "validation failed"
}

func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

func (v *ValidationError) Add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// NewValidationError returns a validation error for a single field.
func NewValidationError(field, message string) *ValidationError {
	v := &ValidationError{}
	v.Add(field, message)
	return v
}

// IsBusinessRule reports whether err is an expected rule violation rather than a failure.
func IsBusinessRule(err error) bool {
	for _, rule := range businessRules {
		if errors.Is(err, rule) {
			return true
		}
	}
	return false
}

// Kind maps an error to a stable label for logs and metrics.
func Kind(err error) string {
	if err == nil {
		return "ok"
	}

	var vErr *ValidationError
	switch {
	case errors.As(err, &vErr):
		return "validation"
	case errors.Is(err, ErrLocationNotFound), errors.Is(err, ErrEntryNotFound):
		return "not_found"
	case errors.Is(err, ErrVersionConflict):
		return "conflict"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case IsBusinessRule(err):
		return "business_rule"
	}
	return "unexpected"
}
