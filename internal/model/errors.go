package model

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a user-scoped row does not exist.
var ErrNotFound = errors.New("not found")

// ValidationError rejects malformed user input. Nothing is persisted.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// NewValidationError formats a ValidationError.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// RiskViolationError blocks a BUY/ADD. It can be overridden with force + justification.
type RiskViolationError struct {
	Reason string
}

func (e *RiskViolationError) Error() string { return "risk check failed: " + e.Reason }

// HardRejectionError blocks an action that can never be forced.
type HardRejectionError struct {
	Reason string
}

func (e *HardRejectionError) Error() string { return "rejected: " + e.Reason }
