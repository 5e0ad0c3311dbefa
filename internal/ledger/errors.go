package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDuplicateBatch is returned by Store.Insert when the batch id is taken.
// The ledger treats it as an allocation collision and draws a new id.
var ErrDuplicateBatch = errors.New("ledger: batch id already exists")

// FieldError describes one rejected input field.
type FieldError struct {
	Code    string `json:"code"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError is returned when input is missing or malformed.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Path+": "+fe.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NotFoundError is returned for an unknown batch id.
type NotFoundError struct {
	BatchID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("batch %s not found", e.BatchID)
}

// InvalidTransitionError is returned when a status repeats or moves backward.
type InvalidTransitionError struct {
	BatchID string
	From    Status
	To      Status
}

func (e *InvalidTransitionError) Error() string {
	if e.From == e.To {
		return fmt.Sprintf("batch %s is already %s", e.BatchID, e.To)
	}
	return fmt.Sprintf("batch %s cannot move from %s to %s", e.BatchID, e.From, e.To)
}

// AllocationExhaustedError means every drawn id collided. It signals an
// identifier space that is too small, not a caller mistake.
type AllocationExhaustedError struct {
	Attempts int
}

func (e *AllocationExhaustedError) Error() string {
	return fmt.Sprintf("batch id allocation exhausted after %d attempts", e.Attempts)
}

func fieldErr(code, path, message string) FieldError {
	return FieldError{Code: code, Path: path, Message: message}
}
