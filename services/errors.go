package services

import (
	"errors"
	"fmt"
)

// ErrVersionConflict is returned when an optimistic-concurrency guarded
// update loses the race: the document changed since it was read.
var ErrVersionConflict = errors.New("document was modified by another operation, reload and retry")

// NotFoundError reports a missing document, employee or signer.
type NotFoundError struct {
	Entity string
	ID     interface{}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

// InvalidStateError reports a transition attempted outside its precondition.
// Current and Required let callers react programmatically.
type InvalidStateError struct {
	Op       string
	Current  string
	Required string
}

func (e *InvalidStateError) Error() string {
	if e.Required == "" {
		return fmt.Sprintf("%s not allowed while document is %s", e.Op, e.Current)
	}
	return fmt.Sprintf("%s requires state %s, document is %s", e.Op, e.Required, e.Current)
}

// UnauthorizedError reports an actor lacking the role, identity match or
// delegation needed to act on a slot.
type UnauthorizedError struct {
	ActorID      int
	RequiredRole string
	Reason       string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("user %d is not authorized to act as %s: %s", e.ActorID, e.RequiredRole, e.Reason)
}

// ValidationError reports a malformed request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IntegrityError reports a hash computation whose inputs are missing or a
// stored hash that cannot be checked.
type IntegrityError struct {
	Reason string
}

func (e *IntegrityError) Error() string {
	return "integrity: " + e.Reason
}
