package models

import "fmt"

// ValidationError indicates a caller supplied an invalid or missing value.
// It is surfaced to the immediate caller rather than recorded on a task.
type ValidationError struct {
	// Field is the name of the invalid field.
	Field string
	// Reason explains why the value was rejected.
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
