package domain

import "errors"

// ErrNotFound indicates the task does not exist or belongs to another
// account; callers must not be able to tell the two apart.
var ErrNotFound = errors.New("task not found")

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}
