package errors

import "fmt"

// Common error types for the task chat application

// NotFoundError represents a resource that doesn't exist
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// Is matches another NotFoundError for the same resource. An empty ID in
// target matches any ID.
func (e *NotFoundError) Is(target error) bool {
	t, ok := target.(*NotFoundError)
	if !ok {
		return false
	}
	return t.Resource == e.Resource && (t.ID == "" || t.ID == e.ID)
}

// ConflictError represents a conflict with existing state, such as a
// conversation transition that would break a stage invariant.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// ValidationError represents invalid input
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}
