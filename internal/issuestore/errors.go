package issuestore

import (
	"errors"
	"fmt"
)

// NotFoundError is returned by issue/fix/filespec/changelist lookups
// when the requested row does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("issuestore: %s %q not found", e.Kind, e.ID)
}

// IsNotFound reports whether err is (or wraps) a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ReadOnlyFieldError is returned when an update attempts to change a
// field listed as read-only (see readOnlyFields).
type ReadOnlyFieldError struct {
	Field string
}

func (e *ReadOnlyFieldError) Error() string {
	return fmt.Sprintf("issuestore: field %q is read-only", e.Field)
}

// AppendOnlyFieldError is returned when an update's new value for an
// append-only field does not extend the old value by exact prefix.
type AppendOnlyFieldError struct {
	Field string
}

func (e *AppendOnlyFieldError) Error() string {
	return fmt.Sprintf("issuestore: field %q is append-only; new value must extend the old value", e.Field)
}

// TransitionError is returned when an update attempts a status
// transition not present in the state-transition table.
type TransitionError struct {
	From, To string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("issuestore: transition from %q to %q is not allowed", e.From, e.To)
}

// PermissionError is returned when a user lacks the bug-group or
// product-group permission required for an update.
type PermissionError struct {
	User   string
	Reason string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("issuestore: user %q lacks permission: %s", e.User, e.Reason)
}

// SchemaVersionError is returned when the stored schema_version is
// unknown or newer than this build's current version; always fatal.
type SchemaVersionError struct {
	Stored, Current int
}

func (e *SchemaVersionError) Error() string {
	return fmt.Sprintf("issuestore: stored schema version %d is incompatible with current version %d", e.Stored, e.Current)
}
