// Package errs defines the error taxonomy shared by the SOP entity model,
// storage adapter, persistence codec and state manager.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error so callers and event subscribers can react without
// matching on messages.
type Kind string

const (
	KindValidation         Kind = "ValidationError"
	KindNotFound           Kind = "NotFoundError"
	KindStorageUnavailable Kind = "StorageUnavailableError"
	KindQuotaExceeded      Kind = "QuotaExceededError"
	KindCorruptData        Kind = "CorruptDataError"
	KindMigration          Kind = "MigrationError"
	// KindConflict reports a write rejected because another writer changed
	// the target since it was read: a stored envelope on save, or a step
	// during MutateStep.
	KindConflict Kind = "ConflictError"
)

// Sentinels usable with errors.Is.
var (
	ErrValidation         = &Error{Kind: KindValidation}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrStorageUnavailable = &Error{Kind: KindStorageUnavailable}
	ErrQuotaExceeded      = &Error{Kind: KindQuotaExceeded}
	ErrCorruptData        = &Error{Kind: KindCorruptData}
	ErrMigration          = &Error{Kind: KindMigration}
	ErrConflict           = &Error{Kind: KindConflict}
)

// Error carries the kind plus the operation and entity it relates to.
type Error struct {
	Kind    Kind
	Op      string
	Entity  string
	ID      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString("sop: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Entity != "" {
		fmt.Fprintf(&b, " entity=%s", e.Entity)
	}
	if e.ID != "" {
		fmt.Fprintf(&b, " id=%s", e.ID)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches any *Error with the same Kind, so the package sentinels work with
// errors.Is regardless of the operation details.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) || other == nil || e == nil {
		return false
	}
	return other.Kind == e.Kind
}

// New builds an error of kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an error of kind around err.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Validation reports an entity invariant violation.
func Validation(entity, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Entity: entity, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a lookup or mutation on an absent id.
func NotFound(entity, id string) *Error {
	return &Error{Kind: KindNotFound, Entity: entity, ID: id, Message: "not found"}
}

// WithOp returns a copy of err tagged with op when err is an *Error and has no
// op yet. Other errors are returned unchanged.
func WithOp(op string, err error) error {
	var e *Error
	if !errors.As(err, &e) || e == nil {
		return err
	}
	if e.Op != "" {
		return err
	}
	clone := *e
	clone.Op = op
	return &clone
}

// KindOf extracts the Kind from err, returning "" for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Kind
	}
	return ""
}

// Message returns the human-facing portion of err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e != nil && e.Message != "" {
		if e.Err != nil {
			return e.Message + ": " + e.Err.Error()
		}
		return e.Message
	}
	return err.Error()
}
