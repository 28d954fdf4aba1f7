// Package autherr defines the error taxonomy shared by the authorization core.
//
// Every failure returned by the membership, invitation, session and gate
// services carries one of a small set of kinds. HTTP handlers map kinds to
// status codes; callers branch on kinds with IsKind or errors.Is against the
// exported sentinels.
package autherr

import (
	"errors"
	"fmt"
)

// Kind classifies an authorization-core failure
type Kind int

const (
	// KindInternal is any failure not covered by the taxonomy (storage, I/O)
	KindInternal Kind = iota
	// KindUnauthenticated means no valid session
	KindUnauthenticated
	// KindUnauthorized means a valid session without the required grant
	KindUnauthorized
	// KindInvalidState means an illegal lifecycle transition
	KindInvalidState
	// KindNotFound means the referenced entity does not exist
	KindNotFound
	// KindConflict means a uniqueness or duplicate-action violation
	KindConflict
	// KindInvalidInput means the request itself is malformed
	KindInvalidInput
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindUnauthorized:
		return "unauthorized"
	case KindInvalidState:
		return "invalid_state"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalidInput:
		return "invalid_input"
	default:
		return "internal"
	}
}

// Sentinels usable with errors.Is
var (
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated}
	ErrUnauthorized    = &Error{Kind: KindUnauthorized}
	ErrInvalidState    = &Error{Kind: KindInvalidState}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrInvalidInput    = &Error{Kind: KindInvalidInput}
)

// Error is a classified failure.
//
// Reason is a stable machine-readable code (for example
// "invitation_expired") that admin UIs render into precise messages.
type Error struct {
	Kind    Kind
	Reason  string
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the exported sentinels work
// with errors.Is regardless of reason and message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New creates a classified error
func New(kind Kind, reason, message string) *Error {
	return &Error{Kind: kind, Reason: reason, Message: message}
}

// Wrap classifies an existing error
func Wrap(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Message: kind.String(), Err: err}
}

// Unauthenticated creates an Unauthenticated error
func Unauthenticated(message string) *Error {
	return New(KindUnauthenticated, "unauthenticated", message)
}

// Unauthorized creates an Unauthorized error with a reason code
func Unauthorized(reason, message string) *Error {
	return New(KindUnauthorized, reason, message)
}

// InvalidState creates an InvalidState error with a reason code
func InvalidState(reason, message string) *Error {
	return New(KindInvalidState, reason, message)
}

// NotFound creates a NotFound error
func NotFound(reason, message string) *Error {
	return New(KindNotFound, reason, message)
}

// Conflict creates a Conflict error
func Conflict(reason, message string) *Error {
	return New(KindConflict, reason, message)
}

// InvalidInput creates an InvalidInput error
func InvalidInput(reason, message string) *Error {
	return New(KindInvalidInput, reason, message)
}

// KindOf returns the kind of the first classified error in the chain,
// or KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ReasonOf returns the reason code of the first classified error in the chain
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
