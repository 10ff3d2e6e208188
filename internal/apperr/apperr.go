// ABOUTME: Application error taxonomy shared by every medtrack service.
// ABOUTME: Errors carry a Kind (validation, not_found, state_conflict, external_service) plus op and context.
package apperr

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Kind classifies an error by how callers are expected to react to it.
type Kind string

const (
	// KindValidation means the input was rejected before any mutation.
	KindValidation Kind = "validation"
	// KindNotFound means a referenced medication or dose log does not exist.
	KindNotFound Kind = "not_found"
	// KindStateConflict means the record is already in a terminal state.
	KindStateConflict Kind = "state_conflict"
	// KindExternal means a collaborator such as a narrative provider failed.
	KindExternal Kind = "external_service"
	// KindInternal covers storage and other unexpected failures.
	KindInternal Kind = "internal"
)

// Error is an application error with a kind, the operation that produced it,
// and optional structured context.
type Error struct {
	Kind    Kind
	Op      string
	Code    string
	Message string
	Err     error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, and by code when the target sets one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// WithContext attaches a key/value pair for logging.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithCode sets a machine-readable code.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// MarshalZerologObject lets zerolog render the error as a structured object.
func (e *Error) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("kind", string(e.Kind))
	if e.Op != "" {
		ev.Str("op", e.Op)
	}
	if e.Code != "" {
		ev.Str("code", e.Code)
	}
	if e.Message != "" {
		ev.Str("message", e.Message)
	}
	if e.Err != nil {
		ev.Str("cause", e.Err.Error())
	}
	for k, v := range e.Context {
		ev.Interface(k, v)
	}
}

// Sentinels for errors.Is checks.
var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrStateConflict = &Error{Kind: KindStateConflict}
	ErrExternal      = &Error{Kind: KindExternal}
	ErrInternal      = &Error{Kind: KindInternal}
)

// New creates an Error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap wraps err in an Error of the given kind.
func Wrap(err error, kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// Validation reports rejected input.
func Validation(op string, err error) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: "invalid input", Err: err}
}

// Validationf reports rejected input with a formatted message.
func Validationf(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing record.
func NotFound(op, what, id string) *Error {
	return (&Error{Kind: KindNotFound, Op: op, Message: what + " not found"}).WithContext("id", id)
}

// StateConflict reports a transition attempted from a terminal state.
func StateConflict(op, message string) *Error {
	return &Error{Kind: KindStateConflict, Op: op, Message: message}
}

// External reports a failed collaborator call.
func External(op string, err error) *Error {
	return &Error{Kind: KindExternal, Op: op, Message: "external service failed", Err: err}
}

// Internal wraps an unexpected failure.
func Internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Op: op, Message: "internal error", Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns a user-facing message: the *Error message when present, otherwise err.Error().
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		if e.Err != nil && e.Kind == KindValidation {
			return e.Err.Error()
		}
		return e.Message
	}
	return err.Error()
}
