// Package wireerr defines the typed error taxonomy shared across every
// wiretap component. Admin operations never let a Go error cross the
// external-interface boundary directly: they translate a *Error into the
// typed {ok, kind, message, details} result described in §7, so a client
// can render human text from message alone and branch on kind alone.
package wireerr

import "fmt"

// Kind enumerates the fixed error taxonomy of §7. It is closed: new
// components reuse one of these, they do not add a new Kind.
type Kind string

const (
	PortInUse         Kind = "PortInUse"
	TargetUnreachable Kind = "TargetUnreachable"
	ConfigInvalid     Kind = "ConfigInvalid"
	UpstreamIO        Kind = "UpstreamIO"
	DecodeError       Kind = "DecodeError"
	MockIncompatible  Kind = "MockIncompatible"
	PersistenceError  Kind = "PersistenceError"
	Timeout           Kind = "Timeout"
	Cancelled         Kind = "Cancelled"
	Internal          Kind = "Internal"
)

// Error is the wiretap error type. Component is the C1-C11 or admin-API
// package that raised it; Details carries structured context (port,
// target, field name) for logging, never for client-side branching.
type Error struct {
	Kind      Kind
	Component string
	Message   string
	Details   map[string]any
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Component, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %s", e.Component, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New constructs an *Error with no wrapped cause.
func New(component string, kind Kind, message string) *Error {
	return &Error{Component: component, Kind: kind, Message: message}
}

// Wrap constructs an *Error that wraps an underlying cause.
func Wrap(component string, kind Kind, message string, cause error) *Error {
	return &Error{Component: component, Kind: kind, Message: message, Cause: cause}
}

// WithDetails attaches structured context and returns the same *Error for
// chaining at the call site.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// KindOf extracts the Kind from err if it is (or wraps) a *Error, falling
// back to Internal for anything else so callers always get a valid Kind.
func KindOf(err error) Kind {
	var we *Error
	if ok := asWireErr(err, &we); ok {
		return we.Kind
	}
	return Internal
}

func asWireErr(err error, target **Error) bool {
	for err != nil {
		if we, ok := err.(*Error); ok {
			*target = we
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Result is the typed outcome returned across every external-interface
// boundary (§7: "Admin operations return a typed result... they never
// throw across the boundary").
type Result struct {
	OK      bool           `json:"ok"`
	Kind    Kind           `json:"kind,omitempty"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Ok builds a successful Result.
func Ok(message string) Result {
	return Result{OK: true, Message: message}
}

// FromError builds a failed Result from any error, preferring a *Error's
// Kind/Details when present and falling back to Internal otherwise.
func FromError(err error) Result {
	var we *Error
	if asWireErr(err, &we) {
		return Result{OK: false, Kind: we.Kind, Message: we.Message, Details: we.Details}
	}
	return Result{OK: false, Kind: Internal, Message: err.Error()}
}
