package apperr

import "errors"

// Kind classifies an error for the response envelope and for logging.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindUnauthorized Kind = "unauthorized"
	KindBusy         Kind = "busy"
	KindUpstream     Kind = "upstream"
	KindInternal     Kind = "internal"
)

// Error carries a client-facing message next to the underlying cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(msg string) error {
	return &Error{Kind: KindValidation, Msg: msg}
}

func Unauthorized(msg string) error {
	return &Error{Kind: KindUnauthorized, Msg: msg}
}

func Busy(msg string, err error) error {
	return &Error{Kind: KindBusy, Msg: msg, Err: err}
}

// Upstream marks a failure of an external dependency. msg is what the
// client sees; err is only logged.
func Upstream(msg string, err error) error {
	return &Error{Kind: KindUpstream, Msg: msg, Err: err}
}

func Internal(err error) error {
	return &Error{Kind: KindInternal, Msg: "Internal server error", Err: err}
}

// KindOf returns the kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the client-facing text for err. Unclassified and internal
// errors collapse to fallback.
func Message(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal && e.Msg != "" {
		return e.Msg
	}
	return fallback
}
