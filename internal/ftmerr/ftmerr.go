// Package ftmerr defines the error kinds surfaced by the FTM core, modeled
// as a closed set of sentinels rather than stringly-typed error messages.
package ftmerr

import "errors"

// Kind identifies one of the core's error categories (§7).
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindTooLarge         Kind = "too_large"
	KindPatternRejected  Kind = "pattern_rejected"
	KindBusy             Kind = "busy"
	KindQuotaExhausted   Kind = "quota_exhausted"
	KindCorrupt          Kind = "corrupt"
	KindIO               Kind = "io"
	KindInvalidConfig    Kind = "invalid_config"
	KindAmbiguousCheck   Kind = "ambiguous_checksum"
)

// Error wraps an underlying cause with a Kind, so callers can branch with
// errors.Is against the package-level sentinels below while still carrying a
// specific message and an optional wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return string(e.Kind)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches against the Kind sentinels (ErrNotFound, ErrTooLarge, ...) so
// that errors.Is(err, ftmerr.ErrNotFound) works regardless of message text.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels usable with errors.Is. Each carries no message; construct a real
// *Error with New for the actual error value returned to callers.
var (
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrTooLarge        = &Error{Kind: KindTooLarge}
	ErrPatternRejected = &Error{Kind: KindPatternRejected}
	ErrBusy            = &Error{Kind: KindBusy}
	ErrQuotaExhausted  = &Error{Kind: KindQuotaExhausted}
	ErrCorrupt         = &Error{Kind: KindCorrupt}
	ErrIO              = &Error{Kind: KindIO}
	ErrInvalidConfig   = &Error{Kind: KindInvalidConfig}
	ErrAmbiguousCheck  = &Error{Kind: KindAmbiguousCheck}
)

// New builds a concrete error of the given kind with a message and optional
// wrapped cause.
func New(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// As extracts the Kind of err if it (or something it wraps) is an *Error.
func As(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
