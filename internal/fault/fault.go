package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	// Environment
	ToolMissing       Kind = "tool_missing"
	ModelLoadFailed   Kind = "model_load_failed"
	CredentialMissing Kind = "credential_missing"

	// Input
	InputInvalid     Kind = "input_invalid"
	POVInvalidTarget Kind = "pov_invalid_target"

	// Fetch
	FetchBlocked     Kind = "fetch_blocked"
	FetchUnsupported Kind = "fetch_unsupported"
	FetchCorrupt     Kind = "fetch_corrupt"

	// Processing
	ExtractFailed         Kind = "extract_failed"
	RecognizerUnavailable Kind = "recognizer_unavailable"
	RecognizerPartial     Kind = "recognizer_partial"
	DiarizerFailed        Kind = "diarizer_failed"
	NarratorFailed        Kind = "narrator_failed"

	// Lifecycle
	Timeout   Kind = "timeout"
	Cancelled Kind = "cancelled"
)

// Fatal reports whether the kind aborts the whole run regardless of which
// stage raised it. Timeout is stage-dependent and resolved by the caller.
func (k Kind) Fatal() bool {
	switch k {
	case ToolMissing, ModelLoadFailed, InputInvalid,
		FetchBlocked, FetchUnsupported, FetchCorrupt,
		ExtractFailed, RecognizerUnavailable, Cancelled:
		return true
	}
	return false
}

// Error is a classified pipeline error. Stderr holds captured output from an
// external tool; it is kept separate so surfaced messages can be sanitized
// before display.
type Error struct {
	Kind    Kind
	Message string
	Stderr  string
	wrapped error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.wrapped }

// New builds a classified error.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), wrapped: err}
}

// KindOf extracts the kind from err, or "" when err carries none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
