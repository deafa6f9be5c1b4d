package job

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that need to branch on the failure
// mode rather than the message.
type Kind string

const (
	KindFileNotFound      Kind = "file_not_found"
	KindUnsupportedFormat Kind = "unsupported_format"
	KindProcessing        Kind = "processing_error"
	KindCli               Kind = "cli_error"
	KindConfig            Kind = "config_error"
	KindSystem            Kind = "system_error"
	KindIo                Kind = "io_error"
	KindSerialization     Kind = "serialization_error"
)

// prefix maps a kind to the human-readable lead-in used by Error().
var prefix = map[Kind]string{
	KindFileNotFound:      "file not found",
	KindUnsupportedFormat: "unsupported file format",
	KindProcessing:        "processing failed",
	KindCli:               "CLI execution failed",
	KindConfig:            "configuration error",
	KindSystem:            "system error",
	KindIo:                "IO error",
	KindSerialization:     "serialization error",
}

// Error is the typed failure returned by the engine. The wrapped cause, if
// any, stays reachable through errors.Is / errors.As.
type Error struct {
	Kind    Kind   `json:"type"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	p, ok := prefix[e.Kind]
	if !ok {
		p = string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", p, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError builds a typed error. cause may be nil.
func NewError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// Errorf is NewError with Sprintf formatting and no cause.
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind from err, or "" when err is not a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
