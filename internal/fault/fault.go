// ABOUTME: Failure kinds shared by the dispatcher, collaborators and HTTP handlers
// ABOUTME: Tagged error type plus helpers to recover the kind from a wrap chain

package fault

import (
	"errors"
	"fmt"
)

// Kind identifies a failure category.
type Kind int

const (
	// Generic is the catch-all kind for untagged errors.
	Generic Kind = iota
	// BadInput indicates a malformed submission.
	BadInput
	// CompilationFailed indicates a valid submission with invalid template or data.
	CompilationFailed
	// UnsupportedFormat indicates an unknown target format.
	UnsupportedFormat
	// BackendUnavailable indicates the renderer or converter is down or overloaded.
	BackendUnavailable
	// Disconnected indicates the remote peer closed the connection mid-request.
	Disconnected
)

// String returns the stable name of the kind, used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case Generic:
		return "generic"
	case BadInput:
		return "bad_input"
	case CompilationFailed:
		return "compilation_failed"
	case UnsupportedFormat:
		return "unsupported_format"
	case BackendUnavailable:
		return "backend_unavailable"
	case Disconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is an error tagged with a Kind.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	default:
		return ""
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an error of the given kind with a message.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf is New with fmt.Sprintf formatting.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap tags err with kind. It returns nil when err is nil.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind of the outermost tagged error in err's chain,
// or Generic when there is none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Generic
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsDisconnected reports whether err is a benign peer disconnect.
func IsDisconnected(err error) bool {
	return Is(err, Disconnected)
}
