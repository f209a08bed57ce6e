package connection

import (
	"errors"
	"fmt"
)

// State guard errors.
var (
	// ErrBusy is returned by Connect unless the manager is idle.
	ErrBusy = errors.New("connection manager busy")

	// ErrNotConnected is returned by Disconnect without a live session.
	ErrNotConnected = errors.New("not connected")
)

// Kind classifies a reported failure.
type Kind uint8

const (
	// KindTransportOpen is a failure to open the device streams.
	KindTransportOpen Kind = iota + 1

	// KindAuthentication is a handshake failure.
	KindAuthentication

	// KindTransportRuntime is a failure after the session was up,
	// including write-side close errors during teardown.
	KindTransportRuntime

	// KindDeployment is a remote-control deployment failure.
	KindDeployment

	// KindUnsupported is a missing optional capability.
	KindUnsupported
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindTransportOpen:
		return "TRANSPORT_OPEN"
	case KindAuthentication:
		return "AUTHENTICATION"
	case KindTransportRuntime:
		return "TRANSPORT_RUNTIME"
	case KindDeployment:
		return "DEPLOYMENT"
	case KindUnsupported:
		return "UNSUPPORTED"
	default:
		return "UNKNOWN"
	}
}

// Error is a classified failure.
type Error struct {
	Kind Kind
	// Op names the failing step (e.g. "open", "authenticate", "push").
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError classifies err.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// ErrorReporter receives every failure surfaced by the manager.
type ErrorReporter interface {
	ReportError(err error)
}

// ErrorReporterFunc adapts a function to ErrorReporter.
type ErrorReporterFunc func(err error)

// ReportError calls f(err).
func (f ErrorReporterFunc) ReportError(err error) { f(err) }

var _ ErrorReporter = ErrorReporterFunc(nil)
