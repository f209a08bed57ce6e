package client

import (
	"errors"
	"fmt"

	"github.com/Li-Yaosong/webadb2/pkg/wire"
)

var (
	// ErrClosed is returned by operations on a disconnected client.
	ErrClosed = errors.New("client closed")

	// ErrKeepAliveTimeout is the disconnect cause when the device stops
	// answering pings.
	ErrKeepAliveTimeout = errors.New("device stopped answering pings")

	// ErrConnectionLost is the disconnect cause when the stream ends
	// without a close message.
	ErrConnectionLost = errors.New("connection lost")

	// ErrInvalidRebootMode is returned for an unknown reboot target.
	ErrInvalidRebootMode = errors.New("invalid reboot mode")
)

// StatusError is a non-success response from the device.
type StatusError struct {
	Op      wire.Operation
	Status  wire.Status
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s failed: %s", e.Op, e.Status)
	}
	return fmt.Sprintf("%s failed: %s: %s", e.Op, e.Status, e.Message)
}

// IsStatus reports whether err is a StatusError with the given status.
func IsStatus(err error, status wire.Status) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == status
}
