package discovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/Li-Yaosong/webadb2/pkg/transport"
)

// Kind is the transport family of a device.
type Kind uint8

const (
	// KindUSB is a locally attached, hot-pluggable device.
	KindUSB Kind = iota
	// KindWebSocket is a device reached through a WebSocket relay.
	KindWebSocket
	// KindTCP is a device reached over a raw TCP socket.
	KindTCP
)

// Kinds lists every kind in display order.
var Kinds = []Kind{KindUSB, KindWebSocket, KindTCP}

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindUSB:
		return "usb"
	case KindWebSocket:
		return "websocket"
	case KindTCP:
		return "tcp"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// ParseKind parses a kind name as returned by String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "usb":
		return KindUSB, nil
	case "websocket", "ws":
		return KindWebSocket, nil
	case "tcp":
		return KindTCP, nil
	default:
		return 0, fmt.Errorf("unknown device kind %q (use: usb, ws, tcp)", s)
	}
}

// Errors returned by the registry.
var (
	// ErrNotPersistable is returned when adding a kind that cannot be stored.
	ErrNotPersistable = errors.New("device kind cannot be persisted")

	// ErrNotFound is returned when a serial is not in the list.
	ErrNotFound = errors.New("device not found")

	// ErrWatchUnsupported is returned by sources without change notification.
	ErrWatchUnsupported = errors.New("watching is not supported")
)

// Device is a connectable target.
type Device interface {
	// Serial returns the stable identifier.
	Serial() string

	// Name returns a human-readable name, or "".
	Name() string

	// Kind returns the transport family.
	Kind() Kind

	// Connect opens a fresh duplex stream pair to the device.
	Connect(ctx context.Context) (transport.Streams, error)
}

// Source is a hot-pluggable device source.
type Source interface {
	// Kind returns the kind of every device the source produces.
	Kind() Kind

	// Devices returns the currently known devices in discovery order.
	Devices(ctx context.Context) ([]Device, error)

	// CanWatch reports whether Watch is supported.
	CanWatch() bool

	// Watch registers fn for attach and detach notifications. fn receives
	// the affected serial. stop unregisters fn.
	Watch(fn func(serial string)) (stop func(), err error)
}

// Option is the display form of a device.
type Option struct {
	Key  string
	Text string
}
