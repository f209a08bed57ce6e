package connection

import (
	"context"
	"time"

	"github.com/Li-Yaosong/webadb2/pkg/discovery"
	"github.com/Li-Yaosong/webadb2/pkg/transport"
)

// Transport is an authenticated connection produced by an Authenticator.
type Transport interface {
	// Disconnected is closed when the connection ends for any reason.
	Disconnected() <-chan struct{}

	// Err returns the cause of the disconnect, or nil for a graceful
	// close.
	Err() error

	// Close requests a graceful close.
	Close() error
}

// Authenticator runs the handshake over freshly opened streams.
// On failure the manager closes the streams.
type Authenticator interface {
	Authenticate(ctx context.Context, device discovery.Device, streams transport.Streams) (Transport, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, device discovery.Device, streams transport.Streams) (Transport, error)

// Authenticate calls f.
func (f AuthenticatorFunc) Authenticate(ctx context.Context, device discovery.Device, streams transport.Streams) (Transport, error) {
	return f(ctx, device, streams)
}

// Session is one authenticated connection. It is owned by the Manager;
// other holders must stop using it once Done is closed.
type Session struct {
	// ID is the connection ID used in packet log entries (UUID).
	ID string

	Device    discovery.Device
	Transport Transport

	ConnectedAt time.Time

	streams  transport.Streams
	done     chan struct{}
	disposed bool // guarded by Manager.mu
}

// Done is closed once the session has been torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

var _ Authenticator = AuthenticatorFunc(nil)
