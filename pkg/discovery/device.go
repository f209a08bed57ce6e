package discovery

import (
	"context"
	"net"
	"strconv"

	"github.com/Li-Yaosong/webadb2/pkg/persistence"
	"github.com/Li-Yaosong/webadb2/pkg/transport"
)

// TCPDevice is a device reached over a raw TCP socket.
type TCPDevice struct {
	host string
	port int
	name string
}

// NewTCPDevice creates a TCP device with serial "host:port".
func NewTCPDevice(host string, port int) *TCPDevice {
	return &TCPDevice{host: host, port: port}
}

// Serial returns "host:port".
func (d *TCPDevice) Serial() string {
	return net.JoinHostPort(d.host, strconv.Itoa(d.port))
}

// Name returns the advertised instance name, if any.
func (d *TCPDevice) Name() string { return d.name }

// Kind returns KindTCP.
func (d *TCPDevice) Kind() Kind { return KindTCP }

// Host returns the device host.
func (d *TCPDevice) Host() string { return d.host }

// Port returns the device port.
func (d *TCPDevice) Port() int { return d.port }

// Connect dials the device.
func (d *TCPDevice) Connect(ctx context.Context) (transport.Streams, error) {
	return transport.DialTCP(ctx, d.Serial())
}

// WebSocketDevice is a device reached through a WebSocket relay.
type WebSocketDevice struct {
	url string
}

// NewWebSocketDevice creates a WebSocket device whose serial is url.
func NewWebSocketDevice(url string) *WebSocketDevice {
	return &WebSocketDevice{url: url}
}

// Serial returns the relay URL.
func (d *WebSocketDevice) Serial() string { return d.url }

// Name returns "".
func (d *WebSocketDevice) Name() string { return "" }

// Kind returns KindWebSocket.
func (d *WebSocketDevice) Kind() Kind { return KindWebSocket }

// Connect opens the relay.
func (d *WebSocketDevice) Connect(ctx context.Context) (transport.Streams, error) {
	return transport.DialWebSocket(ctx, d.url, nil)
}

// deviceFromEndpoint builds the persisted device for an endpoint.
func deviceFromEndpoint(kind Kind, ep persistence.Endpoint) (Device, error) {
	switch kind {
	case KindWebSocket:
		return NewWebSocketDevice(ep.Address), nil
	case KindTCP:
		return NewTCPDevice(ep.Address, ep.Port), nil
	default:
		return nil, ErrNotPersistable
	}
}

// Compile-time interface satisfaction checks.
var (
	_ Device = (*TCPDevice)(nil)
	_ Device = (*WebSocketDevice)(nil)
	_ Device = (*usbDevice)(nil)
)
