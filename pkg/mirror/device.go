package mirror

import (
	"context"
	"io"
	"io/fs"

	"github.com/Li-Yaosong/webadb2/pkg/client"
	"github.com/Li-Yaosong/webadb2/pkg/connection"
)

// Server launch defaults.
const (
	DefaultServerPath    = "/data/local/tmp/webadb-server.jar"
	DefaultServerClass   = "webadb.mirror.Server"
	DefaultServerVersion = "1.0"
)

// ServerStream is the running mirror server. Reads return encoded video;
// writes carry encoded control messages.
type ServerStream interface {
	ReadChunk() ([]byte, error)
	Write(p []byte) (int, error)
	Close() error
	Done() <-chan struct{}
}

// Device is the file-transfer and command capability of a session.
type Device interface {
	Push(ctx context.Context, path string, r io.Reader, size int64, mode fs.FileMode, progress func(sent int64)) error
	StartServer(ctx context.Context, args ...string) (ServerStream, error)
}

// ServerArgs returns the device command that launches the server.
func ServerArgs(path, class, version string) []string {
	return []string{
		"app_process",
		"-Djava.class.path=" + path,
		"/",
		class,
		version,
	}
}

// ClientDevice adapts a connected client.
func ClientDevice(c *client.Client) Device {
	return &clientDevice{c: c}
}

type clientDevice struct {
	c *client.Client
}

func (d *clientDevice) Push(ctx context.Context, path string, r io.Reader, size int64, mode fs.FileMode, progress func(int64)) error {
	return d.c.Push(ctx, path, r, size, mode, progress)
}

func (d *clientDevice) StartServer(ctx context.Context, args ...string) (ServerStream, error) {
	s, err := d.c.Exec(ctx, args...)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// DeviceFor returns the capability of a session transport.
func DeviceFor(t connection.Transport) (Device, bool) {
	switch v := t.(type) {
	case Device:
		return v, true
	case *client.Client:
		return ClientDevice(v), true
	default:
		return nil, false
	}
}

// Supported reports whether a mirror can be started on sess.
func Supported(sess *connection.Session) bool {
	if sess == nil {
		return false
	}
	_, ok := DeviceFor(sess.Transport)
	return ok
}

var _ ServerStream = (*client.Stream)(nil)
