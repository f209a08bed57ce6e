// Package agent is a development device that speaks the wire protocol.
//
// It authenticates clients against an authorized_keys list, stores pushed
// files, runs commands when allowed and emulates the mirror server that
// the remote-control orchestrator starts with app_process. It backs the
// webadb-agent binary and the integration tests.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Li-Yaosong/webadb2/pkg/auth"
	"github.com/Li-Yaosong/webadb2/pkg/client"
	"github.com/Li-Yaosong/webadb2/pkg/transport"
	"github.com/Li-Yaosong/webadb2/pkg/wire"
)

// DefaultFrameInterval paces the synthetic video of the mirror server.
const DefaultFrameInterval = 33 * time.Millisecond

// MirrorCommand is the process name that starts the mirror server.
const MirrorCommand = "app_process"

// Config configures an Agent.
type Config struct {
	// Serial identifies the device. Default: a random UUID.
	Serial string

	// Model is reported in the handshake banner.
	Model string

	// Properties are extra device properties. The banner properties are
	// filled in from Serial and Model.
	Properties map[string]string

	// Keys is the trusted key list. Default: an empty in-memory list.
	Keys *auth.AuthorizedKeys

	// TrustNewKeys accepts and remembers unknown keys.
	TrustNewKeys bool

	// RootDir stores pushed files below it. Empty keeps them in memory.
	RootDir string

	// AllowExec runs commands other than the mirror server on the host.
	AllowExec bool

	// FrameInterval paces synthetic video. Default: DefaultFrameInterval.
	FrameInterval time.Duration

	// Logger is the optional logger for debug output.
	Logger *slog.Logger
}

// Agent serves device connections.
type Agent struct {
	config   Config
	acceptor *auth.Acceptor

	mu       sync.Mutex
	files    map[string][]byte
	controls []*wire.Control
	handlers []EventHandler
}

// New creates an agent.
func New(config Config) (*Agent, error) {
	if config.Serial == "" {
		config.Serial = uuid.New().String()
	}
	if config.Model == "" {
		config.Model = "webadb agent"
	}
	if config.FrameInterval <= 0 {
		config.FrameInterval = DefaultFrameInterval
	}
	if config.Keys == nil {
		keys, err := auth.LoadAuthorizedKeys("")
		if err != nil {
			return nil, err
		}
		config.Keys = keys
	}
	if config.RootDir != "" {
		if err := os.MkdirAll(config.RootDir, 0o755); err != nil {
			return nil, fmt.Errorf("create root dir: %w", err)
		}
	}

	a := &Agent{
		config: config,
		files:  make(map[string][]byte),
	}
	a.acceptor = &auth.Acceptor{
		Keys:         config.Keys,
		TrustNewKeys: config.TrustNewKeys,
		Props:        a.Properties(),
		Logger:       config.Logger,
	}
	return a, nil
}

// Serial returns the device serial.
func (a *Agent) Serial() string {
	return a.config.Serial
}

// Properties returns the device property table.
func (a *Agent) Properties() map[string]string {
	props := maps.Clone(a.config.Properties)
	if props == nil {
		props = make(map[string]string)
	}
	props[client.PropSerial] = a.config.Serial
	props[client.PropModel] = a.config.Model
	if _, ok := props[client.PropFeatures]; !ok {
		props[client.PropFeatures] = "shell_v2,cmd,push"
	}
	return props
}

// OnEvent registers a handler. Handlers run on the connection goroutine.
func (a *Agent) OnEvent(handler EventHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers = append(a.handlers, handler)
}

// Serve handles one accepted connection. It fits
// transport.ServerConfig.OnConnect.
func (a *Agent) Serve(ctx context.Context, conn *transport.Conn) {
	if err := a.ServeStreams(ctx, conn.ID, conn.Streams); err != nil {
		a.debugLog("connection ended", "conn", conn.ID, "remote", conn.RemoteAddr, "error", err)
	}
}

// ServeStreams authenticates the peer on streams and serves requests
// until the peer closes, the device reboots or ctx ends. It does not
// close streams.
func (a *Agent) ServeStreams(ctx context.Context, connID string, streams transport.Streams) error {
	stop := context.AfterFunc(ctx, func() { _ = streams.Reader.Cancel() })
	defer stop()

	pub, err := a.acceptor.Accept(ctx, streams)
	if err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	fingerprint := auth.Fingerprint(pub)
	a.debugLog("client authenticated", "conn", connID, "fingerprint", fingerprint)
	a.emit(Event{Type: EventConnected, ConnectionID: connID, Fingerprint: fingerprint})

	s := newSession(a, connID, streams)
	err = s.run()
	s.shutdown()

	a.emit(Event{Type: EventDisconnected, ConnectionID: connID, Fingerprint: fingerprint})
	if errors.Is(err, transport.ErrCanceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// File returns the content of a pushed file.
func (a *Agent) File(devicePath string) ([]byte, bool) {
	if a.config.RootDir != "" {
		data, err := os.ReadFile(a.hostPath(devicePath))
		return data, err == nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	data, ok := a.files[path.Clean(devicePath)]
	return data, ok
}

// Controls returns the input controls received by the mirror server.
func (a *Agent) Controls() []*wire.Control {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*wire.Control(nil), a.controls...)
}

func (a *Agent) storeFile(devicePath string, data []byte, mode os.FileMode) error {
	if a.config.RootDir != "" {
		dst := a.hostPath(devicePath)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		return os.WriteFile(dst, data, mode.Perm())
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.files[path.Clean(devicePath)] = data
	return nil
}

// hostPath maps a device path below RootDir. ".." cannot escape it.
func (a *Agent) hostPath(devicePath string) string {
	clean := path.Clean("/" + devicePath)
	return filepath.Join(a.config.RootDir, filepath.FromSlash(clean))
}

func (a *Agent) recordControl(c *wire.Control) {
	a.mu.Lock()
	a.controls = append(a.controls, c)
	a.mu.Unlock()
}

func (a *Agent) emit(event Event) {
	a.mu.Lock()
	handlers := append([]EventHandler(nil), a.handlers...)
	a.mu.Unlock()
	for _, h := range handlers {
		h(event)
	}
}

func (a *Agent) debugLog(msg string, args ...any) {
	if a.config.Logger != nil {
		a.config.Logger.Debug(msg, args...)
	}
}
