package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/Li-Yaosong/webadb2/pkg/artifact"
	"github.com/Li-Yaosong/webadb2/pkg/auth"
	"github.com/Li-Yaosong/webadb2/pkg/client"
	"github.com/Li-Yaosong/webadb2/pkg/connection"
	"github.com/Li-Yaosong/webadb2/pkg/decoder"
	"github.com/Li-Yaosong/webadb2/pkg/discovery"
	"github.com/Li-Yaosong/webadb2/pkg/log"
	"github.com/Li-Yaosong/webadb2/pkg/metrics"
	"github.com/Li-Yaosong/webadb2/pkg/mirror"
	"github.com/Li-Yaosong/webadb2/pkg/persistence"
)

// ErrNoArtifact is returned by mirror commands when no server artifact
// is configured.
var ErrNoArtifact = errors.New("no mirror server artifact configured (server.artifact)")

// App wires the registry, the session manager and the orchestrator.
type App struct {
	config *Config
	logger *slog.Logger

	store      persistence.Store
	closeStore func() error

	registry *discovery.Registry
	mdns     *discovery.MDNSSource
	manager  *connection.Manager
	mirror   *mirror.Orchestrator // nil without an artifact

	packets *log.PacketLog
	file    *log.FileLogger
	metrics *metrics.Collector
	events  log.Logger

	status       *http.Server
	statusAddr   net.Addr
	disposeWatch func()

	outMu sync.Mutex
	out   io.Writer

	progressMu   sync.Mutex
	lastProgress time.Time
}

// NewApp builds the application from cfg. Start must be called before
// use and Close afterwards.
func NewApp(cfg *Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	a := &App{
		config:  cfg,
		logger:  logger,
		packets: log.NewPacketLog(cfg.PacketLog.Capacity),
		metrics: metrics.New(metrics.Config{}),
		out:     os.Stdout,
	}

	if err := a.openStore(); err != nil {
		return nil, err
	}

	loggers := []log.Logger{a.packets, a.metrics}
	if cfg.PacketLog.File != "" {
		file, err := log.NewFileLogger(cfg.PacketLog.File)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open packet log: %w", err)
		}
		a.file = file
		loggers = append(loggers, file)
	}
	a.events = log.NewMultiLogger(loggers...)

	var sources []discovery.Source
	if cfg.MDNS.Enabled {
		a.mdns = discovery.NewMDNSSource(discovery.MDNSConfig{
			Interface: cfg.MDNS.Interface,
			Logger:    logger,
		})
		sources = append(sources, a.mdns)
	}
	registry, err := discovery.NewRegistry(a.store, sources...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load device registry: %w", err)
	}
	registry.SetLogger(logger)
	a.registry = registry

	handshake, err := auth.NewHandshake(auth.Config{
		Store:  auth.NewFileCredentialStore(cfg.keyFile()),
		Logger: logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.manager, err = connection.NewManager(connection.Config{
		Authenticator: handshake,
		Reporter:      a,
		PacketLogger:  a.events,
		ClientState:   persistence.NewClientStateStore(a.store),
		Logger:        logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.manager.OnDisconnected(func(s *connection.Session, err error) {
		if err != nil {
			a.printf("Disconnected from %s: %v\n", s.Device.Serial(), err)
		} else {
			a.printf("Disconnected from %s\n", s.Device.Serial())
		}
	})

	if cfg.Server.Artifact != "" {
		if err := a.newOrchestrator(); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *App) openStore() error {
	switch a.config.Store {
	case StoreSQLite:
		s, err := persistence.NewSQLiteStore(filepath.Join(a.config.StateDir, "webadb.db"))
		if err != nil {
			return fmt.Errorf("open sqlite store: %w", err)
		}
		a.store, a.closeStore = s, s.Close
	default:
		a.store = persistence.NewFileStore(filepath.Join(a.config.StateDir, "devices.json"))
	}
	return nil
}

func (a *App) newOrchestrator() error {
	cfg := a.config
	src, err := artifact.ParseSource(cfg.Server.Artifact, cfg.S3)
	if err != nil {
		return err
	}
	var digest artifact.Digest
	if cfg.Server.Digest != "" {
		if digest, err = artifact.ParseDigest(cfg.Server.Digest); err != nil {
			return err
		}
	}

	mc := mirror.Config{
		Artifact:        src,
		Digest:          digest,
		MaxArtifactSize: cfg.Server.MaxSize,
		ServerPath:      cfg.Server.Path,
		ServerClass:     cfg.Server.Class,
		ServerVersion:   cfg.Server.Version,
		Decoders:        decoder.NewRegistry(&decoder.FFplay{}, &decoder.Dump{Dir: cfg.dumpDir()}),
		Decoder:         cfg.Decoder,
		Video:           decoder.Config{Title: "webadb"},
		CaptureInput:    cfg.CaptureInput,
		Reporter:        a,
		PacketLogger:    a.events,
		Logger:          a.logger,
	}
	// Raw mode only makes sense on an interactive terminal.
	if cfg.CaptureInput && term.IsTerminal(int(os.Stdin.Fd())) {
		mc.Capture = mirror.NewTerminalCapture(int(os.Stdin.Fd()))
	}

	o, err := mirror.New(mc)
	if err != nil {
		return err
	}
	o.OnProgress(a.showProgress)
	o.OnStateChange(func(_, newStatus mirror.Status) {
		a.logger.Debug("mirror state", "status", newStatus)
	})
	a.mirror = o
	return nil
}

// Start begins discovery, the status server and candidate tracking.
func (a *App) Start(ctx context.Context) error {
	if a.mdns != nil {
		a.mdns.Start(ctx)
	}
	a.disposeWatch = a.registry.Watch(func(serial string) {
		a.logger.Debug("device list changed", "serial", serial)
		a.refresh(ctx)
	})
	a.refresh(ctx)

	if a.config.Status.Listen != "" {
		ln, err := net.Listen("tcp", a.config.Status.Listen)
		if err != nil {
			return fmt.Errorf("status server: %w", err)
		}
		a.statusAddr = ln.Addr()
		a.status = &http.Server{
			Handler:           newStatusRouter(a),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := a.status.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Warn("status server stopped", "error", err)
			}
		}()
		a.logger.Info("status server listening", "addr", a.statusAddr.String())
	}
	return nil
}

// Close stops everything and disconnects the live session.
func (a *App) Close() error {
	if a.disposeWatch != nil {
		a.disposeWatch()
	}
	if a.mirror != nil && a.mirror.State() == mirror.StateRunning {
		_ = a.mirror.Stop()
	}
	if a.manager != nil && a.manager.State() == connection.StateConnected {
		_ = a.manager.Disconnect(context.Background())
	}
	if a.mdns != nil {
		a.mdns.Stop()
	}
	if a.status != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = a.status.Shutdown(ctx)
		cancel()
	}
	var errs []error
	if a.file != nil {
		errs = append(errs, a.file.Close())
	}
	if a.closeStore != nil {
		errs = append(errs, a.closeStore())
	}
	return errors.Join(errs...)
}

// refresh hands the current device list to the manager. When a source
// fails, the devices it reported before are kept as candidates.
func (a *App) refresh(ctx context.Context) []discovery.Device {
	devices, err := a.registry.All(ctx)
	if err != nil {
		a.logger.Warn("list devices", "error", err)
		devices = a.keepDiscovered(devices)
	}
	a.manager.SetCandidates(devices)
	return devices
}

// keepDiscovered appends previous candidates missing from devices.
// WebSocket devices only come from the persisted list, so none is kept.
func (a *App) keepDiscovered(devices []discovery.Device) []discovery.Device {
	out := devices
	for _, prev := range a.manager.Candidates() {
		if prev.Kind() == discovery.KindWebSocket || discovery.Find(out, prev.Serial()) != nil {
			continue
		}
		out = append(out, prev)
	}
	return out
}

// AddDevice persists a WebSocket URL or a TCP host:port.
func (a *App) AddDevice(ctx context.Context, kind discovery.Kind, address string) (discovery.Device, error) {
	var ep persistence.Endpoint
	switch kind {
	case discovery.KindWebSocket:
		ep.Address = address
	case discovery.KindTCP:
		host, portStr, err := net.SplitHostPort(address)
		if err != nil {
			return nil, fmt.Errorf("tcp address: %w", err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("tcp port: %w", err)
		}
		ep.Address, ep.Port = host, port
	default:
		return nil, fmt.Errorf("cannot add %s devices", kind)
	}
	dev, err := a.registry.AddPersisted(kind, ep)
	if err != nil {
		return nil, err
	}
	a.refresh(ctx)
	return dev, nil
}

// RemoveDevice drops a persisted device.
func (a *App) RemoveDevice(ctx context.Context, serial string) error {
	for _, kind := range []discovery.Kind{discovery.KindWebSocket, discovery.KindTCP} {
		if discovery.Find(a.registry.Persisted(kind), serial) != nil {
			if err := a.registry.RemovePersisted(kind, serial); err != nil {
				return err
			}
			a.dropCandidate(serial)
			a.refresh(ctx)
			return nil
		}
	}
	return fmt.Errorf("no saved device %q", serial)
}

func (a *App) dropCandidate(serial string) {
	prev := a.manager.Candidates()
	kept := prev[:0]
	for _, d := range prev {
		if d.Serial() != serial {
			kept = append(kept, d)
		}
	}
	a.manager.SetCandidates(kept)
}

// ConnectTo adds address (when needed), selects it and connects.
func (a *App) ConnectTo(ctx context.Context, kind discovery.Kind, address string) error {
	dev, err := a.AddDevice(ctx, kind, address)
	if err != nil {
		return err
	}
	if err := a.manager.Select(dev.Serial()); err != nil {
		return err
	}
	return a.manager.Connect(ctx)
}

// Client returns the authenticated client of the live session.
func (a *App) Client() (*client.Client, error) {
	sess := a.manager.Current()
	if sess == nil {
		return nil, connection.ErrNotConnected
	}
	c, ok := sess.Transport.(*client.Client)
	if !ok {
		return nil, fmt.Errorf("session transport %T has no device client", sess.Transport)
	}
	return c, nil
}

// StartMirror starts remote control on the live session.
func (a *App) StartMirror(ctx context.Context) error {
	if a.mirror == nil {
		return ErrNoArtifact
	}
	sess := a.manager.Current()
	if sess == nil {
		return connection.ErrNotConnected
	}
	return a.mirror.Start(ctx, sess)
}

// ReportError implements connection.ErrorReporter. Errors go to the
// operational log and, as error events, to the packet log.
func (a *App) ReportError(err error) {
	layer := log.LayerSession
	kind := ""
	var cerr *connection.Error
	if errors.As(err, &cerr) {
		kind = cerr.Kind.String()
		switch cerr.Kind {
		case connection.KindTransportOpen, connection.KindTransportRuntime:
			layer = log.LayerTransport
		case connection.KindDeployment, connection.KindUnsupported:
			layer = log.LayerMirror
		}
	}
	connID := ""
	if sess := a.manager.Current(); sess != nil {
		connID = sess.ID
	}
	a.logger.Warn("operation failed", "kind", kind, "error", err)
	a.events.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Layer:        layer,
		Category:     log.CategoryError,
		Error:        &log.ErrorEventData{Layer: layer, Message: err.Error(), Context: kind},
	})
}

// showProgress prints deployment progress at most every 250ms and once
// per completed stage.
func (a *App) showProgress(p mirror.Progress) {
	a.progressMu.Lock()
	now := time.Now()
	if !p.Complete() && now.Sub(a.lastProgress) < 250*time.Millisecond {
		a.progressMu.Unlock()
		return
	}
	a.lastProgress = now
	a.progressMu.Unlock()

	if p.Stage == mirror.StageStarting {
		if p.Complete() {
			a.printf("Server started\n")
		}
		return
	}
	line := mirror.FormatSpeed(p.Done, p.Total, p.BytesPerSecond)
	if line == "" {
		line = mirror.FormatSize(float64(p.Done))
	}
	a.printf("%s: %s\n", p.Stage, line)
}

// SetOutput redirects user-facing messages, such as the readline
// stdout.
func (a *App) SetOutput(w io.Writer) {
	a.outMu.Lock()
	a.out = w
	a.outMu.Unlock()
}

func (a *App) printf(format string, args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintf(a.out, format, args...)
}

var _ connection.ErrorReporter = (*App)(nil)
