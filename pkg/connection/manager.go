package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Li-Yaosong/webadb2/pkg/discovery"
	"github.com/Li-Yaosong/webadb2/pkg/log"
	"github.com/Li-Yaosong/webadb2/pkg/persistence"
	"github.com/Li-Yaosong/webadb2/pkg/transport"
)

const tracerName = "github.com/Li-Yaosong/webadb2/pkg/connection"

// State is the manager state.
type State uint8

const (
	// StateIdle means no session and no operation in progress.
	StateIdle State = iota

	// StateConnecting means streams are being opened or authenticated.
	StateConnecting

	// StateConnected means a session is live.
	StateConnected

	// StateDisposing means the session is being torn down.
	StateDisposing
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateDisposing:
		return "DISPOSING"
	default:
		return "UNKNOWN"
	}
}

// Config configures a Manager.
type Config struct {
	// Authenticator runs the handshake. Required.
	Authenticator Authenticator

	// Reporter receives every failure (optional).
	Reporter ErrorReporter

	// PacketLogger receives one event per frame in either direction and
	// the session state changes (optional).
	PacketLogger log.Logger

	// ClientState remembers the last connected serial across runs
	// (optional).
	ClientState *persistence.ClientStateStore

	// Logger is the optional logger for debug output.
	Logger *slog.Logger
}

// Manager owns at most one authenticated session at a time.
type Manager struct {
	config Config
	tracer trace.Tracer

	// opMu serializes connect, disconnect and transport-error teardown.
	opMu sync.Mutex

	mu             sync.RWMutex
	state          State
	candidates     []discovery.Device
	selected       discovery.Device
	lastSerial     string
	current        *Session
	onStateChange  func(oldState, newState State)
	onDisconnected func(s *Session, err error)
}

// NewManager creates an idle manager.
func NewManager(config Config) (*Manager, error) {
	if config.Authenticator == nil {
		return nil, errors.New("authenticator is required")
	}
	m := &Manager{
		config: config,
		tracer: otel.Tracer(tracerName),
		state:  StateIdle,
	}
	if config.ClientState != nil {
		st, err := config.ClientState.Load()
		if err != nil {
			m.debugLog("ignoring unreadable client state", "error", err)
		} else if st != nil {
			m.lastSerial = st.LastSerial
		}
	}
	return m, nil
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Current returns the live session, or nil.
func (m *Manager) Current() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Selected returns the selected device, or nil.
func (m *Manager) Selected() discovery.Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.selected
}

// Candidates returns the current candidate list.
func (m *Manager) Candidates() []discovery.Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]discovery.Device(nil), m.candidates...)
}

// SetCandidates replaces the candidate list. While idle the selection
// is re-resolved immediately; otherwise on the return to idle.
func (m *Manager) SetCandidates(devices []discovery.Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candidates = append([]discovery.Device(nil), devices...)
	if m.state == StateIdle {
		m.resolveLocked()
	}
}

// Select selects the candidate with serial. It fails while a session is
// live or being set up.
func (m *Manager) Select(serial string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateIdle {
		return ErrBusy
	}
	d := discovery.Find(m.candidates, serial)
	if d == nil {
		return fmt.Errorf("%w: %s", discovery.ErrNotFound, serial)
	}
	m.selected = d
	return nil
}

// resolveLocked re-runs selection resolution. Callers hold mu.
func (m *Manager) resolveLocked() {
	previous := m.lastSerial
	if m.selected != nil {
		previous = m.selected.Serial()
	}
	m.selected = discovery.ResolveSelection(previous, m.candidates)
}

// OnStateChange sets a callback for state changes.
func (m *Manager) OnStateChange(fn func(oldState, newState State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// OnDisconnected sets a callback fired once per torn-down session. err
// is the transport failure, or nil for a graceful disconnect.
func (m *Manager) OnDisconnected(fn func(s *Session, err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDisconnected = fn
}

// Connect opens, taps and authenticates the selected device. Without a
// selection it does nothing. Failures are reported once, returned, and
// leave the manager idle with every opened stream closed.
func (m *Manager) Connect(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.RLock()
	device, state := m.selected, m.state
	m.mu.RUnlock()
	if device == nil {
		return nil
	}
	if state != StateIdle {
		return ErrBusy
	}

	ctx, span := m.tracer.Start(ctx, "connection.connect", trace.WithAttributes(
		attribute.String("device.serial", device.Serial()),
		attribute.String("device.kind", device.Kind().String()),
	))
	defer span.End()

	id := uuid.New().String()
	m.setState(id, StateConnecting, device.Serial())

	raw, err := device.Connect(ctx)
	if err != nil {
		return m.fail(span, id, NewError(KindTransportOpen, "open", err))
	}
	streams := transport.Inspect(raw, m.recorder(id, device))

	t, err := m.config.Authenticator.Authenticate(ctx, device, streams)
	if err != nil {
		_ = streams.Reader.Cancel()
		if cerr := streams.Writer.Close(); cerr != nil {
			m.report(NewError(KindTransportRuntime, "close write", cerr))
		}
		return m.fail(span, id, NewError(KindAuthentication, "authenticate", err))
	}

	sess := &Session{
		ID:          id,
		Device:      device,
		Transport:   t,
		ConnectedAt: time.Now(),
		streams:     streams,
		done:        make(chan struct{}),
	}
	m.mu.Lock()
	m.current = sess
	m.lastSerial = device.Serial()
	m.mu.Unlock()

	m.saveClientState(device.Serial(), sess.ConnectedAt)
	m.setState(id, StateConnected, "")
	span.SetAttributes(attribute.String("connection.id", id))

	go m.watch(sess)
	return nil
}

// Disconnect closes the live session. A close error is reported and
// teardown proceeds regardless.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.RLock()
	sess, state := m.current, m.state
	m.mu.RUnlock()
	if state != StateConnected || sess == nil {
		return ErrNotConnected
	}

	_, span := m.tracer.Start(ctx, "connection.disconnect", trace.WithAttributes(
		attribute.String("connection.id", sess.ID),
	))
	defer span.End()

	if err := sess.Transport.Close(); err != nil {
		span.RecordError(err)
		m.report(NewError(KindTransportRuntime, "close", err))
	}
	m.teardown(sess, nil)
	return nil
}

// watch tears the session down when the transport ends on its own.
func (m *Manager) watch(sess *Session) {
	select {
	case <-sess.Transport.Disconnected():
	case <-sess.done:
		return
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.RLock()
	disposed := sess.disposed
	m.mu.RUnlock()
	if disposed {
		return
	}

	err := sess.Transport.Err()
	if err != nil {
		m.report(NewError(KindTransportRuntime, "session", err))
	}
	m.teardown(sess, err)
}

// teardown releases sess exactly once. Callers hold opMu.
func (m *Manager) teardown(sess *Session, cause error) {
	m.mu.Lock()
	if sess.disposed {
		m.mu.Unlock()
		return
	}
	sess.disposed = true
	m.mu.Unlock()

	m.setState(sess.ID, StateDisposing, reason(cause))

	// A pending read fails on cancel; that error carries no information.
	_ = sess.streams.Reader.Cancel()
	if err := sess.streams.Writer.Close(); err != nil {
		m.report(NewError(KindTransportRuntime, "close write", err))
	}

	m.mu.Lock()
	if m.current == sess {
		m.current = nil
	}
	m.mu.Unlock()

	m.setState(sess.ID, StateIdle, "")
	close(sess.done)

	m.mu.RLock()
	fn := m.onDisconnected
	m.mu.RUnlock()
	if fn != nil {
		fn(sess, cause)
	}
}

// fail reports err, returns to idle and hands err back to the caller.
func (m *Manager) fail(span trace.Span, id string, err *Error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Kind.String())
	m.report(err)
	m.setState(id, StateIdle, err.Error())
	return err
}

func (m *Manager) setState(connID string, newState State, why string) {
	m.mu.Lock()
	oldState := m.state
	m.state = newState
	if newState == StateIdle {
		m.resolveLocked()
	}
	fn := m.onStateChange
	m.mu.Unlock()

	m.debugLog("state change", "from", oldState, "to", newState, "reason", why)
	if m.config.PacketLogger != nil {
		m.config.PacketLogger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: connID,
			Layer:        log.LayerSession,
			Category:     log.CategoryState,
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntityConnection,
				OldState: oldState.String(),
				NewState: newState.String(),
				Reason:   why,
			},
		})
	}
	if fn != nil && oldState != newState {
		fn(oldState, newState)
	}
}

func (m *Manager) recorder(connID string, device discovery.Device) transport.RecordFunc {
	if m.config.PacketLogger == nil {
		return nil
	}
	serial, kind := device.Serial(), device.Kind().String()
	return func(direction log.Direction, data []byte) {
		event := log.NewFrameEvent(connID, direction, data)
		event.Serial = serial
		event.Transport = kind
		m.config.PacketLogger.Log(event)
	}
}

func (m *Manager) report(err error) {
	if m.config.Reporter != nil {
		m.config.Reporter.ReportError(err)
	}
}

func (m *Manager) saveClientState(serial string, at time.Time) {
	if m.config.ClientState == nil {
		return
	}
	err := m.config.ClientState.Save(&persistence.ClientState{LastSerial: serial, LastConnectedAt: at})
	if err != nil {
		m.debugLog("failed to save client state", "error", err)
	}
}

func (m *Manager) debugLog(msg string, args ...any) {
	if m.config.Logger != nil {
		m.config.Logger.Debug(msg, args...)
	}
}

func reason(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
