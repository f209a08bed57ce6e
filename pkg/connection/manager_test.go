package connection_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Li-Yaosong/webadb2/pkg/connection"
	"github.com/Li-Yaosong/webadb2/pkg/discovery"
	"github.com/Li-Yaosong/webadb2/pkg/log"
	"github.com/Li-Yaosong/webadb2/pkg/persistence"
	"github.com/Li-Yaosong/webadb2/pkg/transport"
)

// countingReader counts Cancel calls.
type countingReader struct {
	transport.FrameReader
	cancels *atomic.Int32
}

func (r *countingReader) Cancel() error {
	r.cancels.Add(1)
	return r.FrameReader.Cancel()
}

// countingWriter counts Close calls.
type countingWriter struct {
	transport.FrameWriter
	closes   *atomic.Int32
	closeErr error
}

func (w *countingWriter) Close() error {
	w.closes.Add(1)
	if err := w.FrameWriter.Close(); err != nil {
		return err
	}
	return w.closeErr
}

// fakeDevice opens pipe streams and runs peer on the far end.
type fakeDevice struct {
	serial  string
	kind    discovery.Kind
	openErr error
	peer    func(remote transport.Streams)

	opened   atomic.Int32
	cancels  atomic.Int32
	closes   atomic.Int32
	closeErr error
}

func (d *fakeDevice) Serial() string       { return d.serial }
func (d *fakeDevice) Name() string         { return "" }
func (d *fakeDevice) Kind() discovery.Kind { return d.kind }

func (d *fakeDevice) Connect(ctx context.Context) (transport.Streams, error) {
	if d.openErr != nil {
		return transport.Streams{}, d.openErr
	}
	d.opened.Add(1)
	local, remote := transport.NewPipe()
	if d.peer != nil {
		go d.peer(remote)
	}
	return transport.Streams{
		Reader: &countingReader{FrameReader: local.Reader, cancels: &d.cancels},
		Writer: &countingWriter{FrameWriter: local.Writer, closes: &d.closes, closeErr: d.closeErr},
	}, nil
}

// replyPeer answers the first frame with "OK".
func replyPeer(remote transport.Streams) {
	if _, err := remote.Reader.ReadFrame(); err != nil {
		return
	}
	_ = remote.Writer.WriteFrame([]byte("OK"))
}

// fakeTransport is an authenticated connection the test can drop.
type fakeTransport struct {
	disconnected chan struct{}
	once         sync.Once
	mu           sync.Mutex
	err          error
	closeErr     error
	closes       atomic.Int32
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{disconnected: make(chan struct{})}
}

func (t *fakeTransport) Disconnected() <-chan struct{} { return t.disconnected }

func (t *fakeTransport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *fakeTransport) Close() error {
	t.closes.Add(1)
	t.drop(nil)
	return t.closeErr
}

func (t *fakeTransport) drop(err error) {
	t.once.Do(func() {
		t.mu.Lock()
		t.err = err
		t.mu.Unlock()
		close(t.disconnected)
	})
}

// handshake writes one frame, waits delay, reads the reply.
func handshake(delay time.Duration, tr connection.Transport) connection.AuthenticatorFunc {
	return func(ctx context.Context, device discovery.Device, s transport.Streams) (connection.Transport, error) {
		if err := s.Writer.WriteFrame([]byte("AUTH")); err != nil {
			return nil, err
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if _, err := s.Reader.ReadFrame(); err != nil {
			return nil, err
		}
		return tr, nil
	}
}

// errorSink records reported errors.
type errorSink struct {
	mu   sync.Mutex
	errs []error
}

func (s *errorSink) ReportError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

func (s *errorSink) all() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}

func newManager(t *testing.T, auth connection.Authenticator, sink *errorSink, packets log.Logger) *connection.Manager {
	t.Helper()
	cfg := connection.Config{Authenticator: auth, PacketLogger: packets}
	if sink != nil {
		cfg.Reporter = sink
	}
	m, err := connection.NewManager(cfg)
	require.NoError(t, err)
	return m
}

func packetEvents(p *log.PacketLog) []log.Event {
	cat := log.CategoryPacket
	return p.Filter(log.Filter{Category: &cat})
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state connection.State
		want  string
	}{
		{connection.StateIdle, "IDLE"},
		{connection.StateConnecting, "CONNECTING"},
		{connection.StateConnected, "CONNECTED"},
		{connection.StateDisposing, "DISPOSING"},
		{connection.State(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestNewManagerRequiresAuthenticator(t *testing.T) {
	_, err := connection.NewManager(connection.Config{})
	assert.Error(t, err)
}

func TestConnectWithoutSelection(t *testing.T) {
	m := newManager(t, handshake(0, newFakeTransport()), nil, nil)

	assert.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, connection.StateIdle, m.State())
	assert.Nil(t, m.Current())
}

func TestConnectScenarioUSBAndWebSocket(t *testing.T) {
	ctx := context.Background()
	a := &fakeDevice{serial: "A", kind: discovery.KindUSB, peer: replyPeer}
	b := &fakeDevice{serial: "ws://relay:8080", kind: discovery.KindWebSocket, peer: replyPeer}
	packets := log.NewPacketLog(100)
	tr := newFakeTransport()

	m := newManager(t, handshake(10*time.Millisecond, tr), nil, packets)

	var states []connection.State
	m.OnStateChange(func(_, newState connection.State) { states = append(states, newState) })

	m.SetCandidates([]discovery.Device{a, b})
	require.NoError(t, m.Select("A"))
	require.NoError(t, m.Connect(ctx))

	assert.Equal(t, connection.StateConnected, m.State())
	sess := m.Current()
	require.NotNil(t, sess)
	assert.Equal(t, "A", sess.Device.Serial())
	assert.NotEmpty(t, sess.ID)

	events := packetEvents(packets)
	require.Len(t, events, 2, "one entry per frame sent or received during the handshake")
	assert.Equal(t, log.DirectionOut, events[0].Direction)
	assert.Equal(t, []byte("AUTH"), events[0].Frame.Data)
	assert.Equal(t, log.DirectionIn, events[1].Direction)
	assert.Equal(t, []byte("OK"), events[1].Frame.Data)
	for _, e := range events {
		assert.Equal(t, sess.ID, e.ConnectionID)
		assert.Equal(t, "A", e.Serial)
		assert.Equal(t, "usb", e.Transport)
	}

	require.NoError(t, m.Disconnect(ctx))

	assert.Equal(t, connection.StateIdle, m.State())
	assert.Nil(t, m.Current())
	assert.Equal(t, int32(1), a.cancels.Load(), "read side canceled")
	assert.Equal(t, int32(1), a.closes.Load(), "write side closed")
	assert.Equal(t, int32(0), b.opened.Load())
	assert.Equal(t, int32(1), tr.closes.Load())

	select {
	case <-sess.Done():
	default:
		t.Error("session Done not closed after disconnect")
	}
	assert.Equal(t, []connection.State{
		connection.StateConnecting,
		connection.StateConnected,
		connection.StateDisposing,
		connection.StateIdle,
	}, states)
}

func TestConnectOpenFailure(t *testing.T) {
	sink := &errorSink{}
	dev := &fakeDevice{serial: "A", kind: discovery.KindUSB, openErr: errors.New("device busy")}
	m := newManager(t, handshake(0, newFakeTransport()), sink, nil)
	m.SetCandidates([]discovery.Device{dev})

	err := m.Connect(context.Background())

	require.Error(t, err)
	assert.True(t, connection.IsKind(err, connection.KindTransportOpen))
	assert.Equal(t, connection.StateIdle, m.State())
	require.Len(t, sink.all(), 1)
	assert.True(t, connection.IsKind(sink.all()[0], connection.KindTransportOpen))
}

func TestConnectAuthFailureClosesStreams(t *testing.T) {
	sink := &errorSink{}
	dev := &fakeDevice{serial: "A", kind: discovery.KindUSB}
	auth := connection.AuthenticatorFunc(func(context.Context, discovery.Device, transport.Streams) (connection.Transport, error) {
		return nil, errors.New("key rejected")
	})
	m := newManager(t, auth, sink, nil)
	m.SetCandidates([]discovery.Device{dev})

	for i := range 3 {
		err := m.Connect(context.Background())
		require.Error(t, err)
		assert.True(t, connection.IsKind(err, connection.KindAuthentication))
		assert.ErrorContains(t, err, "key rejected")

		assert.Equal(t, connection.StateIdle, m.State())
		opened := dev.opened.Load()
		assert.Equal(t, int32(i+1), opened)
		assert.Equal(t, opened, dev.closes.Load(), "every opened writer closed")
		assert.Equal(t, opened, dev.cancels.Load(), "every opened reader canceled")
	}
	assert.Len(t, sink.all(), 3)
}

func TestConnectAuthFailureReportsCloseError(t *testing.T) {
	sink := &errorSink{}
	dev := &fakeDevice{serial: "A", kind: discovery.KindUSB, closeErr: errors.New("flush failed")}
	auth := connection.AuthenticatorFunc(func(context.Context, discovery.Device, transport.Streams) (connection.Transport, error) {
		return nil, errors.New("key rejected")
	})
	m := newManager(t, auth, sink, nil)
	m.SetCandidates([]discovery.Device{dev})

	err := m.Connect(context.Background())
	assert.True(t, connection.IsKind(err, connection.KindAuthentication))
	assert.Equal(t, connection.StateIdle, m.State())

	errs := sink.all()
	require.Len(t, errs, 2)
	assert.True(t, connection.IsKind(errs[0], connection.KindTransportRuntime))
	assert.ErrorContains(t, errs[0], "flush failed")
	assert.True(t, connection.IsKind(errs[1], connection.KindAuthentication))
}

func TestConnectBusy(t *testing.T) {
	ctx := context.Background()
	dev := &fakeDevice{serial: "A", kind: discovery.KindTCP, peer: replyPeer}
	m := newManager(t, handshake(0, newFakeTransport()), nil, nil)
	m.SetCandidates([]discovery.Device{dev})

	require.NoError(t, m.Connect(ctx))
	assert.ErrorIs(t, m.Connect(ctx), connection.ErrBusy)
	assert.ErrorIs(t, m.Select("A"), connection.ErrBusy)
	assert.Equal(t, int32(1), dev.opened.Load())

	require.NoError(t, m.Disconnect(ctx))
}

func TestDisconnectNotConnected(t *testing.T) {
	m := newManager(t, handshake(0, newFakeTransport()), nil, nil)
	assert.ErrorIs(t, m.Disconnect(context.Background()), connection.ErrNotConnected)
}

func TestTransportFailureTearsDown(t *testing.T) {
	sink := &errorSink{}
	dev := &fakeDevice{serial: "A", kind: discovery.KindUSB, peer: replyPeer}
	tr := newFakeTransport()
	m := newManager(t, handshake(0, tr), sink, nil)
	m.SetCandidates([]discovery.Device{dev})

	got := make(chan error, 1)
	m.OnDisconnected(func(_ *connection.Session, err error) { got <- err })

	require.NoError(t, m.Connect(context.Background()))
	sess := m.Current()

	tr.drop(errors.New("usb unplugged"))

	select {
	case err := <-got:
		assert.EqualError(t, err, "usb unplugged")
	case <-time.After(time.Second):
		t.Fatal("OnDisconnected not fired")
	}
	<-sess.Done()

	assert.Equal(t, connection.StateIdle, m.State())
	assert.Equal(t, int32(1), dev.closes.Load())
	require.Len(t, sink.all(), 1)
	assert.True(t, connection.IsKind(sink.all()[0], connection.KindTransportRuntime))
}

func TestTeardownRunsOnce(t *testing.T) {
	for range 20 {
		ctx := context.Background()
		dev := &fakeDevice{serial: "A", kind: discovery.KindUSB, peer: replyPeer}
		tr := newFakeTransport()
		m := newManager(t, handshake(0, tr), nil, nil)
		m.SetCandidates([]discovery.Device{dev})

		var fired atomic.Int32
		m.OnDisconnected(func(*connection.Session, error) { fired.Add(1) })

		require.NoError(t, m.Connect(ctx))
		sess := m.Current()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			tr.drop(errors.New("link reset"))
		}()
		go func() {
			defer wg.Done()
			err := m.Disconnect(ctx)
			if err != nil {
				assert.ErrorIs(t, err, connection.ErrNotConnected)
			}
		}()
		wg.Wait()

		select {
		case <-sess.Done():
		case <-time.After(time.Second):
			t.Fatal("session never torn down")
		}
		// Give a late watcher the chance to misbehave.
		time.Sleep(5 * time.Millisecond)

		assert.Equal(t, int32(1), fired.Load(), "disconnected fired once")
		assert.Equal(t, int32(1), dev.closes.Load(), "write side closed once")
		assert.Equal(t, int32(1), dev.cancels.Load(), "read side canceled once")
		assert.ErrorIs(t, m.Disconnect(ctx), connection.ErrNotConnected)
	}
}

func TestDisconnectCloseErrorStillTearsDown(t *testing.T) {
	sink := &errorSink{}
	dev := &fakeDevice{serial: "A", kind: discovery.KindUSB, peer: replyPeer, closeErr: errors.New("flush failed")}
	tr := newFakeTransport()
	tr.closeErr = errors.New("close refused")
	m := newManager(t, handshake(0, tr), sink, nil)
	m.SetCandidates([]discovery.Device{dev})

	require.NoError(t, m.Connect(context.Background()))
	require.NoError(t, m.Disconnect(context.Background()))

	assert.Equal(t, connection.StateIdle, m.State())
	errs := sink.all()
	require.Len(t, errs, 2)
	assert.ErrorContains(t, errs[0], "close refused")
	assert.ErrorContains(t, errs[1], "flush failed")
}

func TestSelectionDeferredWhileConnected(t *testing.T) {
	ctx := context.Background()
	a := &fakeDevice{serial: "A", kind: discovery.KindUSB, peer: replyPeer}
	b := &fakeDevice{serial: "B", kind: discovery.KindUSB}
	m := newManager(t, handshake(0, newFakeTransport()), nil, nil)

	m.SetCandidates([]discovery.Device{a, b})
	require.Equal(t, "A", m.Selected().Serial())
	require.NoError(t, m.Connect(ctx))

	// A disappears while connected: the bound device stays.
	m.SetCandidates([]discovery.Device{b})
	assert.Equal(t, "A", m.Selected().Serial())
	assert.Equal(t, "A", m.Current().Device.Serial())

	require.NoError(t, m.Disconnect(ctx))
	assert.Equal(t, "B", m.Selected().Serial())

	m.SetCandidates(nil)
	assert.Nil(t, m.Selected())
}

func TestSelectUnknownSerial(t *testing.T) {
	m := newManager(t, handshake(0, newFakeTransport()), nil, nil)
	m.SetCandidates([]discovery.Device{&fakeDevice{serial: "A"}})

	assert.ErrorIs(t, m.Select("Z"), discovery.ErrNotFound)
	assert.Equal(t, "A", m.Selected().Serial())
}

func TestLastSerialRestored(t *testing.T) {
	ctx := context.Background()
	states := persistence.NewClientStateStore(persistence.NewMemoryStore())
	a := &fakeDevice{serial: "A", kind: discovery.KindTCP, peer: replyPeer}
	b := &fakeDevice{serial: "B", kind: discovery.KindTCP, peer: replyPeer}

	m, err := connection.NewManager(connection.Config{
		Authenticator: handshake(0, newFakeTransport()),
		ClientState:   states,
	})
	require.NoError(t, err)
	m.SetCandidates([]discovery.Device{a, b})
	require.NoError(t, m.Select("B"))
	require.NoError(t, m.Connect(ctx))
	require.NoError(t, m.Disconnect(ctx))

	restarted, err := connection.NewManager(connection.Config{
		Authenticator: handshake(0, newFakeTransport()),
		ClientState:   states,
	})
	require.NoError(t, err)
	restarted.SetCandidates([]discovery.Device{a, b})
	assert.Equal(t, "B", restarted.Selected().Serial())
}
