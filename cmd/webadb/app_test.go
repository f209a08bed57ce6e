package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Li-Yaosong/webadb2/internal/agent"
	"github.com/Li-Yaosong/webadb2/pkg/connection"
	"github.com/Li-Yaosong/webadb2/pkg/discovery"
	"github.com/Li-Yaosong/webadb2/pkg/discovery/mocks"
	"github.com/Li-Yaosong/webadb2/pkg/transport"
)

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Reset() {
	b.mu.Lock()
	b.buf.Reset()
	b.mu.Unlock()
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.StateDir = t.TempDir()
	cfg.MDNS.Enabled = false
	return cfg
}

func newTestApp(t *testing.T, cfg *Config) *App {
	t.Helper()
	app, err := NewApp(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, app.Start(context.Background()))
	t.Cleanup(func() { app.Close() })
	return app
}

// startAgent serves an agent over TCP and returns it with its address.
func startAgent(t *testing.T) (*agent.Agent, string) {
	t.Helper()
	a, err := agent.New(agent.Config{
		Serial:        "AGENT01",
		Model:         "Pixel Test",
		TrustNewKeys:  true,
		FrameInterval: 2 * time.Millisecond,
	})
	require.NoError(t, err)

	srv, err := transport.NewServer(transport.ServerConfig{
		Address:   "127.0.0.1:0",
		OnConnect: a.Serve,
	})
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { srv.Stop() })
	return a, srv.Addr().String()
}

func newTestShell(app *App) (*Shell, *syncBuffer) {
	out := &syncBuffer{}
	app.SetOutput(out)
	return &Shell{app: app, out: out}, out
}

func TestShellConnectAndInfo(t *testing.T) {
	_, addr := startAgent(t)
	app := newTestApp(t, testConfig(t))
	shell, out := newTestShell(app)
	ctx := context.Background()

	assert.False(t, shell.Execute(ctx, "add tcp "+addr))
	assert.Contains(t, out.String(), "Saved tcp device "+addr)

	out.Reset()
	shell.Execute(ctx, "devices")
	assert.Contains(t, out.String(), addr)

	out.Reset()
	shell.Execute(ctx, "connect "+addr)
	require.Equal(t, connection.StateConnected, app.manager.State(), out.String())
	assert.Contains(t, out.String(), "Connected: AGENT01 Pixel Test")

	out.Reset()
	shell.Execute(ctx, "info")
	assert.Contains(t, out.String(), "Serial:   AGENT01")
	assert.Contains(t, out.String(), "Model:    Pixel Test")

	out.Reset()
	shell.Execute(ctx, "status")
	assert.Contains(t, out.String(), "Session: CONNECTED")

	out.Reset()
	shell.Execute(ctx, "packets 5")
	assert.Contains(t, out.String(), "Frame")

	exported := filepath.Join(t.TempDir(), "session.wlog.lz4")
	out.Reset()
	shell.Execute(ctx, "log export "+exported)
	assert.Contains(t, out.String(), "(lz4)")
	info, err := os.Stat(exported)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	// Mirror commands need an artifact.
	out.Reset()
	shell.Execute(ctx, "key home")
	assert.Contains(t, out.String(), "Error: no mirror server artifact")

	shell.Execute(ctx, "disconnect")
	assert.Equal(t, connection.StateIdle, app.manager.State())
	assert.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte("Disconnected from "+addr))
	}, time.Second, 5*time.Millisecond)
}

func TestShellMirror(t *testing.T) {
	a, addr := startAgent(t)

	serverJar := filepath.Join(t.TempDir(), "server.jar")
	require.NoError(t, os.WriteFile(serverJar, []byte("server build"), 0o644))
	cfg := testConfig(t)
	cfg.Server.Artifact = serverJar
	cfg.Decoder = "dump"
	cfg.DumpDir = t.TempDir()

	app := newTestApp(t, cfg)
	shell, out := newTestShell(app)
	ctx := context.Background()

	require.NoError(t, app.ConnectTo(ctx, discovery.KindTCP, addr))

	shell.Execute(ctx, "mirror start")
	require.Contains(t, out.String(), "Mirroring")
	assert.Contains(t, out.String(), "Server started")

	stored, ok := a.File(cfg.Server.Path)
	require.True(t, ok)
	assert.Equal(t, "server build", string(stored))

	shell.Execute(ctx, "key home")
	shell.Execute(ctx, "tap 10 20 100 200")
	shell.Execute(ctx, "type ab")
	assert.Eventually(t, func() bool { return len(a.Controls()) == 8 }, time.Second, 5*time.Millisecond)

	out.Reset()
	shell.Execute(ctx, "key nosuchkey")
	assert.Contains(t, out.String(), `unknown key "nosuchkey"`)

	out.Reset()
	shell.Execute(ctx, "mirror status")
	assert.Contains(t, out.String(), "RUNNING")

	shell.Execute(ctx, "mirror stop")
	assert.Equal(t, "STOPPED", app.mirror.State().String())
}

func TestShellUsageErrors(t *testing.T) {
	app := newTestApp(t, testConfig(t))
	shell, out := newTestShell(app)
	ctx := context.Background()

	for _, line := range []string{"add", "add usb serial", "remove", "tap 1 2", "power", "log"} {
		out.Reset()
		assert.False(t, shell.Execute(ctx, line))
		assert.Contains(t, out.String(), "Error:", line)
	}

	out.Reset()
	shell.Execute(ctx, "info")
	assert.Contains(t, out.String(), connection.ErrNotConnected.Error())

	out.Reset()
	shell.Execute(ctx, "frobnicate")
	assert.Contains(t, out.String(), "Unknown command: frobnicate")

	assert.False(t, shell.Execute(ctx, "   "))
	assert.True(t, shell.Execute(ctx, "quit"))
}

func TestShellRemoveDevice(t *testing.T) {
	app := newTestApp(t, testConfig(t))
	shell, out := newTestShell(app)
	ctx := context.Background()

	shell.Execute(ctx, "add ws ws://192.168.1.20:8080/ws")
	require.Len(t, app.registry.Persisted(discovery.KindWebSocket), 1)

	shell.Execute(ctx, "remove ws://192.168.1.20:8080/ws")
	assert.Contains(t, out.String(), "Removed ws://192.168.1.20:8080/ws")
	assert.Empty(t, app.registry.Persisted(discovery.KindWebSocket))

	out.Reset()
	shell.Execute(ctx, "remove ws://192.168.1.20:8080/ws")
	assert.Contains(t, out.String(), "no saved device")
}

func TestRefreshKeepsDiscoveredOnSourceError(t *testing.T) {
	app := newTestApp(t, testConfig(t))
	ctx := context.Background()

	src := mocks.NewMockSource(t)
	src.EXPECT().Kind().Return(discovery.KindTCP)
	src.EXPECT().Devices(mock.Anything).Return(nil, errors.New("mdns down"))
	reg, err := discovery.NewRegistry(app.store, src)
	require.NoError(t, err)
	app.registry = reg

	discovered := discovery.NewTCPDevice("192.168.1.30", 5555)
	app.manager.SetCandidates([]discovery.Device{discovered})
	require.NoError(t, app.manager.Select(discovered.Serial()))

	_, err = app.AddDevice(ctx, discovery.KindWebSocket, "ws://192.168.1.20:8080/ws")
	require.NoError(t, err)
	_, err = app.AddDevice(ctx, discovery.KindTCP, "192.168.1.21:5555")
	require.NoError(t, err)

	assert.ElementsMatch(t,
		[]string{"192.168.1.30:5555", "ws://192.168.1.20:8080/ws", "192.168.1.21:5555"},
		serialsOf(app.manager.Candidates()))
	require.NotNil(t, app.manager.Selected())
	assert.Equal(t, discovered.Serial(), app.manager.Selected().Serial())

	require.NoError(t, app.RemoveDevice(ctx, "192.168.1.21:5555"))
	assert.ElementsMatch(t,
		[]string{"192.168.1.30:5555", "ws://192.168.1.20:8080/ws"},
		serialsOf(app.manager.Candidates()))
}

func serialsOf(devices []discovery.Device) []string {
	out := make([]string, len(devices))
	for i, d := range devices {
		out[i] = d.Serial()
	}
	return out
}

func TestAppSQLiteStorePersists(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store = StoreSQLite
	ctx := context.Background()

	app, err := NewApp(cfg, nil)
	require.NoError(t, err)
	_, err = app.AddDevice(ctx, discovery.KindTCP, "192.168.1.20:5555")
	require.NoError(t, err)
	require.NoError(t, app.Close())

	reopened := newTestApp(t, cfg)
	devices := reopened.registry.Persisted(discovery.KindTCP)
	require.Len(t, devices, 1)
	assert.Equal(t, "192.168.1.20:5555", devices[0].Serial())
}

func TestStatusRouter(t *testing.T) {
	_, addr := startAgent(t)
	app := newTestApp(t, testConfig(t))
	ctx := context.Background()
	require.NoError(t, app.ConnectTo(ctx, discovery.KindTCP, addr))

	srv := httptest.NewServer(newStatusRouter(app))
	defer srv.Close()

	get := func(path string, v any) int {
		t.Helper()
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		if v != nil {
			require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
		}
		return resp.StatusCode
	}

	var health map[string]string
	assert.Equal(t, http.StatusOK, get("/healthz", &health))
	assert.Equal(t, "ok", health["status"])

	var devices []deviceInfo
	assert.Equal(t, http.StatusOK, get("/devices", &devices))
	require.Len(t, devices, 1)
	assert.Equal(t, addr, devices[0].Serial)
	assert.Equal(t, "tcp", devices[0].Kind)
	assert.True(t, devices[0].Connected)

	var session sessionInfo
	assert.Equal(t, http.StatusOK, get("/session", &session))
	assert.Equal(t, "CONNECTED", session.State)
	assert.Equal(t, addr, session.Serial)
	assert.NotEmpty(t, session.ConnectionID)
	assert.Equal(t, "STOPPED", session.Mirror)

	var packets []packetInfo
	assert.Equal(t, http.StatusOK, get("/packets?direction=out&category=packet&limit=2", &packets))
	require.NotEmpty(t, packets)
	assert.LessOrEqual(t, len(packets), 2)
	for _, p := range packets {
		assert.Equal(t, "out", p.Direction)
		assert.Equal(t, session.ConnectionID, p.ConnectionID)
	}

	assert.Equal(t, http.StatusBadRequest, get("/packets?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, get("/packets?layer=wire", nil))

	var stats map[string]any
	assert.Equal(t, http.StatusOK, get("/packets/stats", &stats))
	assert.Positive(t, stats["out"])

	assert.Equal(t, http.StatusOK, get("/metrics", nil))
}

func TestStatusServerListens(t *testing.T) {
	cfg := testConfig(t)
	cfg.Status.Listen = "127.0.0.1:0"
	app := newTestApp(t, cfg)
	require.NotNil(t, app.statusAddr)

	resp, err := http.Get("http://" + app.statusAddr.String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
