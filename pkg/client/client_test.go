package client_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Li-Yaosong/webadb2/pkg/client"
	"github.com/Li-Yaosong/webadb2/pkg/transport"
	"github.com/Li-Yaosong/webadb2/pkg/wire"
)

// fakeDevice decodes every frame the client sends and hands it to a
// handler that can reply.
type fakeDevice struct {
	t       *testing.T
	streams transport.Streams

	mu   sync.Mutex
	seen []*wire.Message
}

func (d *fakeDevice) send(msg *wire.Message) {
	data, err := wire.EncodeMessage(msg)
	require.NoError(d.t, err)
	_ = d.streams.Writer.WriteFrame(data)
}

func (d *fakeDevice) messages() []*wire.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*wire.Message(nil), d.seen...)
}

func (d *fakeDevice) run(handle func(d *fakeDevice, msg *wire.Message)) {
	for {
		frame, err := d.streams.Reader.ReadFrame()
		if err != nil {
			return
		}
		msg, err := wire.DecodeMessage(frame)
		if err != nil {
			continue
		}
		d.mu.Lock()
		d.seen = append(d.seen, msg)
		d.mu.Unlock()
		if handle != nil {
			handle(d, msg)
		}
	}
}

func newClient(t *testing.T, config client.Config, handle func(d *fakeDevice, msg *wire.Message)) (*client.Client, *fakeDevice) {
	t.Helper()
	local, remote := transport.NewPipe()
	dev := &fakeDevice{t: t, streams: remote}
	go dev.run(handle)

	config.DisableKeepAlive = config.DisableKeepAlive || config.KeepAlive == (transport.KeepAliveConfig{})
	c := client.New(local, map[string]string{
		client.PropSerial:   "R58M123",
		client.PropModel:    "Pixel 7",
		client.PropFeatures: "shell_v2, cmd,,abb",
	}, config)
	t.Cleanup(func() {
		_ = c.Close()
		local.Close()
		remote.Close()
	})
	return c, dev
}

func respondOK(d *fakeDevice, msg *wire.Message) {
	if msg.Type == wire.MsgRequest {
		d.send(wire.NewResponse(msg.ID, wire.StatusSuccess, nil))
	}
}

func TestBanner(t *testing.T) {
	c, _ := newClient(t, client.Config{}, nil)

	b := c.Banner()
	assert.Equal(t, "R58M123", b.Serial)
	assert.Equal(t, "Pixel 7", b.Model)
	assert.Equal(t, []string{"shell_v2", "cmd", "abb"}, b.Features)
	assert.True(t, b.HasFeature("cmd"))
	assert.False(t, b.HasFeature("sendrecv_v2"))
	assert.Equal(t, "R58M123", c.HandshakeProperties()[client.PropSerial])
}

func TestProperties(t *testing.T) {
	c, _ := newClient(t, client.Config{}, func(d *fakeDevice, msg *wire.Message) {
		if msg.Op == wire.OpProperties {
			resp := wire.NewResponse(msg.ID, wire.StatusSuccess, nil)
			resp.Props = map[string]string{client.PropDevice: "panther"}
			d.send(resp)
		}
	})

	props, err := c.Properties(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "panther", props[client.PropDevice])
}

func TestReboot(t *testing.T) {
	c, dev := newClient(t, client.Config{}, respondOK)
	ctx := context.Background()

	require.NoError(t, c.Reboot(ctx, client.RebootNormal))
	require.NoError(t, c.Reboot(ctx, client.RebootEDL))
	require.NoError(t, c.PowerButton(ctx))

	msgs := dev.messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, wire.OpReboot, msgs[0].Op)
	assert.Empty(t, msgs[0].Args)
	assert.Equal(t, []string{"edl"}, msgs[1].Args)
	assert.Equal(t, wire.OpPowerButton, msgs[2].Op)
	assert.NotEqual(t, msgs[0].ID, msgs[1].ID)
}

func TestRebootInvalidMode(t *testing.T) {
	c, dev := newClient(t, client.Config{}, respondOK)

	err := c.Reboot(context.Background(), client.RebootMode("heaven"))
	assert.ErrorIs(t, err, client.ErrInvalidRebootMode)
	assert.Empty(t, dev.messages())
}

func TestRequestStatusError(t *testing.T) {
	c, _ := newClient(t, client.Config{}, func(d *fakeDevice, msg *wire.Message) {
		if msg.Type == wire.MsgRequest {
			d.send(wire.NewResponse(msg.ID, wire.StatusUnsupported, errors.New("no edl on this device")))
		}
	})

	err := c.Reboot(context.Background(), client.RebootEDL)
	require.Error(t, err)
	assert.True(t, client.IsStatus(err, wire.StatusUnsupported))
	assert.Contains(t, err.Error(), "no edl on this device")
}

func TestRequestContextCanceled(t *testing.T) {
	c, _ := newClient(t, client.Config{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.PowerButton(ctx), context.DeadlineExceeded)
}

func TestPush(t *testing.T) {
	var (
		mu       sync.Mutex
		received bytes.Buffer
		request  *wire.Message
	)
	c, _ := newClient(t, client.Config{ChunkSize: 4}, func(d *fakeDevice, msg *wire.Message) {
		mu.Lock()
		defer mu.Unlock()
		switch msg.Type {
		case wire.MsgRequest:
			request = msg
		case wire.MsgData:
			received.Write(msg.Data)
		case wire.MsgStreamClose:
			d.send(wire.NewResponse(msg.ID, wire.StatusSuccess, nil))
		}
	})

	payload := "0123456789"
	var progress []int64
	err := c.Push(context.Background(), "/data/local/tmp/server.jar", strings.NewReader(payload), int64(len(payload)), 0o644, func(sent int64) {
		progress = append(progress, sent)
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, payload, received.String())
	require.NotNil(t, request)
	assert.Equal(t, wire.OpPush, request.Op)
	assert.Equal(t, []string{"/data/local/tmp/server.jar"}, request.Args)
	assert.Equal(t, int64(10), request.Size)
	assert.Equal(t, uint32(0o644), request.Mode)
	assert.Equal(t, []int64{4, 8, 10}, progress)
}

func TestPushRejected(t *testing.T) {
	c, _ := newClient(t, client.Config{ChunkSize: 2}, func(d *fakeDevice, msg *wire.Message) {
		if msg.Type == wire.MsgRequest {
			d.send(wire.NewResponse(msg.ID, wire.StatusNotAuthorized, errors.New("read-only")))
		}
	})

	err := c.Push(context.Background(), "/system/x", strings.NewReader("abcdef"), 6, 0o600, nil)
	require.Error(t, err)
	assert.True(t, client.IsStatus(err, wire.StatusNotAuthorized))
}

func TestPushEmptyPath(t *testing.T) {
	c, _ := newClient(t, client.Config{}, nil)
	assert.Error(t, c.Push(context.Background(), "", strings.NewReader("x"), 1, 0o644, nil))
}

func TestExec(t *testing.T) {
	c, _ := newClient(t, client.Config{}, func(d *fakeDevice, msg *wire.Message) {
		switch msg.Type {
		case wire.MsgRequest:
			d.send(wire.NewResponse(msg.ID, wire.StatusSuccess, nil))
			d.send(&wire.Message{Type: wire.MsgData, ID: msg.ID, Data: []byte("hello ")})
			d.send(&wire.Message{Type: wire.MsgData, ID: msg.ID, Data: []byte("world")})
			d.send(&wire.Message{Type: wire.MsgStreamClose, ID: msg.ID, Code: 3})
		}
	})

	s, err := c.Exec(context.Background(), "echo", "hello", "world")
	require.NoError(t, err)

	out, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(out))

	code, err := s.Wait()
	assert.NoError(t, err)
	assert.Equal(t, 3, code)
}

func TestExecEcho(t *testing.T) {
	c, _ := newClient(t, client.Config{}, func(d *fakeDevice, msg *wire.Message) {
		switch msg.Type {
		case wire.MsgRequest:
			d.send(wire.NewResponse(msg.ID, wire.StatusSuccess, nil))
		case wire.MsgData:
			d.send(&wire.Message{Type: wire.MsgData, ID: msg.ID, Data: bytes.ToUpper(msg.Data)})
		}
	})

	s, err := c.Exec(context.Background(), "cat")
	require.NoError(t, err)

	_, err = s.Write([]byte("ping"))
	require.NoError(t, err)
	chunk, err := s.ReadChunk()
	require.NoError(t, err)
	assert.Equal(t, "PING", string(chunk))

	require.NoError(t, s.Close())
	<-s.Done()
	_, err = s.Write([]byte("late"))
	assert.ErrorIs(t, err, client.ErrClosed)
}

func TestExecEmpty(t *testing.T) {
	c, _ := newClient(t, client.Config{}, nil)
	_, err := c.Exec(context.Background())
	assert.Error(t, err)
}

func TestDeviceCloseIsGraceful(t *testing.T) {
	c, dev := newClient(t, client.Config{}, nil)

	dev.send(&wire.Message{Type: wire.MsgClose})

	select {
	case <-c.Disconnected():
	case <-time.After(time.Second):
		t.Fatal("client did not disconnect")
	}
	assert.NoError(t, c.Err())
	assert.ErrorIs(t, c.PowerButton(context.Background()), client.ErrClosed)
}

func TestStreamEndIsConnectionLost(t *testing.T) {
	c, dev := newClient(t, client.Config{}, nil)

	require.NoError(t, dev.streams.Writer.Close())

	select {
	case <-c.Disconnected():
	case <-time.After(time.Second):
		t.Fatal("client did not disconnect")
	}
	assert.ErrorIs(t, c.Err(), client.ErrConnectionLost)
	assert.ErrorIs(t, c.PowerButton(context.Background()), client.ErrConnectionLost)
}

func TestDisconnectFailsOpenStreams(t *testing.T) {
	c, dev := newClient(t, client.Config{}, respondOK)

	s, err := c.Exec(context.Background(), "logcat")
	require.NoError(t, err)

	dev.send(&wire.Message{Type: wire.MsgClose})

	_, err = s.Wait()
	assert.ErrorIs(t, err, client.ErrClosed)
}

func TestCloseSendsClose(t *testing.T) {
	c, dev := newClient(t, client.Config{}, nil)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.Eventually(t, func() bool {
		msgs := dev.messages()
		return len(msgs) == 1 && msgs[0].Type == wire.MsgClose
	}, time.Second, 5*time.Millisecond)
	assert.NoError(t, c.Err())
}

func TestPingAnswered(t *testing.T) {
	_, dev := newClient(t, client.Config{}, nil)

	dev.send(&wire.Message{Type: wire.MsgPing, ID: 7})

	assert.Eventually(t, func() bool {
		for _, m := range dev.messages() {
			if m.Type == wire.MsgPong && m.ID == 7 {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestKeepAliveTimeout(t *testing.T) {
	c, _ := newClient(t, client.Config{
		KeepAlive: transport.KeepAliveConfig{
			PingInterval:   10 * time.Millisecond,
			PongTimeout:    5 * time.Millisecond,
			MaxMissedPongs: 2,
		},
	}, nil)

	select {
	case <-c.Disconnected():
	case <-time.After(2 * time.Second):
		t.Fatal("keep-alive never fired")
	}
	assert.ErrorIs(t, c.Err(), client.ErrKeepAliveTimeout)
}

func TestKeepAliveSatisfied(t *testing.T) {
	c, _ := newClient(t, client.Config{
		KeepAlive: transport.KeepAliveConfig{
			PingInterval:   10 * time.Millisecond,
			PongTimeout:    50 * time.Millisecond,
			MaxMissedPongs: 2,
		},
	}, func(d *fakeDevice, msg *wire.Message) {
		if msg.Type == wire.MsgPing {
			d.send(&wire.Message{Type: wire.MsgPong, ID: msg.ID})
		}
	})

	time.Sleep(100 * time.Millisecond)
	select {
	case <-c.Disconnected():
		t.Fatalf("disconnected despite pongs: %v", c.Err())
	default:
	}
}

func TestRebootModes(t *testing.T) {
	assert.Equal(t, "normal", client.RebootNormal.String())
	assert.Equal(t, "download", client.RebootDownload.String())
	for _, m := range client.RebootModes {
		assert.True(t, m.IsValid(), m.String())
	}
	assert.False(t, client.RebootMode("fastbootd2").IsValid())
}
