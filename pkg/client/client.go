package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/Li-Yaosong/webadb2/pkg/transport"
	"github.com/Li-Yaosong/webadb2/pkg/wire"
)

// DefaultChunkSize is the push payload size per Data frame.
const DefaultChunkSize = 64 * 1024

// Config configures a Client.
type Config struct {
	// ChunkSize is the push payload size per frame. Zero means
	// DefaultChunkSize; it is capped below the transport frame limit.
	ChunkSize int

	// KeepAlive configures the ping monitor. Zero fields take defaults.
	KeepAlive transport.KeepAliveConfig

	// DisableKeepAlive turns the ping monitor off.
	DisableKeepAlive bool

	// Logger is the optional logger for debug output.
	Logger *slog.Logger
}

// Client is an authenticated connection to a device.
type Client struct {
	streams   transport.Streams
	banner    Banner
	props     map[string]string
	config    Config
	keepalive *transport.KeepAlive

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  uint32
	pending map[uint32]chan *wire.Message
	execs   map[uint32]*Stream

	done     chan struct{}
	doneOnce sync.Once
	err      error
}

// New creates a client over authenticated streams and starts its read
// loop. props are the properties from the handshake accept.
func New(streams transport.Streams, props map[string]string, config Config) *Client {
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultChunkSize
	}
	// Leave room for the message envelope.
	if limit := transport.DefaultMaxMessageSize - 1024; config.ChunkSize > limit {
		config.ChunkSize = limit
	}

	c := &Client{
		streams: streams,
		banner:  ParseBanner(props),
		props:   props,
		config:  config,
		pending: make(map[uint32]chan *wire.Message),
		execs:   make(map[uint32]*Stream),
		done:    make(chan struct{}),
	}
	if !config.DisableKeepAlive {
		c.keepalive = transport.NewKeepAlive(config.KeepAlive, c.sendPing, func() {
			c.finish(ErrKeepAliveTimeout)
		})
	}

	go c.readLoop()
	if c.keepalive != nil {
		c.keepalive.Start(context.Background())
	}
	return c
}

// Banner returns the device identity from the handshake.
func (c *Client) Banner() Banner {
	return c.banner
}

// HandshakeProperties returns the raw handshake properties.
func (c *Client) HandshakeProperties() map[string]string {
	return c.props
}

// Disconnected is closed when the connection ends.
func (c *Client) Disconnected() <-chan struct{} {
	return c.done
}

// Err returns the disconnect cause, or nil for a graceful close or a
// client that is still connected.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close sends a close message and ends the client. The underlying
// streams are left to their owner.
func (c *Client) Close() error {
	select {
	case <-c.done:
		return nil
	default:
	}
	err := c.send(&wire.Message{Type: wire.MsgClose})
	c.finish(nil)
	if err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

// Reboot restarts the device into mode ("" for a normal reboot).
func (c *Client) Reboot(ctx context.Context, mode RebootMode) error {
	if !mode.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidRebootMode, mode)
	}
	msg := &wire.Message{Type: wire.MsgRequest, Op: wire.OpReboot}
	if mode != RebootNormal {
		msg.Args = []string{string(mode)}
	}
	_, err := c.request(ctx, msg)
	return err
}

// PowerButton emulates a short press of the power key.
func (c *Client) PowerButton(ctx context.Context) error {
	_, err := c.request(ctx, &wire.Message{Type: wire.MsgRequest, Op: wire.OpPowerButton})
	return err
}

// Properties reads the device property table.
func (c *Client) Properties(ctx context.Context) (map[string]string, error) {
	resp, err := c.request(ctx, &wire.Message{Type: wire.MsgRequest, Op: wire.OpProperties})
	if err != nil {
		return nil, err
	}
	if resp.Props == nil {
		return map[string]string{}, nil
	}
	return resp.Props, nil
}

// request sends msg under a fresh ID and waits for the response.
func (c *Client) request(ctx context.Context, msg *wire.Message) (*wire.Message, error) {
	id, ch, err := c.register()
	if err != nil {
		return nil, err
	}
	defer c.unregister(id)

	msg.ID = id
	if err := c.send(msg); err != nil {
		return nil, err
	}
	return c.await(ctx, msg.Op, ch)
}

func (c *Client) register() (uint32, chan *wire.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		return 0, nil, c.closedErrLocked()
	default:
	}
	c.nextID++
	if c.nextID == 0 {
		c.nextID = 1
	}
	ch := make(chan *wire.Message, 1)
	c.pending[c.nextID] = ch
	return c.nextID, ch, nil
}

func (c *Client) unregister(id uint32) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) await(ctx context.Context, op wire.Operation, ch <-chan *wire.Message) (*wire.Message, error) {
	select {
	case resp := <-ch:
		if resp.Status.IsError() {
			return nil, &StatusError{Op: op, Status: resp.Status, Message: resp.Error}
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, c.closedErr()
	}
}

func (c *Client) send(msg *wire.Message) error {
	data, err := wire.EncodeMessage(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.streams.Writer.WriteFrame(data); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}
	return nil
}

func (c *Client) sendPing(seq uint32) error {
	return c.send(&wire.Message{Type: wire.MsgPing, ID: seq})
}

func (c *Client) readLoop() {
	for {
		frame, err := c.streams.Reader.ReadFrame()
		if err != nil {
			switch {
			case errors.Is(err, transport.ErrCanceled), errors.Is(err, transport.ErrStreamClosed):
				c.finish(nil)
			case errors.Is(err, io.EOF):
				c.finish(ErrConnectionLost)
			default:
				c.finish(fmt.Errorf("%w: %w", ErrConnectionLost, err))
			}
			return
		}

		msg, err := wire.DecodeMessage(frame)
		if err != nil {
			c.debugLog("dropping undecodable frame", "error", err, "size", len(frame))
			continue
		}
		if !c.dispatch(msg) {
			return
		}
	}
}

// dispatch routes one message. It returns false when the read loop
// should stop.
func (c *Client) dispatch(msg *wire.Message) bool {
	switch msg.Type {
	case wire.MsgResponse:
		c.mu.Lock()
		ch := c.pending[msg.ID]
		delete(c.pending, msg.ID)
		c.mu.Unlock()
		if ch != nil {
			ch <- msg
		}

	case wire.MsgData:
		c.mu.Lock()
		s := c.execs[msg.ID]
		c.mu.Unlock()
		if s != nil {
			s.deliver(msg.Data)
		}

	case wire.MsgStreamClose:
		c.mu.Lock()
		s := c.execs[msg.ID]
		delete(c.execs, msg.ID)
		c.mu.Unlock()
		if s != nil {
			var err error
			if msg.Error != "" {
				err = errors.New(msg.Error)
			}
			s.finish(int(msg.Code), err)
		}

	case wire.MsgPing:
		if err := c.send(&wire.Message{Type: wire.MsgPong, ID: msg.ID}); err != nil {
			c.debugLog("pong failed", "error", err)
		}

	case wire.MsgPong:
		if c.keepalive != nil {
			c.keepalive.PongReceived(msg.ID)
		}

	case wire.MsgClose:
		c.debugLog("device closed the connection")
		c.finish(nil)
		return false

	default:
		c.debugLog("ignoring message", "type", msg.Type)
	}
	return true
}

// finish ends the client once, failing open streams.
func (c *Client) finish(err error) {
	c.doneOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		execs := c.execs
		c.execs = make(map[uint32]*Stream)
		c.mu.Unlock()

		if c.keepalive != nil {
			c.keepalive.Stop()
		}
		close(c.done)

		for _, s := range execs {
			s.finish(-1, ErrClosed)
		}
		c.debugLog("client finished", "error", err)
	})
}

func (c *Client) closedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closedErrLocked()
}

func (c *Client) closedErrLocked() error {
	if c.err != nil {
		return fmt.Errorf("%w: %w", ErrClosed, c.err)
	}
	return ErrClosed
}

func (c *Client) debugLog(msg string, args ...any) {
	if c.config.Logger != nil {
		c.config.Logger.Debug(msg, args...)
	}
}
