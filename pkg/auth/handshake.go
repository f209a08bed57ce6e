package auth

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Li-Yaosong/webadb2/pkg/client"
	"github.com/Li-Yaosong/webadb2/pkg/connection"
	"github.com/Li-Yaosong/webadb2/pkg/discovery"
	"github.com/Li-Yaosong/webadb2/pkg/transport"
	"github.com/Li-Yaosong/webadb2/pkg/wire"
)

// DefaultHandshakeTimeout bounds a handshake. A device showing a trust
// prompt needs a human, so it is generous.
const DefaultHandshakeTimeout = 60 * time.Second

// Handshake errors.
var (
	// ErrRejected is returned when the device refuses every offered key.
	ErrRejected = errors.New("device rejected authentication")

	// ErrUnexpectedMessage is returned for an out-of-order message.
	ErrUnexpectedMessage = errors.New("unexpected handshake message")
)

// Config configures a client-side Handshake.
type Config struct {
	// Store holds the client's keys. Required.
	Store CredentialStore

	// Name is announced in the hello message.
	Name string

	// Timeout bounds the handshake. Default: DefaultHandshakeTimeout.
	Timeout time.Duration

	// Client configures the client created on success.
	Client client.Config

	// Logger is the optional logger for debug output.
	Logger *slog.Logger
}

// Handshake authenticates a client to a device.
type Handshake struct {
	config Config
}

// NewHandshake creates a handshake.
func NewHandshake(config Config) (*Handshake, error) {
	if config.Store == nil {
		return nil, errors.New("credential store is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultHandshakeTimeout
	}
	if config.Name == "" {
		config.Name = "webadb"
	}
	return &Handshake{config: config}, nil
}

// Authenticate runs the handshake on streams for device.
func (h *Handshake) Authenticate(ctx context.Context, device discovery.Device, streams transport.Streams) (connection.Transport, error) {
	c, err := h.Run(ctx, streams)
	if err != nil {
		return nil, err
	}
	h.debugLog("authenticated", "serial", device.Serial(), "model", c.Banner().Model)
	return c, nil
}

// Run performs the handshake and returns the connected client.
// On failure the streams are left open for the caller to close.
func (h *Handshake) Run(ctx context.Context, streams transport.Streams) (*client.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	// Unblock the reader when ctx ends mid-handshake.
	stop := context.AfterFunc(ctx, func() { _ = streams.Reader.Cancel() })
	defer stop()

	hello := &wire.Message{Type: wire.MsgHello, Props: map[string]string{"client": h.config.Name}}
	if err := send(streams, hello); err != nil {
		return nil, err
	}

	keys, err := h.config.Store.Keys()
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	next := 0
	generated := false

	for {
		msg, err := receive(ctx, streams)
		if err != nil {
			return nil, err
		}

		switch msg.Type {
		case wire.MsgChallenge:
			var key ed25519.PrivateKey
			switch {
			case next < len(keys):
				key = keys[next]
				next++
			case !generated:
				if key, err = GenerateKey(); err != nil {
					return nil, err
				}
				if err := h.config.Store.Append(key); err != nil {
					return nil, fmt.Errorf("store credential: %w", err)
				}
				generated = true
				h.debugLog("offering new key", "fingerprint", Fingerprint(key.Public().(ed25519.PublicKey)))
			default:
				return nil, ErrRejected
			}
			sig := &wire.Message{
				Type: wire.MsgSignature,
				Key:  key.Public().(ed25519.PublicKey),
				Data: ed25519.Sign(key, msg.Data),
			}
			if err := send(streams, sig); err != nil {
				return nil, err
			}

		case wire.MsgAccept:
			if !stop() {
				// ctx ended as the device accepted; the reader is canceled.
				return nil, fmt.Errorf("handshake: %w", ctx.Err())
			}
			return client.New(streams, msg.Props, h.config.Client), nil

		case wire.MsgReject:
			return nil, fmt.Errorf("%w: %s", ErrRejected, msg.Error)

		default:
			return nil, fmt.Errorf("%w: %s", ErrUnexpectedMessage, msg.Type)
		}
	}
}

func (h *Handshake) debugLog(msg string, args ...any) {
	if h.config.Logger != nil {
		h.config.Logger.Debug(msg, args...)
	}
}

func send(streams transport.Streams, msg *wire.Message) error {
	data, err := wire.EncodeMessage(msg)
	if err != nil {
		return err
	}
	if err := streams.Writer.WriteFrame(data); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}
	return nil
}

func receive(ctx context.Context, streams transport.Streams) (*wire.Message, error) {
	frame, err := streams.Reader.ReadFrame()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("handshake: %w", ctx.Err())
		}
		return nil, fmt.Errorf("handshake read: %w", err)
	}
	return wire.DecodeMessage(frame)
}

var _ connection.Authenticator = (*Handshake)(nil)
