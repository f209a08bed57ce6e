package auth

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Li-Yaosong/webadb2/pkg/transport"
	"github.com/Li-Yaosong/webadb2/pkg/wire"
)

// NonceSize is the challenge length in bytes.
const NonceSize = 32

// DefaultMaxAttempts bounds the keys a device checks per handshake.
const DefaultMaxAttempts = 10

// ErrBadSignature is returned when a signature does not verify.
var ErrBadSignature = errors.New("signature verification failed")

// Acceptor is the device side of the handshake.
type Acceptor struct {
	// Keys is the trusted key list. Required.
	Keys *AuthorizedKeys

	// TrustNewKeys adds unknown keys instead of asking for another.
	TrustNewKeys bool

	// Props are sent with the accept message.
	Props map[string]string

	// MaxAttempts bounds the number of challenges. Default:
	// DefaultMaxAttempts.
	MaxAttempts int

	// Logger is the optional logger for debug output.
	Logger *slog.Logger
}

// Accept runs the handshake and returns the accepted public key.
func (a *Acceptor) Accept(ctx context.Context, streams transport.Streams) (ed25519.PublicKey, error) {
	if a.Keys == nil {
		return nil, errors.New("authorized keys are required")
	}
	attempts := a.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	hello, err := receive(ctx, streams)
	if err != nil {
		return nil, err
	}
	if hello.Type != wire.MsgHello {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedMessage, hello.Type)
	}

	for range attempts {
		nonce, err := NewNonce()
		if err != nil {
			return nil, err
		}
		if err := send(streams, &wire.Message{Type: wire.MsgChallenge, Data: nonce}); err != nil {
			return nil, err
		}

		msg, err := receive(ctx, streams)
		if err != nil {
			return nil, err
		}
		if msg.Type != wire.MsgSignature {
			return nil, fmt.Errorf("%w: %s", ErrUnexpectedMessage, msg.Type)
		}

		pub, err := VerifySignature(msg.Key, nonce, msg.Data)
		if err != nil {
			_ = send(streams, &wire.Message{Type: wire.MsgReject, Status: wire.StatusNotAuthorized, Error: err.Error()})
			return nil, err
		}

		if !a.Keys.Contains(pub) {
			if !a.TrustNewKeys {
				a.debugLog("unknown key", "fingerprint", Fingerprint(pub))
				continue
			}
			if err := a.Keys.Add(pub, hello.Props["client"]); err != nil {
				return nil, err
			}
			a.debugLog("trusted new key", "fingerprint", Fingerprint(pub))
		}

		if err := send(streams, &wire.Message{Type: wire.MsgAccept, Props: a.Props}); err != nil {
			return nil, err
		}
		return pub, nil
	}

	_ = send(streams, &wire.Message{Type: wire.MsgReject, Status: wire.StatusNotAuthorized, Error: "no trusted key offered"})
	return nil, ErrRejected
}

func (a *Acceptor) debugLog(msg string, args ...any) {
	if a.Logger != nil {
		a.Logger.Debug(msg, args...)
	}
}

// NewNonce returns a random challenge.
func NewNonce() ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return nonce, nil
}

// VerifySignature checks sig over nonce with key and returns the key.
func VerifySignature(key, nonce, sig []byte) (ed25519.PublicKey, error) {
	if len(key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: key length %d", ErrBadSignature, len(key))
	}
	pub := ed25519.PublicKey(key)
	if !ed25519.Verify(pub, nonce, sig) {
		return nil, ErrBadSignature
	}
	return pub, nil
}
