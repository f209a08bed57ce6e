package auth_test

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Li-Yaosong/webadb2/pkg/auth"
	"github.com/Li-Yaosong/webadb2/pkg/client"
	"github.com/Li-Yaosong/webadb2/pkg/discovery"
	"github.com/Li-Yaosong/webadb2/pkg/transport"
	"github.com/Li-Yaosong/webadb2/pkg/wire"
)

type acceptResult struct {
	pub ed25519.PublicKey
	err error
}

// runBoth runs the acceptor on one end of a pipe and the handshake on
// the other.
func runBoth(t *testing.T, h *auth.Handshake, a *auth.Acceptor) (*client.Client, acceptResult, error) {
	t.Helper()
	local, remote := transport.NewPipe()
	t.Cleanup(func() {
		local.Close()
		remote.Close()
	})

	results := make(chan acceptResult, 1)
	go func() {
		pub, err := a.Accept(context.Background(), remote)
		results <- acceptResult{pub: pub, err: err}
	}()

	c, err := h.Run(context.Background(), local)
	if c != nil {
		t.Cleanup(func() { _ = c.Close() })
	}
	if err != nil {
		// Unblock an acceptor still waiting for a signature.
		local.Close()
	}

	select {
	case res := <-results:
		return c, res, err
	case <-time.After(2 * time.Second):
		t.Fatal("acceptor did not finish")
		return nil, acceptResult{}, nil
	}
}

func newHandshake(t *testing.T, store auth.CredentialStore) *auth.Handshake {
	t.Helper()
	h, err := auth.NewHandshake(auth.Config{
		Store:  store,
		Name:   "test-host",
		Client: client.Config{DisableKeepAlive: true},
	})
	require.NoError(t, err)
	return h
}

func TestHandshakeKnownKey(t *testing.T) {
	key, err := auth.GenerateKey()
	require.NoError(t, err)

	trusted, err := auth.LoadAuthorizedKeys("")
	require.NoError(t, err)
	require.NoError(t, trusted.Add(key.Public().(ed25519.PublicKey), "laptop"))

	acceptor := &auth.Acceptor{
		Keys:  trusted,
		Props: map[string]string{client.PropSerial: "R58M123", client.PropModel: "Pixel 7"},
	}
	c, res, err := runBoth(t, newHandshake(t, auth.NewMemoryCredentialStore(key)), acceptor)

	require.NoError(t, err)
	require.NoError(t, res.err)
	assert.Equal(t, key.Public(), res.pub)
	assert.Equal(t, "R58M123", c.Banner().Serial)
	assert.Equal(t, "Pixel 7", c.Banner().Model)
}

func TestHandshakeSecondKeyAccepted(t *testing.T) {
	stale, err := auth.GenerateKey()
	require.NoError(t, err)
	good, err := auth.GenerateKey()
	require.NoError(t, err)

	trusted, err := auth.LoadAuthorizedKeys("")
	require.NoError(t, err)
	require.NoError(t, trusted.Add(good.Public().(ed25519.PublicKey), ""))

	store := auth.NewMemoryCredentialStore(stale, good)
	_, res, err := runBoth(t, newHandshake(t, store), &auth.Acceptor{Keys: trusted})

	require.NoError(t, err)
	require.NoError(t, res.err)
	assert.Equal(t, good.Public(), res.pub)

	keys, err := store.Keys()
	require.NoError(t, err)
	assert.Len(t, keys, 2, "no key generated when a stored key is accepted")
}

func TestHandshakeRejected(t *testing.T) {
	stale, err := auth.GenerateKey()
	require.NoError(t, err)
	trusted, err := auth.LoadAuthorizedKeys("")
	require.NoError(t, err)

	store := auth.NewMemoryCredentialStore(stale)
	_, res, err := runBoth(t, newHandshake(t, store), &auth.Acceptor{Keys: trusted, MaxAttempts: 2})

	assert.ErrorIs(t, err, auth.ErrRejected)
	assert.ErrorIs(t, res.err, auth.ErrRejected)
	assert.Zero(t, trusted.Len())

	keys, err := store.Keys()
	require.NoError(t, err)
	assert.Len(t, keys, 2, "a fresh key was generated and kept")
}

func TestHandshakeGivesUpAfterNewKey(t *testing.T) {
	trusted, err := auth.LoadAuthorizedKeys("")
	require.NoError(t, err)

	store := auth.NewMemoryCredentialStore()
	_, res, err := runBoth(t, newHandshake(t, store), &auth.Acceptor{Keys: trusted, MaxAttempts: 5})

	assert.ErrorIs(t, err, auth.ErrRejected)
	assert.Error(t, res.err)

	keys, err := store.Keys()
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestHandshakeTrustsNewKey(t *testing.T) {
	path := t.TempDir() + "/authorized_keys"
	trusted, err := auth.LoadAuthorizedKeys(path)
	require.NoError(t, err)
	store := auth.NewFileCredentialStore(t.TempDir() + "/keys/webadbkey")

	acceptor := &auth.Acceptor{Keys: trusted, TrustNewKeys: true}
	_, res, err := runBoth(t, newHandshake(t, store), acceptor)
	require.NoError(t, err)
	require.NoError(t, res.err)

	keys, err := store.Keys()
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, keys[0].Public(), res.pub)

	reloaded, err := auth.LoadAuthorizedKeys(path)
	require.NoError(t, err)
	assert.True(t, reloaded.Contains(res.pub))

	// The stored key is reused on the next connection.
	_, res, err = runBoth(t, newHandshake(t, store), &auth.Acceptor{Keys: reloaded})
	require.NoError(t, err)
	require.NoError(t, res.err)
	keys, err = store.Keys()
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestAcceptBadSignature(t *testing.T) {
	trusted, err := auth.LoadAuthorizedKeys("")
	require.NoError(t, err)
	local, remote := transport.NewPipe()
	defer local.Close()
	defer remote.Close()

	results := make(chan error, 1)
	go func() {
		_, err := (&auth.Acceptor{Keys: trusted}).Accept(context.Background(), remote)
		results <- err
	}()

	send := func(msg *wire.Message) {
		data, err := wire.EncodeMessage(msg)
		require.NoError(t, err)
		require.NoError(t, local.Writer.WriteFrame(data))
	}
	recv := func() *wire.Message {
		frame, err := local.Reader.ReadFrame()
		require.NoError(t, err)
		msg, err := wire.DecodeMessage(frame)
		require.NoError(t, err)
		return msg
	}

	send(&wire.Message{Type: wire.MsgHello})
	challenge := recv()
	require.Equal(t, wire.MsgChallenge, challenge.Type)
	assert.Len(t, challenge.Data, auth.NonceSize)

	key, err := auth.GenerateKey()
	require.NoError(t, err)
	send(&wire.Message{
		Type: wire.MsgSignature,
		Key:  key.Public().(ed25519.PublicKey),
		Data: ed25519.Sign(key, []byte("some other nonce")),
	})

	reject := recv()
	assert.Equal(t, wire.MsgReject, reject.Type)
	assert.ErrorIs(t, <-results, auth.ErrBadSignature)
}

func TestAcceptRequiresHello(t *testing.T) {
	trusted, err := auth.LoadAuthorizedKeys("")
	require.NoError(t, err)
	local, remote := transport.NewPipe()
	defer local.Close()
	defer remote.Close()

	data, err := wire.EncodeMessage(&wire.Message{Type: wire.MsgPing, ID: 1})
	require.NoError(t, err)
	require.NoError(t, local.Writer.WriteFrame(data))

	_, err = (&auth.Acceptor{Keys: trusted}).Accept(context.Background(), remote)
	assert.ErrorIs(t, err, auth.ErrUnexpectedMessage)
}

func TestHandshakeTimeout(t *testing.T) {
	key, err := auth.GenerateKey()
	require.NoError(t, err)
	h, err := auth.NewHandshake(auth.Config{
		Store:   auth.NewMemoryCredentialStore(key),
		Timeout: 30 * time.Millisecond,
	})
	require.NoError(t, err)

	local, remote := transport.NewPipe()
	defer local.Close()
	defer remote.Close()

	// The device never answers.
	_, err = h.Run(context.Background(), local)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAuthenticateReturnsTransport(t *testing.T) {
	key, err := auth.GenerateKey()
	require.NoError(t, err)
	trusted, err := auth.LoadAuthorizedKeys("")
	require.NoError(t, err)
	require.NoError(t, trusted.Add(key.Public().(ed25519.PublicKey), ""))

	local, remote := transport.NewPipe()
	defer local.Close()
	defer remote.Close()
	go func() {
		_, _ = (&auth.Acceptor{Keys: trusted}).Accept(context.Background(), remote)
	}()

	h := newHandshake(t, auth.NewMemoryCredentialStore(key))
	tr, err := h.Authenticate(context.Background(), discovery.NewTCPDevice("10.0.0.7", 5555), local)
	require.NoError(t, err)
	defer tr.Close()

	_, ok := tr.(*client.Client)
	assert.True(t, ok)
	assert.NoError(t, tr.Err())
}

func TestNewHandshakeRequiresStore(t *testing.T) {
	_, err := auth.NewHandshake(auth.Config{})
	assert.Error(t, err)
}
