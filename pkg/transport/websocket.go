package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// closeWriteWait bounds the close handshake on a WebSocket stream.
const closeWriteWait = time.Second

// DialWebSocket opens a frame stream to a WebSocket relay at url.
// Each frame travels as one binary message.
func DialWebSocket(ctx context.Context, url string, header http.Header) (Streams, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: DefaultDialTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return Streams{}, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return Streams{}, fmt.Errorf("dial %s: %w", url, err)
	}
	conn.SetReadLimit(DefaultMaxMessageSize)
	return NewWebSocketStreams(conn), nil
}

// NewWebSocketStreams wraps an established WebSocket connection.
func NewWebSocketStreams(conn *websocket.Conn) Streams {
	s := &wsStream{conn: conn}
	return Streams{Reader: (*wsReader)(s), Writer: (*wsWriter)(s)}
}

type wsStream struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	canceled  atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

type wsReader wsStream

func (r *wsReader) ReadFrame() ([]byte, error) {
	for {
		if r.canceled.Load() {
			return nil, ErrCanceled
		}
		mt, data, err := r.conn.ReadMessage()
		if err != nil {
			switch {
			case r.canceled.Load():
				return nil, ErrCanceled
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				return nil, io.EOF
			case r.closed.Load() || errors.Is(err, net.ErrClosed):
				return nil, ErrStreamClosed
			}
			return nil, err
		}
		if mt != websocket.BinaryMessage || len(data) == 0 {
			continue
		}
		return data, nil
	}
}

func (r *wsReader) Cancel() error {
	if r.canceled.Swap(true) {
		return nil
	}
	if err := r.conn.SetReadDeadline(time.Now()); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

type wsWriter wsStream

func (w *wsWriter) WriteFrame(data []byte) error {
	if len(data) == 0 {
		return ErrMessageEmpty
	}
	if w.closed.Load() {
		return ErrStreamClosed
	}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := w.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func (w *wsWriter) Close() error {
	w.closeOnce.Do(func() {
		w.closed.Store(true)

		w.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait))
		w.writeMu.Unlock()

		w.closeErr = w.conn.Close()
	})
	return w.closeErr
}
