package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultDialTimeout bounds DialTCP when the context has no deadline.
const DefaultDialTimeout = 10 * time.Second

// DialTCP opens a length-prefixed frame stream to addr ("host:port").
func DialTCP(ctx context.Context, addr string) (Streams, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultDialTimeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return Streams{}, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewConnStreams(conn), nil
}

// NewConnStreams frames an established net.Conn.
// Cancel stops the read side; Close closes the connection.
func NewConnStreams(conn net.Conn) Streams {
	c := &connStream{conn: conn, framer: NewFramer(conn)}
	return Streams{Reader: (*connReader)(c), Writer: (*connWriter)(c)}
}

type connStream struct {
	conn      net.Conn
	framer    *Framer
	canceled  atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

type connReader connStream

func (r *connReader) ReadFrame() ([]byte, error) {
	if r.canceled.Load() {
		return nil, ErrCanceled
	}
	data, err := r.framer.ReadFrame()
	if err != nil {
		if r.canceled.Load() {
			return nil, ErrCanceled
		}
		if r.closed.Load() || errors.Is(err, net.ErrClosed) {
			return nil, ErrStreamClosed
		}
		return nil, err
	}
	return data, nil
}

func (r *connReader) Cancel() error {
	if r.canceled.Swap(true) {
		return nil
	}
	// Unblocks a pending Read; the deadline error is mapped to ErrCanceled.
	if err := r.conn.SetReadDeadline(time.Now()); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

type connWriter connStream

func (w *connWriter) WriteFrame(data []byte) error {
	if w.closed.Load() {
		return ErrStreamClosed
	}
	return w.framer.WriteFrame(data)
}

func (w *connWriter) Close() error {
	w.closeOnce.Do(func() {
		w.closed.Store(true)
		w.closeErr = w.conn.Close()
	})
	return w.closeErr
}
