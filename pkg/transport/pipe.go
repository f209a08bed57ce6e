package transport

import (
	"io"
	"sync"
)

// pipeBuffer is the number of frames a pipe direction holds before
// WriteFrame blocks.
const pipeBuffer = 64

// NewPipe returns two connected Streams. Frames written to one end are
// read from the other. Closing a writer ends the peer's reads with io.EOF
// once buffered frames are drained.
func NewPipe() (Streams, Streams) {
	ab := newPipeChannel()
	ba := newPipeChannel()
	return Streams{Reader: (*pipeReader)(ba), Writer: (*pipeWriter)(ab)},
		Streams{Reader: (*pipeReader)(ab), Writer: (*pipeWriter)(ba)}
}

// pipeChannel carries frames in one direction.
type pipeChannel struct {
	frames     chan []byte
	closed     chan struct{}
	canceled   chan struct{}
	closeOnce  sync.Once
	cancelOnce sync.Once
}

func newPipeChannel() *pipeChannel {
	return &pipeChannel{
		frames:   make(chan []byte, pipeBuffer),
		closed:   make(chan struct{}),
		canceled: make(chan struct{}),
	}
}

type pipeReader pipeChannel

func (r *pipeReader) ReadFrame() ([]byte, error) {
	select {
	case <-r.canceled:
		return nil, ErrCanceled
	default:
	}

	select {
	case data := <-r.frames:
		return data, nil
	case <-r.canceled:
		return nil, ErrCanceled
	case <-r.closed:
		// Drain frames written before the close.
		select {
		case data := <-r.frames:
			return data, nil
		default:
			return nil, io.EOF
		}
	}
}

func (r *pipeReader) Cancel() error {
	r.cancelOnce.Do(func() { close(r.canceled) })
	return nil
}

type pipeWriter pipeChannel

func (w *pipeWriter) WriteFrame(data []byte) error {
	if len(data) == 0 {
		return ErrMessageEmpty
	}
	select {
	case <-w.closed:
		return ErrStreamClosed
	case <-w.canceled:
		return io.ErrClosedPipe
	default:
	}

	frame := append([]byte(nil), data...)
	select {
	case w.frames <- frame:
		return nil
	case <-w.closed:
		return ErrStreamClosed
	case <-w.canceled:
		return io.ErrClosedPipe
	}
}

func (w *pipeWriter) Close() error {
	w.closeOnce.Do(func() { close(w.closed) })
	return nil
}
