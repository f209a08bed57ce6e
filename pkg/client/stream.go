package client

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/Li-Yaosong/webadb2/pkg/wire"
)

// Stream is a running device process. Output chunks are queued without
// bound so a slow reader never stalls the connection.
//
// Read and ReadChunk must not be mixed or called concurrently.
type Stream struct {
	c  *Client
	id uint32

	mu       sync.Mutex
	queue    [][]byte
	partial  []byte
	finished bool
	code     int
	err      error

	ready     chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	doneOnce  sync.Once
}

func newStream(c *Client, id uint32) *Stream {
	return &Stream{
		c:     c,
		id:    id,
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Exec starts args on the device and returns its stream once the device
// confirms the start.
func (c *Client) Exec(ctx context.Context, args ...string) (*Stream, error) {
	if len(args) == 0 {
		return nil, errors.New("exec: empty command")
	}

	id, ch, err := c.register()
	if err != nil {
		return nil, err
	}
	defer c.unregister(id)

	s := newStream(c, id)
	c.mu.Lock()
	c.execs[id] = s
	c.mu.Unlock()

	err = c.send(&wire.Message{Type: wire.MsgRequest, ID: id, Op: wire.OpExec, Args: args})
	if err == nil {
		_, err = c.await(ctx, wire.OpExec, ch)
	}
	if err != nil {
		c.mu.Lock()
		delete(c.execs, id)
		c.mu.Unlock()
		if ctx.Err() != nil {
			c.abortStream(id)
		}
		return nil, err
	}
	return s, nil
}

// ID returns the stream ID.
func (s *Stream) ID() uint32 { return s.id }

// Done is closed when the process exits or the stream is closed.
func (s *Stream) Done() <-chan struct{} { return s.done }

// ReadChunk returns the next output chunk as sent by the device.
// It returns io.EOF after the process exits and all output is read.
func (s *Stream) ReadChunk() ([]byte, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			chunk := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return chunk, nil
		}
		finished, err := s.finished, s.err
		s.mu.Unlock()

		if finished {
			if err != nil {
				return nil, err
			}
			return nil, io.EOF
		}

		select {
		case <-s.ready:
		case <-s.done:
		}
	}
}

// Read implements io.Reader over the output chunks.
func (s *Stream) Read(p []byte) (int, error) {
	if len(s.partial) == 0 {
		chunk, err := s.ReadChunk()
		if err != nil {
			return 0, err
		}
		s.partial = chunk
	}
	n := copy(p, s.partial)
	s.partial = s.partial[n:]
	return n, nil
}

// Write sends p to the process as one Data frame.
func (s *Stream) Write(p []byte) (int, error) {
	select {
	case <-s.done:
		return 0, ErrClosed
	default:
	}
	if len(p) == 0 {
		return 0, nil
	}
	if err := s.c.send(&wire.Message{Type: wire.MsgData, ID: s.id, Data: p}); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close terminates the process. Queued output is discarded.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.c.mu.Lock()
		_, open := s.c.execs[s.id]
		delete(s.c.execs, s.id)
		s.c.mu.Unlock()

		if open {
			err = s.c.send(&wire.Message{Type: wire.MsgStreamClose, ID: s.id, Code: -1})
			if errors.Is(err, ErrClosed) {
				err = nil
			}
		}
		s.mu.Lock()
		s.queue = nil
		s.mu.Unlock()
		s.finish(-1, nil)
	})
	return err
}

// Wait blocks until the process exits and returns its exit code.
func (s *Stream) Wait() (int, error) {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code, s.err
}

func (s *Stream) deliver(data []byte) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, data)
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
}

func (s *Stream) finish(code int, err error) {
	s.doneOnce.Do(func() {
		s.mu.Lock()
		s.finished = true
		s.code = code
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

var _ io.ReadWriteCloser = (*Stream)(nil)
