package transport

import (
	"errors"
)

// Stream errors.
var (
	// ErrStreamClosed indicates the write side was closed.
	ErrStreamClosed = errors.New("stream closed")

	// ErrCanceled indicates the read side was canceled.
	ErrCanceled = errors.New("stream canceled")
)

// FrameReader is the readable half of a device stream.
type FrameReader interface {
	// ReadFrame blocks until the next frame arrives.
	// Returns io.EOF when the peer closed its write side.
	ReadFrame() ([]byte, error)

	// Cancel aborts pending and future reads.
	Cancel() error
}

// FrameWriter is the writable half of a device stream.
type FrameWriter interface {
	// WriteFrame sends one frame. Safe for concurrent use.
	WriteFrame(data []byte) error

	// Close releases the write side.
	Close() error
}

// Streams is the duplex pair produced by opening a device.
type Streams struct {
	Reader FrameReader
	Writer FrameWriter
}

// Close cancels the read side and closes the write side.
// The read side error is ignored; the write side error is returned.
func (s Streams) Close() error {
	if s.Reader != nil {
		_ = s.Reader.Cancel()
	}
	if s.Writer != nil {
		return s.Writer.Close()
	}
	return nil
}

// Compile-time interface satisfaction checks.
var (
	_ FrameReader = (*pipeReader)(nil)
	_ FrameWriter = (*pipeWriter)(nil)
	_ FrameReader = (*connReader)(nil)
	_ FrameWriter = (*connWriter)(nil)
	_ FrameReader = (*wsReader)(nil)
	_ FrameWriter = (*wsWriter)(nil)
	_ FrameReader = (*inspectReader)(nil)
	_ FrameWriter = (*inspectWriter)(nil)
)
