package transport

import "github.com/Li-Yaosong/webadb2/pkg/log"

// RecordFunc receives each frame passing a tap.
// Implementations must not retain or modify data.
type RecordFunc func(direction log.Direction, data []byte)

// Inspect returns a Streams that records every frame before passing it on.
// Outgoing frames are recorded before they are written, incoming frames as
// soon as they are read. Errors, Cancel and Close are forwarded unchanged.
func Inspect(s Streams, record RecordFunc) Streams {
	if record == nil {
		return s
	}
	return Streams{
		Reader: &inspectReader{inner: s.Reader, record: record},
		Writer: &inspectWriter{inner: s.Writer, record: record},
	}
}

type inspectReader struct {
	inner  FrameReader
	record RecordFunc
}

func (r *inspectReader) ReadFrame() ([]byte, error) {
	data, err := r.inner.ReadFrame()
	if err != nil {
		return nil, err
	}
	r.record(log.DirectionIn, data)
	return data, nil
}

func (r *inspectReader) Cancel() error { return r.inner.Cancel() }

type inspectWriter struct {
	inner  FrameWriter
	record RecordFunc
}

func (w *inspectWriter) WriteFrame(data []byte) error {
	w.record(log.DirectionOut, data)
	return w.inner.WriteFrame(data)
}

func (w *inspectWriter) Close() error { return w.inner.Close() }
