package decoder

import (
	"context"
	"errors"
	"io"
)

// ErrNoDecoder is returned when no registered backend is supported.
var ErrNoDecoder = errors.New("no supported video decoder")

// Config describes the video stream handed to a decoder.
type Config struct {
	// Codec is the elementary stream format, e.g. "h264".
	Codec string

	// Title labels a player window, if the backend opens one.
	Title string
}

// Decoder consumes encoded video packets.
type Decoder interface {
	io.Writer

	// Close releases the decoder. It is safe to call more than once.
	Close() error
}

// Backend creates decoders of one kind.
type Backend interface {
	// Name identifies the backend in config and logs.
	Name() string

	// Supported reports whether the platform can run this backend.
	// Registries call it at most once.
	Supported() bool

	// New starts a decoder.
	New(ctx context.Context, config Config) (Decoder, error)
}
