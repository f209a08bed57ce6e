package decoder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Dump writes the raw stream to a file instead of decoding it. It is
// always supported, so it is the last resort in a registry.
type Dump struct {
	// Dir receives the files. Default: the working directory.
	Dir string
}

// Name returns "dump".
func (d *Dump) Name() string { return "dump" }

// Supported always returns true.
func (d *Dump) Supported() bool { return true }

// New creates mirror-<timestamp>.<codec> in Dir.
func (d *Dump) New(ctx context.Context, config Config) (Decoder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	codec := config.Codec
	if codec == "" {
		codec = "h264"
	}
	name := fmt.Sprintf("mirror-%s.%s", time.Now().Format("20060102-150405.000"), codec)
	path := filepath.Join(d.Dir, name)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create dump file: %w", err)
	}
	return &fileDecoder{f: f}, nil
}

type fileDecoder struct {
	mu     sync.Mutex
	f      *os.File
	closed bool
}

func (d *fileDecoder) Write(b []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, os.ErrClosed
	}
	return d.f.Write(b)
}

func (d *fileDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.f.Close()
}

// Path returns the file being written.
func (d *fileDecoder) Path() string { return d.f.Name() }

var _ Backend = (*Dump)(nil)
