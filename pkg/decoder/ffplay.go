package decoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// FFplay pipes the stream into an ffplay window.
type FFplay struct {
	// Path is the ffplay binary. Default: looked up on PATH.
	Path string
}

// Name returns "ffplay".
func (f *FFplay) Name() string { return "ffplay" }

// Supported reports whether the ffplay binary can be found.
func (f *FFplay) Supported() bool {
	_, err := exec.LookPath(f.binary())
	return err == nil
}

func (f *FFplay) binary() string {
	if f.Path != "" {
		return f.Path
	}
	return "ffplay"
}

// New starts ffplay reading the stream from stdin.
func (f *FFplay) New(ctx context.Context, config Config) (Decoder, error) {
	codec := config.Codec
	if codec == "" {
		codec = "h264"
	}
	args := []string{
		"-loglevel", "error",
		"-fflags", "nobuffer",
		"-flags", "low_delay",
		"-framedrop",
		"-f", codec,
	}
	if config.Title != "" {
		args = append(args, "-window_title", config.Title)
	}
	args = append(args, "-i", "-")

	cmd := exec.CommandContext(ctx, f.binary(), args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffplay: %w", err)
	}
	return &processDecoder{cmd: cmd, stdin: stdin}, nil
}

// processDecoder feeds a child process through its stdin.
type processDecoder struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	closeOnce sync.Once
	closeErr  error
}

func (p *processDecoder) Write(b []byte) (int, error) {
	return p.stdin.Write(b)
}

func (p *processDecoder) Close() error {
	p.closeOnce.Do(func() {
		_ = p.stdin.Close()
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
		err := p.cmd.Wait()
		var exitErr *exec.ExitError
		// A killed player is the normal way to end.
		if err != nil && !errors.As(err, &exitErr) {
			p.closeErr = err
		}
	})
	return p.closeErr
}

var _ Backend = (*FFplay)(nil)
