package agent

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/Li-Yaosong/webadb2/pkg/wire"
)

const classPathFlag = "-Djava.class.path="

// exec starts the process for an OpExec request.
func (s *session) exec(id uint32, args []string) {
	if len(args) == 0 || args[0] == "" {
		s.respond(id, wire.StatusInvalidParameter, errors.New("empty command"))
		return
	}
	if args[0] == MirrorCommand {
		s.startMirror(id, args[1:])
		return
	}
	if !s.a.config.AllowExec {
		s.respond(id, wire.StatusUnsupported, fmt.Errorf("exec %s: disabled", args[0]))
		return
	}
	s.startCommand(id, args)
}

// mirrorServer emulates the on-device mirror server: synthetic video
// out, input controls in.
type mirrorServer struct {
	s      *session
	id     uint32
	cancel context.CancelFunc
}

func (s *session) startMirror(id uint32, args []string) {
	var classPath string
	for _, arg := range args {
		if v, ok := strings.CutPrefix(arg, classPathFlag); ok {
			classPath = v
		}
	}
	if classPath == "" {
		s.respond(id, wire.StatusInvalidParameter, errors.New("missing class path"))
		return
	}
	if _, ok := s.a.File(classPath); !ok {
		s.respond(id, wire.StatusNotFound, fmt.Errorf("%s: no such file", classPath))
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	m := &mirrorServer{s: s, id: id, cancel: cancel}
	s.addProc(id, m)
	s.respond(id, wire.StatusSuccess, nil)
	s.a.emit(Event{Type: EventMirrorStarted, ConnectionID: s.connID, Path: classPath})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		m.stream(ctx)
		s.a.emit(Event{Type: EventMirrorStopped, ConnectionID: s.connID})
	}()
}

// stream sends one synthetic frame per interval until ctx ends.
func (m *mirrorServer) stream(ctx context.Context) {
	ticker := time.NewTicker(m.s.a.config.FrameInterval)
	defer ticker.Stop()

	var seq uint32
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		seq++
		m.s.send(&wire.Message{Type: wire.MsgData, ID: m.id, Data: syntheticFrame(seq)})
	}
}

func (m *mirrorServer) input(data []byte) {
	c, err := wire.DecodeControl(data)
	if err != nil {
		m.s.a.debugLog("dropping invalid control", "conn", m.s.connID, "error", err)
		return
	}
	m.s.a.recordControl(c)
	m.s.a.emit(Event{Type: EventControl, ConnectionID: m.s.connID, Control: c})
}

func (m *mirrorServer) stop() {
	m.cancel()
}

// syntheticFrame is an Annex B start code followed by the sequence
// number.
func syntheticFrame(seq uint32) []byte {
	frame := []byte{0, 0, 0, 1, 0x65, 0, 0, 0, 0}
	binary.BigEndian.PutUint32(frame[5:], seq)
	return frame
}

// command is a host process run for OpExec.
type command struct {
	s      *session
	id     uint32
	cancel context.CancelFunc
	stdin  io.WriteCloser

	mu      sync.Mutex
	stopped bool
}

func (s *session) startCommand(id uint32, args []string) {
	ctx, cancel := context.WithCancel(s.ctx)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)

	ready := make(chan struct{})
	out := &outputWriter{s: s, id: id, ready: ready}
	cmd.Stdout = out
	cmd.Stderr = out
	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		s.respond(id, wire.StatusFailed, err)
		return
	}
	if err := cmd.Start(); err != nil {
		cancel()
		status := wire.StatusFailed
		if errors.Is(err, exec.ErrNotFound) {
			status = wire.StatusNotFound
		}
		s.respond(id, status, err)
		return
	}

	c := &command{s: s, id: id, cancel: cancel, stdin: stdin}
	s.addProc(id, c)
	s.respond(id, wire.StatusSuccess, nil)
	close(ready)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		err := cmd.Wait()
		code := 0
		var exitErr *exec.ExitError
		switch {
		case err == nil:
		case errors.As(err, &exitErr):
			code, err = exitErr.ExitCode(), nil
		default:
			code = -1
		}
		s.procExited(id, code, err)
	}()
}

func (c *command) input(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	if _, err := c.stdin.Write(data); err != nil {
		c.s.a.debugLog("stdin write failed", "conn", c.s.connID, "error", err)
	}
}

func (c *command) stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
	_ = c.stdin.Close()
	c.cancel()
}

// outputWriter forwards process output as Data frames once the start
// response is out.
type outputWriter struct {
	s     *session
	id    uint32
	ready <-chan struct{}
	mu    sync.Mutex
}

func (w *outputWriter) Write(p []byte) (int, error) {
	<-w.ready
	w.mu.Lock()
	defer w.mu.Unlock()
	w.s.send(&wire.Message{Type: wire.MsgData, ID: w.id, Data: append([]byte(nil), p...)})
	return len(p), nil
}
