package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sync"

	"github.com/Li-Yaosong/webadb2/pkg/transport"
	"github.com/Li-Yaosong/webadb2/pkg/wire"
)

// process is a running exec stream on the device side.
type process interface {
	// input delivers a Data frame from the client.
	input(data []byte)

	// stop ends the process after the client closed the stream.
	stop()
}

// pushState collects one incoming file.
type pushState struct {
	path string
	size int64
	mode fs.FileMode
	buf  bytes.Buffer
}

// session serves one authenticated connection.
type session struct {
	a       *Agent
	connID  string
	streams transport.Streams

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	writeMu sync.Mutex

	mu     sync.Mutex
	pushes map[uint32]*pushState
	procs  map[uint32]process
}

func newSession(a *Agent, connID string, streams transport.Streams) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		a:       a,
		connID:  connID,
		streams: streams,
		ctx:     ctx,
		cancel:  cancel,
		pushes:  make(map[uint32]*pushState),
		procs:   make(map[uint32]process),
	}
}

// run reads requests until the connection ends. A close message or a
// reboot ends it without error.
func (s *session) run() error {
	for {
		frame, err := s.streams.Reader.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, transport.ErrStreamClosed) {
				return nil
			}
			return err
		}
		msg, err := wire.DecodeMessage(frame)
		if err != nil {
			s.a.debugLog("dropping undecodable frame", "conn", s.connID, "error", err)
			continue
		}
		if done := s.handle(msg); done {
			return nil
		}
	}
}

// handle processes one message and reports whether the session is over.
func (s *session) handle(msg *wire.Message) bool {
	switch msg.Type {
	case wire.MsgRequest:
		return s.handleRequest(msg)

	case wire.MsgData:
		if p := s.push(msg.ID); p != nil {
			s.pushData(msg.ID, p, msg.Data)
		} else if proc := s.proc(msg.ID); proc != nil {
			proc.input(msg.Data)
		}

	case wire.MsgStreamClose:
		if p := s.takePush(msg.ID); p != nil {
			s.finishPush(msg.ID, p, msg.Code)
		} else if proc := s.takeProc(msg.ID); proc != nil {
			proc.stop()
		}

	case wire.MsgPing:
		s.send(&wire.Message{Type: wire.MsgPong, ID: msg.ID})

	case wire.MsgClose:
		s.a.debugLog("client closed the connection", "conn", s.connID)
		return true

	default:
		s.a.debugLog("ignoring message", "conn", s.connID, "type", msg.Type)
	}
	return false
}

func (s *session) handleRequest(msg *wire.Message) bool {
	switch msg.Op {
	case wire.OpPush:
		if len(msg.Args) == 0 || msg.Args[0] == "" {
			s.respond(msg.ID, wire.StatusInvalidParameter, errors.New("missing destination path"))
			return false
		}
		s.mu.Lock()
		s.pushes[msg.ID] = &pushState{path: msg.Args[0], size: msg.Size, mode: fs.FileMode(msg.Mode)}
		s.mu.Unlock()

	case wire.OpExec:
		s.exec(msg.ID, msg.Args)

	case wire.OpReboot:
		mode := ""
		if len(msg.Args) > 0 {
			mode = msg.Args[0]
		}
		s.a.emit(Event{Type: EventReboot, ConnectionID: s.connID, Mode: mode})
		s.respond(msg.ID, wire.StatusSuccess, nil)
		// The device goes down.
		s.send(&wire.Message{Type: wire.MsgClose})
		return true

	case wire.OpPowerButton:
		s.a.emit(Event{Type: EventPowerButton, ConnectionID: s.connID})
		s.respond(msg.ID, wire.StatusSuccess, nil)

	case wire.OpProperties:
		resp := wire.NewResponse(msg.ID, wire.StatusSuccess, nil)
		resp.Props = s.a.Properties()
		s.send(resp)

	default:
		s.respond(msg.ID, wire.StatusUnsupported, fmt.Errorf("operation %s", msg.Op))
	}
	return false
}

func (s *session) pushData(id uint32, p *pushState, data []byte) {
	p.buf.Write(data)
	if p.size >= 0 && int64(p.buf.Len()) > p.size {
		s.takePush(id)
		s.respond(id, wire.StatusSizeMismatch, fmt.Errorf("received more than %d bytes", p.size))
	}
}

func (s *session) finishPush(id uint32, p *pushState, code int32) {
	if code < 0 {
		s.a.debugLog("push aborted", "conn", s.connID, "path", p.path)
		return
	}
	n := int64(p.buf.Len())
	if p.size >= 0 && n != p.size {
		s.respond(id, wire.StatusSizeMismatch, fmt.Errorf("received %d of %d bytes", n, p.size))
		return
	}
	if err := s.a.storeFile(p.path, p.buf.Bytes(), p.mode); err != nil {
		s.respond(id, wire.StatusFailed, err)
		return
	}
	s.a.emit(Event{Type: EventPushed, ConnectionID: s.connID, Path: p.path, Size: n})
	s.respond(id, wire.StatusSuccess, nil)
}

func (s *session) push(id uint32) *pushState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushes[id]
}

func (s *session) takePush(id uint32) *pushState {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pushes[id]
	delete(s.pushes, id)
	return p
}

func (s *session) proc(id uint32) process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.procs[id]
}

func (s *session) takeProc(id uint32) process {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.procs[id]
	delete(s.procs, id)
	return p
}

func (s *session) addProc(id uint32, p process) {
	s.mu.Lock()
	s.procs[id] = p
	s.mu.Unlock()
}

// procExited removes id and tells the client the exit code, unless the
// client closed the stream first.
func (s *session) procExited(id uint32, code int, err error) {
	if s.takeProc(id) == nil {
		return
	}
	msg := &wire.Message{Type: wire.MsgStreamClose, ID: id, Code: int32(code)}
	if err != nil {
		msg.Error = err.Error()
	}
	s.send(msg)
}

// shutdown stops every process and waits for them.
func (s *session) shutdown() {
	s.cancel()
	s.mu.Lock()
	procs := s.procs
	s.procs = make(map[uint32]process)
	s.mu.Unlock()
	for _, p := range procs {
		p.stop()
	}
	s.wg.Wait()
}

func (s *session) respond(id uint32, status wire.Status, err error) {
	s.send(wire.NewResponse(id, status, err))
}

func (s *session) send(msg *wire.Message) {
	data, err := wire.EncodeMessage(msg)
	if err != nil {
		s.a.debugLog("encode failed", "conn", s.connID, "type", msg.Type, "error", err)
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.streams.Writer.WriteFrame(data); err != nil {
		s.a.debugLog("send failed", "conn", s.connID, "type", msg.Type, "error", err)
	}
}
