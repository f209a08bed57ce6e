package mirror

import (
	"errors"
	"sync"

	"golang.org/x/term"
)

// InputCapture grants exclusive keyboard input to the mirror.
type InputCapture interface {
	// Supported reports whether capture is possible here.
	Supported() bool
	Lock() error
	Unlock() error
}

// TerminalCapture captures a terminal by switching it to raw mode, so
// control keys reach the device instead of the shell.
type TerminalCapture struct {
	fd int

	mu    sync.Mutex
	state *term.State
}

// NewTerminalCapture captures the terminal on fd, usually os.Stdin.
func NewTerminalCapture(fd int) *TerminalCapture {
	return &TerminalCapture{fd: fd}
}

// Supported reports whether fd is a terminal.
func (c *TerminalCapture) Supported() bool {
	return term.IsTerminal(c.fd)
}

// Lock puts the terminal into raw mode.
func (c *TerminalCapture) Lock() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != nil {
		return errors.New("terminal already captured")
	}
	state, err := term.MakeRaw(c.fd)
	if err != nil {
		return err
	}
	c.state = state
	return nil
}

// Unlock restores the terminal mode saved by Lock.
func (c *TerminalCapture) Unlock() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return nil
	}
	err := term.Restore(c.fd, c.state)
	c.state = nil
	return err
}

var _ InputCapture = (*TerminalCapture)(nil)
