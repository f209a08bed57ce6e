package mirror

import (
	"github.com/Li-Yaosong/webadb2/pkg/wire"
)

// Pointer describes a pointer event in screen coordinates.
type Pointer struct {
	ID      uint64
	X, Y    int32
	Width   uint16
	Height  uint16
	Buttons uint32
}

// InjectKey forwards a key event. A down for a key that is already held
// and an up for a key that is not held are dropped.
func (o *Orchestrator) InjectKey(action wire.Action, code, meta uint32) error {
	r, err := o.running()
	if err != nil {
		return err
	}
	switch action {
	case wire.ActionDown:
		if !r.keyboard.Down(code) {
			return nil
		}
	case wire.ActionUp:
		if !r.keyboard.Up(code) {
			return nil
		}
	}
	return o.sendControl(r, &wire.Control{Type: wire.ControlKey, Action: action, Code: code, Meta: meta})
}

// PressKey sends a full down and up for code.
func (o *Orchestrator) PressKey(code, meta uint32) error {
	if err := o.InjectKey(wire.ActionDown, code, meta); err != nil {
		return err
	}
	return o.InjectKey(wire.ActionUp, code, meta)
}

// InjectPointer forwards a touch or mouse event.
func (o *Orchestrator) InjectPointer(action wire.Action, p Pointer) error {
	r, err := o.running()
	if err != nil {
		return err
	}
	return o.sendControl(r, &wire.Control{
		Type:    wire.ControlPointer,
		Action:  action,
		Pointer: p.ID,
		X:       p.X,
		Y:       p.Y,
		Width:   p.Width,
		Height:  p.Height,
		Buttons: p.Buttons,
	})
}

// InjectScroll forwards a scroll at p.
func (o *Orchestrator) InjectScroll(p Pointer, dx, dy int32) error {
	r, err := o.running()
	if err != nil {
		return err
	}
	return o.sendControl(r, &wire.Control{
		Type:   wire.ControlScroll,
		X:      p.X,
		Y:      p.Y,
		Width:  p.Width,
		Height: p.Height,
		DX:     dx,
		DY:     dy,
	})
}

// BackOrScreenOn presses back, or wakes the screen when it is off.
func (o *Orchestrator) BackOrScreenOn() error {
	r, err := o.running()
	if err != nil {
		return err
	}
	for _, action := range []wire.Action{wire.ActionDown, wire.ActionUp} {
		if err := o.sendControl(r, &wire.Control{Type: wire.ControlBackOrScreenOn, Action: action}); err != nil {
			return err
		}
	}
	return nil
}

// Blur handles focus loss: every held key is released on the device.
func (o *Orchestrator) Blur() error {
	r, err := o.running()
	if err != nil {
		return err
	}
	var first error
	for _, code := range r.keyboard.Reset() {
		err := o.sendControl(r, &wire.Control{Type: wire.ControlKey, Action: wire.ActionUp, Code: code})
		if err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (o *Orchestrator) running() (*run, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.status.State != StateRunning || o.run == nil {
		return nil, ErrNotRunning
	}
	return o.run, nil
}

func (o *Orchestrator) sendControl(r *run, c *wire.Control) error {
	data, err := wire.EncodeControl(c)
	if err != nil {
		return err
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	_, err = r.stream.Write(data)
	return err
}
