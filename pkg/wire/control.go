package wire

import "fmt"

// ControlType identifies an input control event.
type ControlType uint8

const (
	// ControlKey injects a key press or release.
	ControlKey ControlType = 1

	// ControlPointer injects a touch or mouse pointer event.
	ControlPointer ControlType = 2

	// ControlScroll injects a scroll wheel event.
	ControlScroll ControlType = 3

	// ControlBackOrScreenOn presses back, or turns the screen on.
	ControlBackOrScreenOn ControlType = 4
)

// String returns the control type name.
func (t ControlType) String() string {
	switch t {
	case ControlKey:
		return "KEY"
	case ControlPointer:
		return "POINTER"
	case ControlScroll:
		return "SCROLL"
	case ControlBackOrScreenOn:
		return "BACK_OR_SCREEN_ON"
	default:
		return "UNKNOWN"
	}
}

// Action is a key or pointer action.
type Action uint8

const (
	ActionDown Action = 0
	ActionUp   Action = 1
	ActionMove Action = 2
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case ActionDown:
		return "DOWN"
	case ActionUp:
		return "UP"
	case ActionMove:
		return "MOVE"
	default:
		return "UNKNOWN"
	}
}

// Control is an input event for the remote-control server.
//
// CBOR encoding:
//
//	{
//	  1: type,      // uint8
//	  2: action,    // uint8
//	  3: code,      // uint32: key code
//	  4: meta,      // uint32: modifier state
//	  5: pointer,   // uint64: pointer ID
//	  6: x,         // int32
//	  7: y,         // int32
//	  8: width,     // uint16: screen width the position refers to
//	  9: height,    // uint16
//	  10: buttons,  // uint32: mouse button mask
//	  11: dx,       // int32: scroll delta
//	  12: dy        // int32
//	}
type Control struct {
	Type    ControlType `cbor:"1,keyasint"`
	Action  Action      `cbor:"2,keyasint"`
	Code    uint32      `cbor:"3,keyasint,omitempty"`
	Meta    uint32      `cbor:"4,keyasint,omitempty"`
	Pointer uint64      `cbor:"5,keyasint,omitempty"`
	X       int32       `cbor:"6,keyasint,omitempty"`
	Y       int32       `cbor:"7,keyasint,omitempty"`
	Width   uint16      `cbor:"8,keyasint,omitempty"`
	Height  uint16      `cbor:"9,keyasint,omitempty"`
	Buttons uint32      `cbor:"10,keyasint,omitempty"`
	DX      int32       `cbor:"11,keyasint,omitempty"`
	DY      int32       `cbor:"12,keyasint,omitempty"`
}

// Validate checks the control type and action.
func (c *Control) Validate() error {
	switch c.Type {
	case ControlKey, ControlBackOrScreenOn:
		if c.Action != ActionDown && c.Action != ActionUp {
			return fmt.Errorf("invalid %s action: %s", c.Type, c.Action)
		}
	case ControlPointer:
		if c.Action > ActionMove {
			return fmt.Errorf("invalid pointer action: %d", c.Action)
		}
	case ControlScroll:
	default:
		return fmt.Errorf("unknown control type: %d", c.Type)
	}
	return nil
}
