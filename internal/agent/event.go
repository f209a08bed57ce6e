package agent

import "github.com/Li-Yaosong/webadb2/pkg/wire"

// EventType identifies an agent event.
type EventType uint8

const (
	// EventConnected - a client authenticated.
	EventConnected EventType = iota

	// EventDisconnected - an authenticated client went away.
	EventDisconnected

	// EventPushed - a file push completed.
	EventPushed

	// EventReboot - a reboot was requested.
	EventReboot

	// EventPowerButton - the power key was pressed.
	EventPowerButton

	// EventMirrorStarted - the mirror server started.
	EventMirrorStarted

	// EventMirrorStopped - the mirror server stopped.
	EventMirrorStopped

	// EventControl - the mirror server received an input control.
	EventControl
)

// String returns the event name.
func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "CONNECTED"
	case EventDisconnected:
		return "DISCONNECTED"
	case EventPushed:
		return "PUSHED"
	case EventReboot:
		return "REBOOT"
	case EventPowerButton:
		return "POWER_BUTTON"
	case EventMirrorStarted:
		return "MIRROR_STARTED"
	case EventMirrorStopped:
		return "MIRROR_STOPPED"
	case EventControl:
		return "CONTROL"
	default:
		return "UNKNOWN"
	}
}

// Event is emitted for device activity.
type Event struct {
	Type         EventType
	ConnectionID string

	// Fingerprint identifies the client key.
	Fingerprint string

	// Path is the pushed file (EventPushed).
	Path string

	// Size is the pushed length (EventPushed).
	Size int64

	// Mode is the reboot target (EventReboot).
	Mode string

	// Control is the received input (EventControl).
	Control *wire.Control
}

// EventHandler receives agent events.
type EventHandler func(Event)
