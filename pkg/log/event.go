package log

import (
	"time"
)

// Event represents a log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the session (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates frame flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Serial is the stable identifier of the device.
	Serial string `cbor:"6,keyasint,omitempty"`

	// Transport names the transport kind (usb, websocket, tcp).
	Transport string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"11,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"12,keyasint,omitempty"`
}

// Direction indicates the direction of frame flow.
type Direction uint8

const (
	// DirectionIn indicates a frame received from the device.
	DirectionIn Direction = 0
	// DirectionOut indicates a frame sent to the device.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "in"
	case DirectionOut:
		return "out"
	default:
		return "unknown"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerTransport is the stream layer (raw frames).
	LayerTransport Layer = 0
	// LayerSession is the authenticated connection layer.
	LayerSession Layer = 1
	// LayerMirror is the remote control layer.
	LayerMirror Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerSession:
		return "SESSION"
	case LayerMirror:
		return "MIRROR"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryPacket indicates a frame observed on the stream pair.
	CategoryPacket Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 1
	// CategoryError indicates an error event.
	CategoryError Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryPacket:
		return "PACKET"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MaxFrameDataSize is the maximum frame payload kept in a log event (4 KB).
// Larger frames are truncated to avoid excessive memory usage.
const MaxFrameDataSize = 4096

// FrameEvent captures raw frame data at the transport layer.
type FrameEvent struct {
	// Size is the full payload size in bytes.
	Size int `cbor:"1,keyasint"`

	// Data is the raw payload (may be truncated for large frames).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// NewFrameEvent builds a packet event for a frame, copying at most
// MaxFrameDataSize bytes of the payload.
func NewFrameEvent(connID string, direction Direction, data []byte) Event {
	keep := data
	truncated := false
	if len(keep) > MaxFrameDataSize {
		keep = keep[:MaxFrameDataSize]
		truncated = true
	}

	return Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    direction,
		Layer:        LayerTransport,
		Category:     CategoryPacket,
		Frame: &FrameEvent{
			Size:      len(data),
			Data:      append([]byte(nil), keep...),
			Truncated: truncated,
		},
	}
}

// StateChangeEvent captures session and remote control lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates a connection session state change.
	StateEntityConnection StateEntity = 0
	// StateEntityMirror indicates a remote control session state change.
	StateEntityMirror StateEntity = 1
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityMirror:
		return "MIRROR"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}
