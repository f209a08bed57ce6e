package wire

import (
	"fmt"
)

// MessageType identifies a wire message.
type MessageType uint8

const (
	// Handshake.
	MsgHello     MessageType = 1
	MsgChallenge MessageType = 2
	MsgSignature MessageType = 3
	MsgAccept    MessageType = 4
	MsgReject    MessageType = 5

	// Requests and streams.
	MsgRequest     MessageType = 10
	MsgResponse    MessageType = 11
	MsgData        MessageType = 12
	MsgStreamClose MessageType = 13

	// Connection control.
	MsgPing  MessageType = 20
	MsgPong  MessageType = 21
	MsgClose MessageType = 22
)

// String returns the message type name.
func (t MessageType) String() string {
	switch t {
	case MsgHello:
		return "HELLO"
	case MsgChallenge:
		return "CHALLENGE"
	case MsgSignature:
		return "SIGNATURE"
	case MsgAccept:
		return "ACCEPT"
	case MsgReject:
		return "REJECT"
	case MsgRequest:
		return "REQUEST"
	case MsgResponse:
		return "RESPONSE"
	case MsgData:
		return "DATA"
	case MsgStreamClose:
		return "STREAM_CLOSE"
	case MsgPing:
		return "PING"
	case MsgPong:
		return "PONG"
	case MsgClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// IsValid reports whether t is a known message type.
func (t MessageType) IsValid() bool {
	switch t {
	case MsgHello, MsgChallenge, MsgSignature, MsgAccept, MsgReject,
		MsgRequest, MsgResponse, MsgData, MsgStreamClose,
		MsgPing, MsgPong, MsgClose:
		return true
	}
	return false
}

// Message is a single wire frame.
//
// CBOR encoding:
//
//	{
//	  1: type,      // uint8
//	  2: id,        // uint32: request/stream ID or ping sequence
//	  3: op,        // uint8: request operation
//	  4: status,    // uint8: response status
//	  5: data,      // bytes: nonce, signature, or stream chunk
//	  6: args,      // [string]: path, command line, reboot mode
//	  7: props,     // {string: string}: device properties
//	  8: size,      // int64: declared transfer size
//	  9: mode,      // uint32: file mode bits
//	  10: error,    // string: human-readable failure
//	  11: key,      // bytes: ed25519 public key
//	  12: code      // int32: process exit code
//	}
type Message struct {
	Type   MessageType       `cbor:"1,keyasint"`
	ID     uint32            `cbor:"2,keyasint,omitempty"`
	Op     Operation         `cbor:"3,keyasint,omitempty"`
	Status Status            `cbor:"4,keyasint,omitempty"`
	Data   []byte            `cbor:"5,keyasint,omitempty"`
	Args   []string          `cbor:"6,keyasint,omitempty"`
	Props  map[string]string `cbor:"7,keyasint,omitempty"`
	Size   int64             `cbor:"8,keyasint,omitempty"`
	Mode   uint32            `cbor:"9,keyasint,omitempty"`
	Error  string            `cbor:"10,keyasint,omitempty"`
	Key    []byte            `cbor:"11,keyasint,omitempty"`
	Code   int32             `cbor:"12,keyasint,omitempty"`
}

// Validate checks the fields required by the message type.
func (m *Message) Validate() error {
	if !m.Type.IsValid() {
		return fmt.Errorf("unknown message type: %d", m.Type)
	}
	switch m.Type {
	case MsgRequest:
		if m.ID == 0 {
			return fmt.Errorf("request id 0 is reserved")
		}
		if !m.Op.IsValid() {
			return fmt.Errorf("invalid operation: %d", m.Op)
		}
	case MsgResponse, MsgData, MsgStreamClose:
		if m.ID == 0 {
			return fmt.Errorf("%s requires a request id", m.Type)
		}
	case MsgChallenge:
		if len(m.Data) == 0 {
			return fmt.Errorf("challenge without nonce")
		}
	case MsgSignature:
		if len(m.Key) == 0 || len(m.Data) == 0 {
			return fmt.Errorf("signature requires key and data")
		}
	}
	return nil
}

// String returns a short description for logs.
func (m *Message) String() string {
	switch m.Type {
	case MsgRequest:
		return fmt.Sprintf("%s id=%d op=%s", m.Type, m.ID, m.Op)
	case MsgResponse:
		return fmt.Sprintf("%s id=%d status=%s", m.Type, m.ID, m.Status)
	case MsgData:
		return fmt.Sprintf("%s id=%d len=%d", m.Type, m.ID, len(m.Data))
	case MsgStreamClose:
		return fmt.Sprintf("%s id=%d code=%d", m.Type, m.ID, m.Code)
	case MsgPing, MsgPong:
		return fmt.Sprintf("%s seq=%d", m.Type, m.ID)
	default:
		return m.Type.String()
	}
}

// NewResponse builds a response to the request with the given ID.
func NewResponse(id uint32, status Status, err error) *Message {
	msg := &Message{Type: MsgResponse, ID: id, Status: status}
	if err != nil {
		msg.Error = err.Error()
	}
	return msg
}
