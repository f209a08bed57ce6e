// Package transport provides the duplex frame streams a device session
// runs over.
//
// Every transport exposes the same pair of halves:
//
//	FrameReader  ReadFrame() / Cancel()
//	FrameWriter  WriteFrame() / Close()
//
// Three transports are provided:
//   - TCP: length-prefixed framing over a net.Conn (DialTCP)
//   - WebSocket: one binary message per frame (DialWebSocket)
//   - Pipe: an in-memory pair for tests and the development agent
//
// # Packet taps
//
// Inspect wraps a Streams value so that every frame is handed to a
// record callback before being forwarded. Frames are forwarded unchanged
// and in order; errors, Cancel and Close pass straight through.
//
// # Framing
//
//	┌────────────────────────────────┐
//	│   Device messages (CBOR)       │
//	├────────────────────────────────┤
//	│   Length-Prefix Framing (4B)   │
//	├────────────────────────────────┤
//	│       TCP / WebSocket          │
//	└────────────────────────────────┘
//
// # Keep-Alive
//
// KeepAlive drives ping/pong liveness checks for long-lived sessions:
//   - Ping interval: 15 seconds
//   - Pong timeout: 5 seconds
//   - Max missed pongs: 3
package transport
