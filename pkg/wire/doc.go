// Package wire defines the CBOR wire format spoken between a client and
// a device agent.
//
// Every frame on a stream pair carries exactly one Message, encoded as a
// CBOR map with integer keys. Messages are flat: the Type decides which
// of the remaining fields are meaningful.
//
// # Handshake
//
//	client                     device
//	  | ---- Hello ------------->  |
//	  | <--- Challenge(nonce) ---  |
//	  | ---- Signature(key,sig)->  |
//	  | <--- Accept(props) ------  |   or Challenge (try another key)
//	  |                            |   or Reject(error)
//
// # Requests and streams
//
// A Request carries a client-chosen ID and an Operation. The device
// answers with a Response carrying the same ID. Push and Exec open a
// stream under the request ID: Data frames carry bytes in either
// direction and StreamClose ends the stream (with an exit code for Exec).
//
// # Input control
//
// Control is the payload format for input events written into the
// remote-control server stream. It is encoded separately with
// EncodeControl and travels inside Data frames.
package wire
