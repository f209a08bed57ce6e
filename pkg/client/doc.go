// Package client implements the authenticated device client.
//
// A Client is created by the handshake (see package auth) once the
// device accepts a key. It owns a read loop that routes responses to
// waiting requests and stream data to open Streams, answers pings, and
// runs a keep-alive monitor.
//
// Operations:
//   - Push writes a file to the device with byte progress
//   - Exec starts a process and returns a bidirectional Stream
//   - Reboot and PowerButton drive the power menu
//   - Properties reads the device property table
//
// Disconnected is closed exactly once when the connection ends, either
// because Close was called, the device closed the connection, or the
// stream failed. Err reports the cause; it is nil for a graceful close.
package client
