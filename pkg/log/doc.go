// Package log provides packet-level observability for device sessions.
//
// Every frame that crosses a session's stream pair is recorded as an Event
// with a direction, the raw payload and a timestamp. Session and remote
// control state changes, as well as surfaced errors, use the same Event
// type so a single trace captures the whole lifecycle of a connection.
// This is separate from operational logging (slog).
//
// # Basic Usage
//
//	// Keep the most recent packets in memory for inspection.
//	packets := log.NewPacketLog(1000)
//
//	// Also write everything to a CBOR file.
//	file, _ := log.NewFileLogger("/var/log/webadb/session.wlog")
//
//	cfg.PacketLogger = log.NewMultiLogger(packets, file)
//
// # Layers
//
// Events are captured at three layers:
//   - Transport: raw frames on the device stream (FrameEvent)
//   - Session: authenticated connection lifecycle (StateChangeEvent)
//   - Mirror: remote control deployment and runtime (StateChangeEvent)
//
// # File Format
//
// Log files are a sequence of CBOR-encoded events with integer keys
// (.wlog extension). Export writes a compressed copy (zstd or lz4).
package log
