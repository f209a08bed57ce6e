// Package connection owns the authenticated session lifecycle.
//
// A Manager connects to the selected device, taps the stream pair into
// the packet log, runs the authentication handshake, and tears the
// session down exactly once on explicit disconnect or transport failure.
//
// # States
//
//	IDLE -> CONNECTING -> CONNECTED -> DISPOSING -> IDLE
//	            |                          ^
//	            +------ (failure) ---------+  (streams closed, back to IDLE)
//
// Connect and Disconnect are serialized. A disconnect event from the
// transport that races with an explicit Disconnect is absorbed by the
// per-session disposed flag: teardown runs once and OnDisconnected fires
// once per successful Connect.
//
// # Teardown
//
// The read side is canceled and its error ignored, since cancellation
// legitimately fails a pending read. The write side is closed and any
// error is reported. Session.Done is closed after the manager is back
// in IDLE.
//
// # Selection
//
// SetCandidates re-resolves the selection while idle. Candidate changes
// that arrive while a session is live are applied when the manager
// returns to IDLE.
//
// Callbacks run synchronously on the goroutine that caused the change
// and must not call Connect or Disconnect.
package connection
