// Package discovery tracks the devices a client can connect to.
//
// Devices come from two places:
//
// # Hot-pluggable sources
//
// A Source enumerates devices that appear and disappear on their own and
// notifies watchers with the affected serial. Two sources are provided:
//   - USBSource adapts a platform USB backend (capability-gated)
//   - MDNSSource browses wireless debugging services
//     (_adb-tls-connect._tcp and _adb._tcp) and exposes them as TCP devices
//
// # Persisted entries
//
// WebSocket relays and TCP endpoints added by the user are kept in a
// persistence.Store under "ws-backend-list" and "tcp-backend-list". List
// mutations are serialized and written to the store before the in-memory
// list changes, so a failed write leaves both unchanged.
//
// # Serials
//
// A device's serial is its stable identifier. Selection and
// de-duplication key on it:
//   - TCP: "host:port"
//   - WebSocket: the relay URL
//   - USB: the serial reported by the backend
package discovery
