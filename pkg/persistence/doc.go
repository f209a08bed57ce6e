// Package persistence provides the durable key-value storage behind the
// device registry and client state.
//
// Values are small JSON documents addressed by string keys. Two backends
// are provided: FileStore keeps every key in one JSON file replaced
// atomically on each write, SQLiteStore keeps them in a single table.
// MemoryStore is a volatile implementation for tests.
package persistence
