package persistence

import (
	"time"
)

// StateVersion is the current version of the client state format.
const StateVersion = 1

// KeyClientState is the storage key for ClientState.
const KeyClientState = "client-state"

// ClientState is the runtime state restored when the client starts.
type ClientState struct {
	// Version is the state format version.
	Version int `json:"version"`

	// SavedAt is when the state was last saved.
	SavedAt time.Time `json:"saved_at"`

	// LastSerial is the device selected when the client last ran.
	LastSerial string `json:"last_serial,omitempty"`

	// LastConnectedAt is when a session was last established.
	LastConnectedAt time.Time `json:"last_connected_at,omitempty"`
}

// ClientStateStore saves ClientState into a Store.
type ClientStateStore struct {
	store Store
}

// NewClientStateStore creates a state store on top of s.
func NewClientStateStore(s Store) *ClientStateStore {
	return &ClientStateStore{store: s}
}

// Save persists the state.
func (c *ClientStateStore) Save(state *ClientState) error {
	state.Version = StateVersion
	state.SavedAt = time.Now()
	return SetJSON(c.store, KeyClientState, state)
}

// Load reads the state.
// Returns nil, nil if nothing was saved yet.
func (c *ClientStateStore) Load() (*ClientState, error) {
	state := &ClientState{}
	ok, err := GetJSON(c.store, KeyClientState, state)
	if err != nil || !ok {
		return nil, err
	}
	return state, nil
}

// Clear removes the saved state.
func (c *ClientStateStore) Clear() error {
	return c.store.Delete(KeyClientState)
}
