package mirror

import (
	"slices"
	"sync"
)

// Keyboard tracks held keys so a key is pressed at most once until it
// is released.
type Keyboard struct {
	mu   sync.Mutex
	held map[uint32]struct{}
}

// NewKeyboard creates a keyboard with no keys held.
func NewKeyboard() *Keyboard {
	return &Keyboard{held: make(map[uint32]struct{})}
}

// Down marks code held. It returns false for a repeat.
func (k *Keyboard) Down(code uint32) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.held[code]; ok {
		return false
	}
	k.held[code] = struct{}{}
	return true
}

// Up releases code. It returns false when code was not held.
func (k *Keyboard) Up(code uint32) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.held[code]; !ok {
		return false
	}
	delete(k.held, code)
	return true
}

// Held reports whether code is down.
func (k *Keyboard) Held(code uint32) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	_, ok := k.held[code]
	return ok
}

// Reset releases every key and returns the released codes in
// ascending order.
func (k *Keyboard) Reset() []uint32 {
	k.mu.Lock()
	defer k.mu.Unlock()
	codes := make([]uint32, 0, len(k.held))
	for code := range k.held {
		codes = append(codes, code)
	}
	clear(k.held)
	slices.Sort(codes)
	return codes
}
