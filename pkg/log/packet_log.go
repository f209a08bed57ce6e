package log

import "sync"

// DefaultPacketLogCapacity is the retention used when NewPacketLog is
// given a non-positive capacity.
const DefaultPacketLogCapacity = 1000

// PacketLog keeps the most recent events in a bounded ring buffer.
// Older events are overwritten once the buffer is full.
type PacketLog struct {
	mu      sync.RWMutex
	entries []Event
	next    int
	full    bool
	total   uint64
}

// NewPacketLog creates a PacketLog retaining at most capacity events.
func NewPacketLog(capacity int) *PacketLog {
	if capacity <= 0 {
		capacity = DefaultPacketLogCapacity
	}
	return &PacketLog{entries: make([]Event, capacity)}
}

// Log appends an event, evicting the oldest when full.
func (p *PacketLog) Log(event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.entries[p.next] = event
	p.next++
	p.total++
	if p.next == len(p.entries) {
		p.next = 0
		p.full = true
	}
}

// Len returns the number of retained events.
func (p *PacketLog) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.full {
		return len(p.entries)
	}
	return p.next
}

// Total returns the number of events ever logged, including evicted ones.
func (p *PacketLog) Total() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.total
}

// Snapshot returns retained events, oldest first.
func (p *PacketLog) Snapshot() []Event {
	return p.Filter(Filter{})
}

// Filter returns retained events matching f, oldest first.
func (p *PacketLog) Filter(f Filter) []Event {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []Event
	visit := func(e Event) {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	if p.full {
		for _, e := range p.entries[p.next:] {
			visit(e)
		}
	}
	for _, e := range p.entries[:p.next] {
		visit(e)
	}
	return out
}

// Clear drops all retained events. Total is preserved.
func (p *PacketLog) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.entries)
	p.next = 0
	p.full = false
}

var _ Logger = (*PacketLog)(nil)
