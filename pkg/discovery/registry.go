package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"sync"

	"github.com/Li-Yaosong/webadb2/pkg/persistence"
)

// persistedEntry pairs a stored endpoint with the device built from it.
type persistedEntry struct {
	endpoint persistence.Endpoint
	device   Device
}

// Registry aggregates hot-pluggable sources and persisted entries.
type Registry struct {
	store   persistence.Store
	sources []Source
	logger  *slog.Logger

	// writeMu serializes persisted list mutations end to end.
	writeMu sync.Mutex

	mu        sync.RWMutex
	persisted map[Kind][]persistedEntry
}

// NewRegistry creates a registry and loads persisted entries from store.
// A nil store keeps entries in memory only.
func NewRegistry(store persistence.Store, sources ...Source) (*Registry, error) {
	if store == nil {
		store = persistence.NewMemoryStore()
	}
	r := &Registry{
		store:     store,
		sources:   sources,
		persisted: make(map[Kind][]persistedEntry),
	}
	for _, kind := range []Kind{KindWebSocket, KindTCP} {
		if err := r.load(kind); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// SetLogger sets the logger for debug output.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.logger = logger
}

func (r *Registry) load(kind Kind) error {
	key, _ := storageKey(kind)
	endpoints, err := persistence.LoadEndpoints(r.store, key)
	if err != nil {
		return fmt.Errorf("load %s devices: %w", kind, err)
	}

	var entries []persistedEntry
	for _, ep := range endpoints {
		if err := validateEndpoint(kind, ep); err != nil {
			r.debugLog("skipping stored endpoint", "kind", kind, "address", ep.Address, "error", err)
			continue
		}
		dev, _ := deviceFromEndpoint(kind, ep)
		if containsSerial(entries, dev.Serial()) {
			continue
		}
		entries = append(entries, persistedEntry{endpoint: ep, device: dev})
	}
	r.persisted[kind] = entries
	return nil
}

// ListDevices returns devices of kind: hot-pluggable sources in discovery
// order, then persisted entries in insertion order. Serials are unique;
// the first occurrence wins. A failing source is skipped and its error
// returned alongside the remaining devices.
func (r *Registry) ListDevices(ctx context.Context, kind Kind) ([]Device, error) {
	var out []Device
	seen := make(map[string]bool)
	add := func(d Device) {
		if seen[d.Serial()] {
			return
		}
		seen[d.Serial()] = true
		out = append(out, d)
	}

	var errs []error
	for _, src := range r.sources {
		if src.Kind() != kind {
			continue
		}
		devices, err := src.Devices(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("list %s devices: %w", kind, err))
			continue
		}
		for _, d := range devices {
			add(d)
		}
	}

	r.mu.RLock()
	for _, e := range r.persisted[kind] {
		add(e.device)
	}
	r.mu.RUnlock()

	return out, errors.Join(errs...)
}

// All returns USB, then WebSocket, then TCP devices. Like ListDevices it
// returns the devices it could list together with any source errors.
func (r *Registry) All(ctx context.Context) ([]Device, error) {
	var (
		all  []Device
		errs []error
	)
	for _, kind := range Kinds {
		devices, err := r.ListDevices(ctx, kind)
		if err != nil {
			errs = append(errs, err)
		}
		all = append(all, devices...)
	}
	return all, errors.Join(errs...)
}

// CanWatch reports whether any source supports change notification.
func (r *Registry) CanWatch() bool {
	for _, src := range r.sources {
		if src.CanWatch() {
			return true
		}
	}
	return false
}

// Watch registers onChange with every watchable source and returns a
// function that unregisters all of them. Without watch support the
// returned function does nothing.
func (r *Registry) Watch(onChange func(serial string)) (dispose func()) {
	var stops []func()
	for _, src := range r.sources {
		if !src.CanWatch() {
			continue
		}
		stop, err := src.Watch(onChange)
		if err != nil {
			r.debugLog("watch failed", "kind", src.Kind(), "error", err)
			continue
		}
		if stop != nil {
			stops = append(stops, stop)
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for _, stop := range stops {
				stop()
			}
		})
	}
}

// AddPersisted adds a user endpoint of kind and stores the updated list.
// If a device with the same serial exists it is returned unchanged and
// nothing is written. The in-memory list changes only after the store
// write succeeds.
func (r *Registry) AddPersisted(kind Kind, ep persistence.Endpoint) (Device, error) {
	if _, ok := storageKey(kind); !ok {
		return nil, ErrNotPersistable
	}
	if err := validateEndpoint(kind, ep); err != nil {
		return nil, err
	}
	dev, err := deviceFromEndpoint(kind, ep)
	if err != nil {
		return nil, err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	current := r.snapshot(kind)
	for _, e := range current {
		if e.device.Serial() == dev.Serial() {
			return e.device, nil
		}
	}

	next := append(slices.Clone(current), persistedEntry{endpoint: ep, device: dev})
	if err := r.commit(kind, next); err != nil {
		return nil, err
	}
	r.debugLog("device added", "kind", kind, "serial", dev.Serial())
	return dev, nil
}

// RemovePersisted removes the persisted entry with serial.
func (r *Registry) RemovePersisted(kind Kind, serial string) error {
	if _, ok := storageKey(kind); !ok {
		return ErrNotPersistable
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	current := r.snapshot(kind)
	idx := slices.IndexFunc(current, func(e persistedEntry) bool {
		return e.device.Serial() == serial
	})
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, serial)
	}

	next := slices.Delete(slices.Clone(current), idx, idx+1)
	if err := r.commit(kind, next); err != nil {
		return err
	}
	r.debugLog("device removed", "kind", kind, "serial", serial)
	return nil
}

// Persisted returns the persisted devices of kind in insertion order.
func (r *Registry) Persisted(kind Kind) []Device {
	entries := r.snapshot(kind)
	out := make([]Device, len(entries))
	for i, e := range entries {
		out[i] = e.device
	}
	return out
}

func (r *Registry) snapshot(kind Kind) []persistedEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.persisted[kind]
}

// commit writes next to the store and then swaps it in. Callers hold writeMu.
func (r *Registry) commit(kind Kind, next []persistedEntry) error {
	key, _ := storageKey(kind)
	endpoints := make([]persistence.Endpoint, len(next))
	for i, e := range next {
		endpoints[i] = e.endpoint
	}
	if err := persistence.SaveEndpoints(r.store, key, endpoints); err != nil {
		return fmt.Errorf("save %s devices: %w", kind, err)
	}

	r.mu.Lock()
	r.persisted[kind] = next
	r.mu.Unlock()
	return nil
}

func (r *Registry) debugLog(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}

func storageKey(kind Kind) (string, bool) {
	switch kind {
	case KindWebSocket:
		return persistence.KeyWebSocketEndpoints, true
	case KindTCP:
		return persistence.KeyTCPEndpoints, true
	default:
		return "", false
	}
}

func validateEndpoint(kind Kind, ep persistence.Endpoint) error {
	if err := ep.Validate(); err != nil {
		return err
	}
	switch kind {
	case KindTCP:
		if ep.Port == 0 {
			return errors.New("tcp endpoint requires a port")
		}
	case KindWebSocket:
		u, err := url.Parse(ep.Address)
		if err != nil {
			return fmt.Errorf("invalid websocket url: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("websocket url must use ws:// or wss://, got %q", ep.Address)
		}
	}
	return nil
}

func containsSerial(entries []persistedEntry, serial string) bool {
	for _, e := range entries {
		if e.device.Serial() == serial {
			return true
		}
	}
	return false
}
