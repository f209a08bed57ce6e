package discovery

import (
	"context"
	"log/slog"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// mDNS service types for wireless debugging.
const (
	// ServiceTypeTLSConnect is advertised by devices with wireless
	// debugging enabled.
	ServiceTypeTLSConnect = "_adb-tls-connect._tcp"

	// ServiceTypeADB is advertised by devices listening in plain TCP mode.
	ServiceTypeADB = "_adb._tcp"

	// Domain is the mDNS domain.
	Domain = "local."
)

// ServiceEntry is a resolved mDNS service instance.
type ServiceEntry struct {
	Instance  string
	Service   string
	Host      string
	Port      int
	Addresses []string
	Text      []string
}

// browseFunc runs one browse session for service until ctx is done or the
// browse fails. Resolved instances go to found, expired ones to lost.
type browseFunc func(ctx context.Context, service string, found, lost chan<- ServiceEntry) error

// MDNSConfig configures an MDNSSource.
type MDNSConfig struct {
	// Interface restricts browsing to one network interface (optional).
	Interface string

	// Services to browse. Defaults to both wireless debugging types.
	Services []string

	// Backoff paces browse restarts after failures.
	Backoff BackoffConfig

	// Logger is the optional logger for debug output.
	Logger *slog.Logger
}

// MDNSSource discovers TCP devices over mDNS.
type MDNSSource struct {
	config MDNSConfig
	browse browseFunc

	mu       sync.RWMutex
	entries  map[string]*TCPDevice // keyed by service/instance
	order    []string
	watchers map[int]func(string)
	nextID   int

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMDNSSource creates an mDNS source. Start begins browsing.
func NewMDNSSource(config MDNSConfig) *MDNSSource {
	if len(config.Services) == 0 {
		config.Services = []string{ServiceTypeTLSConnect, ServiceTypeADB}
	}
	s := &MDNSSource{
		config:   config,
		entries:  make(map[string]*TCPDevice),
		watchers: make(map[int]func(string)),
	}
	s.browse = s.zeroconfBrowse
	return s
}

// Start launches one browse loop per service. It is a no-op if running.
func (s *MDNSSource) Start(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	for _, service := range s.config.Services {
		s.wg.Add(1)
		go func(service string) {
			defer s.wg.Done()
			s.browseLoop(ctx, service)
		}(service)
	}
}

// Stop ends browsing and waits for the loops to exit.
func (s *MDNSSource) Stop() {
	s.runMu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.runMu.Unlock()

	if cancel != nil {
		cancel()
		s.wg.Wait()
	}
}

// Kind returns KindTCP.
func (s *MDNSSource) Kind() Kind { return KindTCP }

// Devices returns resolved devices in discovery order.
func (s *MDNSSource) Devices(context.Context) ([]Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Device, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.entries[key])
	}
	return out, nil
}

// CanWatch returns true.
func (s *MDNSSource) CanWatch() bool { return true }

// Watch registers fn for appear and expire notifications.
func (s *MDNSSource) Watch(fn func(serial string)) (func(), error) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}, nil
}

// browseLoop keeps a browse session alive, restarting it with backoff.
func (s *MDNSSource) browseLoop(ctx context.Context, service string) {
	backoff := NewBackoffWithConfig(s.config.Backoff)

	for {
		attemptCtx, cancel := context.WithCancel(ctx)
		found := make(chan ServiceEntry)
		lost := make(chan ServiceEntry)
		consumed := make(chan struct{})

		go func() {
			defer close(consumed)
			s.consume(attemptCtx, found, lost, backoff)
		}()

		err := s.browse(attemptCtx, service, found, lost)
		cancel()
		<-consumed

		if ctx.Err() != nil {
			return
		}

		delay := backoff.Next()
		s.debugLog("mdns browse ended, restarting",
			"service", service, "error", err, "delay", delay, "attempt", backoff.Attempts())

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (s *MDNSSource) consume(ctx context.Context, found, lost <-chan ServiceEntry, backoff *Backoff) {
	for {
		select {
		case <-ctx.Done():
			return
		case entry := <-found:
			backoff.Reset()
			s.handleFound(entry)
		case entry := <-lost:
			s.handleLost(entry)
		}
	}
}

func (s *MDNSSource) handleFound(entry ServiceEntry) {
	dev := entryToDevice(entry)
	if dev == nil {
		return
	}
	key := entry.Service + "/" + entry.Instance

	s.mu.Lock()
	existing, ok := s.entries[key]
	if ok && existing.Serial() == dev.Serial() {
		s.mu.Unlock()
		return
	}
	if !ok {
		s.order = append(s.order, key)
	}
	s.entries[key] = dev
	watchers := s.watcherList()
	s.mu.Unlock()

	s.debugLog("mdns device found", "instance", entry.Instance, "serial", dev.Serial())
	for _, fn := range watchers {
		fn(dev.Serial())
	}
}

func (s *MDNSSource) handleLost(entry ServiceEntry) {
	key := entry.Service + "/" + entry.Instance

	s.mu.Lock()
	dev, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.entries, key)
	s.order = slices.DeleteFunc(s.order, func(k string) bool { return k == key })
	watchers := s.watcherList()
	s.mu.Unlock()

	s.debugLog("mdns device lost", "instance", entry.Instance, "serial", dev.Serial())
	for _, fn := range watchers {
		fn(dev.Serial())
	}
}

// watcherList snapshots the watchers. Callers hold mu.
func (s *MDNSSource) watcherList() []func(string) {
	out := make([]func(string), 0, len(s.watchers))
	for _, fn := range s.watchers {
		out = append(out, fn)
	}
	return out
}

// entryToDevice converts a resolved entry to a TCP device.
// IPv4 addresses are preferred; entries without address or port are dropped.
func entryToDevice(entry ServiceEntry) *TCPDevice {
	if entry.Port == 0 || len(entry.Addresses) == 0 {
		return nil
	}
	host := entry.Addresses[0]
	for _, addr := range entry.Addresses {
		if ip := net.ParseIP(addr); ip != nil && ip.To4() != nil {
			host = addr
			break
		}
	}
	dev := NewTCPDevice(host, entry.Port)
	dev.name = entry.Instance
	return dev
}

// zeroconfBrowse runs zeroconf.Browse and translates its entries.
func (s *MDNSSource) zeroconfBrowse(ctx context.Context, service string, found, lost chan<- ServiceEntry) error {
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		removed := removed
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-entries:
				if !ok {
					return
				}
				select {
				case found <- fromZeroconf(service, e):
				case <-ctx.Done():
					return
				}
			case e, ok := <-removed:
				if !ok {
					removed = nil
					continue
				}
				select {
				case lost <- fromZeroconf(service, e):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return zeroconf.Browse(ctx, service, Domain, entries, removed, s.browserOptions()...)
}

// browserOptions returns zeroconf client options based on config.
func (s *MDNSSource) browserOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if s.config.Interface != "" {
		iface, err := net.InterfaceByName(s.config.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}
	return opts
}

func fromZeroconf(service string, e *zeroconf.ServiceEntry) ServiceEntry {
	addrs := make([]string, 0, len(e.AddrIPv4)+len(e.AddrIPv6))
	for _, ip := range e.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range e.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return ServiceEntry{
		Instance:  e.Instance,
		Service:   service,
		Host:      e.HostName,
		Port:      e.Port,
		Addresses: addrs,
		Text:      e.Text,
	}
}

func (s *MDNSSource) debugLog(msg string, args ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(msg, args...)
	}
}

var _ Source = (*MDNSSource)(nil)
