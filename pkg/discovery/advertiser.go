package discovery

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// ErrNotAdvertising is returned by Stop when the service is not
// registered.
var ErrNotAdvertising = errors.New("service not advertised")

// AdvertiserConfig configures an MDNSAdvertiser.
type AdvertiserConfig struct {
	// Interface restricts advertising to one network interface (optional).
	Interface string

	// TTL for the records. Zero uses the zeroconf default.
	TTL time.Duration

	// Logger is the optional logger for debug output.
	Logger *slog.Logger
}

// AdvertiseInfo describes one service instance.
type AdvertiseInfo struct {
	// Instance is the instance name, usually the device serial.
	Instance string

	// Service defaults to ServiceTypeADB.
	Service string

	Port int

	// Text holds key=value TXT attributes.
	Text map[string]string
}

// server is the registered zeroconf service.
type server interface {
	Shutdown()
}

type registerFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface, opts ...zeroconf.ServerOption) (server, error)

// MDNSAdvertiser publishes agents over mDNS so MDNSSource can find them.
type MDNSAdvertiser struct {
	config   AdvertiserConfig
	register registerFunc

	mu      sync.Mutex
	servers map[string]server // keyed by service/instance
}

// NewMDNSAdvertiser creates an mDNS advertiser.
func NewMDNSAdvertiser(config AdvertiserConfig) *MDNSAdvertiser {
	return &MDNSAdvertiser{
		config:   config,
		register: zeroconfRegister,
		servers:  make(map[string]server),
	}
}

// Advertise registers info, replacing an earlier registration of the
// same instance.
func (a *MDNSAdvertiser) Advertise(info AdvertiseInfo) error {
	if info.Instance == "" {
		return errors.New("advertise: empty instance name")
	}
	if info.Port <= 0 || info.Port > 65535 {
		return fmt.Errorf("advertise: invalid port %d", info.Port)
	}
	if info.Service == "" {
		info.Service = ServiceTypeADB
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	key := info.Service + "/" + info.Instance
	if s, ok := a.servers[key]; ok {
		s.Shutdown()
		delete(a.servers, key)
	}

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}
	s, err := a.register(info.Instance, info.Service, Domain, info.Port, txtStrings(info.Text), a.interfaces(), opts...)
	if err != nil {
		return fmt.Errorf("register %s: %w", key, err)
	}
	a.servers[key] = s
	a.debugLog("advertising", "service", info.Service, "instance", info.Instance, "port", info.Port)
	return nil
}

// Stop withdraws one instance.
func (a *MDNSAdvertiser) Stop(service, instance string) error {
	if service == "" {
		service = ServiceTypeADB
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	key := service + "/" + instance
	s, ok := a.servers[key]
	if !ok {
		return ErrNotAdvertising
	}
	s.Shutdown()
	delete(a.servers, key)
	return nil
}

// Shutdown withdraws everything.
func (a *MDNSAdvertiser) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for key, s := range a.servers {
		s.Shutdown()
		delete(a.servers, key)
	}
}

// Advertised returns the registered service/instance keys, sorted.
func (a *MDNSAdvertiser) Advertised() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	keys := make([]string, 0, len(a.servers))
	for key := range a.servers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// interfaces returns nil for all interfaces.
func (a *MDNSAdvertiser) interfaces() []net.Interface {
	if a.config.Interface == "" {
		return nil
	}
	iface, err := net.InterfaceByName(a.config.Interface)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

func (a *MDNSAdvertiser) debugLog(msg string, args ...any) {
	if a.config.Logger != nil {
		a.config.Logger.Debug(msg, args...)
	}
}

// txtStrings renders attributes as sorted key=value strings.
func txtStrings(text map[string]string) []string {
	out := make([]string, 0, len(text))
	for k, v := range text {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func zeroconfRegister(instance, service, domain string, port int, text []string, ifaces []net.Interface, opts ...zeroconf.ServerOption) (server, error) {
	s, err := zeroconf.Register(instance, service, domain, port, text, ifaces, opts...)
	if err != nil {
		return nil, err
	}
	return s, nil
}
