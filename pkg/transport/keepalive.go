package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Keep-alive constants.
const (
	// DefaultPingInterval is the default interval between pings.
	DefaultPingInterval = 15 * time.Second

	// DefaultPongTimeout is the default timeout waiting for a pong response.
	DefaultPongTimeout = 5 * time.Second

	// DefaultMaxMissedPongs is the default number of missed pongs before
	// the peer is considered gone.
	DefaultMaxMissedPongs = 3
)

// KeepAliveConfig configures keep-alive behavior.
type KeepAliveConfig struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	MaxMissedPongs int
}

// DefaultKeepAliveConfig returns the default keep-alive configuration.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		PingInterval:   DefaultPingInterval,
		PongTimeout:    DefaultPongTimeout,
		MaxMissedPongs: DefaultMaxMissedPongs,
	}
}

// DetectionDelay is the longest time a dead peer can go unnoticed.
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	return c.PingInterval*time.Duration(c.MaxMissedPongs) + c.PongTimeout
}

// KeepAlive sends periodic pings and fires onTimeout once after
// MaxMissedPongs consecutive pings go unanswered.
type KeepAlive struct {
	config    KeepAliveConfig
	sendPing  func(seq uint32) error
	onTimeout func()

	sequence atomic.Uint32
	pongCh   chan uint32

	mu       sync.Mutex
	missed   int
	sentAt   time.Time
	pending  uint32
	awaiting bool
	lastRTT  time.Duration
	running  bool
	stopCh   chan struct{}
}

// NewKeepAlive creates a keep-alive monitor. Zero config fields take
// their defaults.
func NewKeepAlive(config KeepAliveConfig, sendPing func(seq uint32) error, onTimeout func()) *KeepAlive {
	def := DefaultKeepAliveConfig()
	if config.PingInterval == 0 {
		config.PingInterval = def.PingInterval
	}
	if config.PongTimeout == 0 {
		config.PongTimeout = def.PongTimeout
	}
	if config.MaxMissedPongs == 0 {
		config.MaxMissedPongs = def.MaxMissedPongs
	}
	return &KeepAlive{
		config:    config,
		sendPing:  sendPing,
		onTimeout: onTimeout,
		pongCh:    make(chan uint32, 1),
	}
}

// Start begins the ping loop. It is a no-op if already running.
func (ka *KeepAlive) Start(ctx context.Context) {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	if ka.running {
		return
	}
	ka.running = true
	ka.stopCh = make(chan struct{})
	go ka.loop(ctx, ka.stopCh)
}

// Stop ends the ping loop.
func (ka *KeepAlive) Stop() {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	if !ka.running {
		return
	}
	ka.running = false
	close(ka.stopCh)
}

// PongReceived feeds a pong from the peer into the monitor.
func (ka *KeepAlive) PongReceived(seq uint32) {
	select {
	case ka.pongCh <- seq:
	default:
	}
}

// IsRunning reports whether the ping loop is active.
func (ka *KeepAlive) IsRunning() bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.running
}

// RoundTrip returns the latency measured by the last matched pong.
func (ka *KeepAlive) RoundTrip() time.Duration {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.lastRTT
}

func (ka *KeepAlive) loop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(ka.config.PingInterval)
	defer ticker.Stop()

	ka.ping()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if ka.expired() {
				ka.Stop()
				if ka.onTimeout != nil {
					ka.onTimeout()
				}
				return
			}
			ka.ping()
		case seq := <-ka.pongCh:
			ka.pong(seq)
		}
	}
}

func (ka *KeepAlive) ping() {
	seq := ka.sequence.Add(1)

	ka.mu.Lock()
	ka.sentAt = time.Now()
	ka.pending = seq
	ka.awaiting = true
	ka.mu.Unlock()

	// A failed send is counted as a miss on the next tick.
	_ = ka.sendPing(seq)
}

// expired records an unanswered ping and reports whether the miss
// budget is exhausted.
func (ka *KeepAlive) expired() bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	if ka.awaiting && time.Since(ka.sentAt) >= ka.config.PongTimeout {
		ka.missed++
		ka.awaiting = false
	}
	return ka.missed >= ka.config.MaxMissedPongs
}

func (ka *KeepAlive) pong(seq uint32) {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	// Late pongs for older pings are ignored.
	if ka.awaiting && seq == ka.pending {
		ka.lastRTT = time.Since(ka.sentAt)
		ka.awaiting = false
		ka.missed = 0
	}
}
