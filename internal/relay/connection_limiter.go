package relay

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// ConnectionLimiterConfig configures per-proxy and per-channel concurrent
// client caps.
type ConnectionLimiterConfig struct {
	// Enabled gates whether caps are enforced at all. When false, Register
	// always succeeds and no counters are maintained.
	Enabled bool
	// MaxClientsPerProxy is the maximum number of concurrent clients across
	// every channel of a single proxy. Zero means unlimited.
	MaxClientsPerProxy int
	// MaxClientsPerChannel is the maximum number of concurrent clients on a
	// single channel within a proxy. Zero means unlimited.
	MaxClientsPerChannel int
}

// CapKind distinguishes which cap a Register call tripped.
type CapKind int

const (
	// CapChannel means max_clients_per_channel was exceeded.
	CapChannel CapKind = iota
	// CapProxy means max_clients_per_proxy was exceeded.
	CapProxy
)

func (k CapKind) String() string {
	switch k {
	case CapChannel:
		return "channel"
	case CapProxy:
		return "proxy"
	default:
		return "unknown"
	}
}

// CapExceededError reports which cap was exceeded, the ID it applies to, and
// the configured limit. Callers type-assert on this to distinguish a
// channel-cap rejection from a proxy-cap rejection.
type CapExceededError struct {
	Kind  CapKind
	ID    string
	Limit int
}

func (e *CapExceededError) Error() string {
	return fmt.Sprintf("connection limiter: %s cap exceeded for %q (limit %d)", e.Kind, e.ID, e.Limit)
}

// ConnectionHandle is returned by a successful Register call. Release must be
// called exactly once, typically via defer, when the client disconnects; it
// decrements both the channel and proxy counters. Release is safe to call
// more than once and safe to call on a nil handle.
type ConnectionHandle struct {
	limiter   *ConnectionLimiter
	proxyID   string
	channelID string
	released  atomic.Bool
}

// Release decrements the counters this handle registered, exactly once.
func (h *ConnectionHandle) Release() {
	if h == nil || h.limiter == nil {
		return
	}
	if !h.released.CompareAndSwap(false, true) {
		return
	}
	h.limiter.release(h.proxyID, h.channelID)
}

// ConnectionLimiter enforces max_clients_per_channel and max_clients_per_proxy
// caps against an in-memory counter map keyed by ID string. Registering a
// connection checks both caps atomically under a single lock; on success it
// returns a handle whose Release drops both counters together.
type ConnectionLimiter struct {
	cfg ConnectionLimiterConfig

	mu            sync.Mutex
	proxyCounts   map[string]int
	channelCounts map[string]int // keyed by proxyID + "/" + channelID
}

// NewConnectionLimiter creates a limiter from the given config.
func NewConnectionLimiter(cfg ConnectionLimiterConfig) *ConnectionLimiter {
	return &ConnectionLimiter{
		cfg:           cfg,
		proxyCounts:   make(map[string]int),
		channelCounts: make(map[string]int),
	}
}

func channelKey(proxyID, channelID string) string {
	return proxyID + "/" + channelID
}

// Register checks the channel cap, then the proxy cap, and on success
// increments both counters and returns a handle. On a cap rejection neither
// counter is modified. When the limiter is disabled by config, Register
// always succeeds and returns a handle whose Release is a no-op.
func (l *ConnectionLimiter) Register(proxyID, channelID string) (*ConnectionHandle, error) {
	if !l.cfg.Enabled {
		return &ConnectionHandle{}, nil
	}

	ckey := channelKey(proxyID, channelID)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cfg.MaxClientsPerChannel > 0 && l.channelCounts[ckey] >= l.cfg.MaxClientsPerChannel {
		return nil, &CapExceededError{Kind: CapChannel, ID: channelID, Limit: l.cfg.MaxClientsPerChannel}
	}
	if l.cfg.MaxClientsPerProxy > 0 && l.proxyCounts[proxyID] >= l.cfg.MaxClientsPerProxy {
		return nil, &CapExceededError{Kind: CapProxy, ID: proxyID, Limit: l.cfg.MaxClientsPerProxy}
	}

	l.channelCounts[ckey]++
	l.proxyCounts[proxyID]++

	return &ConnectionHandle{limiter: l, proxyID: proxyID, channelID: channelID}, nil
}

func (l *ConnectionLimiter) release(proxyID, channelID string) {
	ckey := channelKey(proxyID, channelID)

	l.mu.Lock()
	defer l.mu.Unlock()

	if n := l.channelCounts[ckey]; n > 0 {
		if n == 1 {
			delete(l.channelCounts, ckey)
		} else {
			l.channelCounts[ckey] = n - 1
		}
	}
	if n := l.proxyCounts[proxyID]; n > 0 {
		if n == 1 {
			delete(l.proxyCounts, proxyID)
		} else {
			l.proxyCounts[proxyID] = n - 1
		}
	}
}

// ProxyClientCount returns the current registered client count across every
// channel of proxyID.
func (l *ConnectionLimiter) ProxyClientCount(proxyID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.proxyCounts[proxyID]
}

// ChannelClientCount returns the current registered client count for a
// single channel within a proxy.
func (l *ConnectionLimiter) ChannelClientCount(proxyID, channelID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.channelCounts[channelKey(proxyID, channelID)]
}
