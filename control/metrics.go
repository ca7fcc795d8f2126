// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime counters for socket activity.
// Counters are registered lazily and updated with atomics so the hot
// send/recv paths never take the registry lock after first use.

package control

import (
	"sync"
	"sync/atomic"
	"time"
)

// Counter names recorded by sockwire components.
const (
	BytesSent      = "transport.bytes_sent"
	BytesReceived  = "transport.bytes_received"
	PeerCloses     = "transport.peer_closes"
	TransportFails = "transport.failures"
	Connects       = "connector.connects"
	ConnectFails   = "connector.failures"
	Accepts        = "listener.accepts"
	AcceptFails    = "listener.failures"
)

// MetricsRegistry holds named monotonic counters.
type MetricsRegistry struct {
	mu       sync.RWMutex
	counters map[string]*atomic.Int64
	updated  atomic.Int64
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		counters: make(map[string]*atomic.Int64),
	}
}

func (mr *MetricsRegistry) counter(key string) *atomic.Int64 {
	mr.mu.RLock()
	c, ok := mr.counters[key]
	mr.mu.RUnlock()
	if ok {
		return c
	}
	mr.mu.Lock()
	defer mr.mu.Unlock()
	if c, ok = mr.counters[key]; !ok {
		c = new(atomic.Int64)
		mr.counters[key] = c
	}
	return c
}

// Add increments key by delta.
func (mr *MetricsRegistry) Add(key string, delta int64) {
	mr.counter(key).Add(delta)
	mr.updated.Store(time.Now().UnixNano())
}

// Get returns the current value of key.
func (mr *MetricsRegistry) Get(key string) int64 {
	return mr.counter(key).Load()
}

// Updated returns the time of the last Add, or the zero time.
func (mr *MetricsRegistry) Updated() time.Time {
	ns := mr.updated.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// GetSnapshot returns the latest metrics.
func (mr *MetricsRegistry) GetSnapshot() map[string]any {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make(map[string]any, len(mr.counters))
	for k, v := range mr.counters {
		out[k] = v.Load()
	}
	return out
}
