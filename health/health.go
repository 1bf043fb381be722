// Package health provides low-overhead health monitoring for the capture
// pipeline.
//
// Design principles:
// - Zero allocation on the capture path (atomic ops only)
// - No locks on the capture path
// - No I/O on the capture path
package health

import (
	"runtime"
	"sync/atomic"
	"time"
)

// Monitor tracks capture health with minimal overhead.
type Monitor struct {
	lastActivity   atomic.Int64  // Unix timestamp of the last captured packet
	packetCount    atomic.Uint64 // Total reported packets
	overflowCount  atomic.Uint64 // Total ring overflow bytes observed
	degraded       atomic.Bool   // Degraded-but-alive error state
	goroutineLimit int           // Max allowed goroutines
}

// NewMonitor creates a new health monitor.
// goroutineLimit is the maximum number of goroutines allowed (0 = no limit).
func NewMonitor(goroutineLimit int) *Monitor {
	m := &Monitor{
		goroutineLimit: goroutineLimit,
	}
	m.lastActivity.Store(time.Now().Unix())
	return m
}

// RecordPacket should be called for each packet reported to the host.
// This is the hot path - uses only atomic operations.
func (m *Monitor) RecordPacket() {
	m.lastActivity.Store(time.Now().Unix())
	m.packetCount.Add(1)
}

// RecordOverflow accounts for ring-buffer bytes lost to overflow.
func (m *Monitor) RecordOverflow(n uint64) {
	m.overflowCount.Add(n)
}

// SetDegraded flips the degraded-but-alive state. A degraded agent keeps
// running and reporting; it has no supervisor to restart it.
func (m *Monitor) SetDegraded(v bool) {
	m.degraded.Store(v)
}

// Degraded reports whether the agent is in its degraded state.
func (m *Monitor) Degraded() bool {
	return m.degraded.Load()
}

// LastActivity returns the time of the last reported packet.
func (m *Monitor) LastActivity() time.Time {
	return time.Unix(m.lastActivity.Load(), 0)
}

// PacketCount returns the total number of packets reported.
func (m *Monitor) PacketCount() uint64 {
	return m.packetCount.Load()
}

// OverflowCount returns the total bytes lost to ring overflow.
func (m *Monitor) OverflowCount() uint64 {
	return m.overflowCount.Load()
}

// SecondsSinceActivity returns seconds since the last reported packet.
func (m *Monitor) SecondsSinceActivity() int64 {
	return time.Now().Unix() - m.lastActivity.Load()
}

// IsHealthy performs health checks. This is NOT on the capture path.
// Call this from a background goroutine (every 10s recommended).
func (m *Monitor) IsHealthy() bool {
	if m.degraded.Load() {
		return false
	}
	// Check goroutine count (only if limit is set)
	if m.goroutineLimit > 0 && runtime.NumGoroutine() > m.goroutineLimit {
		return false
	}
	return true
}

// GoroutineCount returns the current number of goroutines.
// Only call from background health checks, not on the capture path.
func (m *Monitor) GoroutineCount() int {
	return runtime.NumGoroutine()
}
