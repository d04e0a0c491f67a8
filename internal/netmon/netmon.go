// Package netmon provides the connectivity signal: a point-in-time
// online/offline query plus a subscription feed that fires on every
// transition.
package netmon

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Monitor reports connectivity to the remote authority.
type Monitor interface {
	// Online performs a point-in-time connectivity check.
	Online(ctx context.Context) bool
	// Subscribe returns a channel that receives every online/offline
	// transition, and a function that cancels the subscription.
	Subscribe() (<-chan bool, func())
}

// Pinger is the probe used to decide whether the remote is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingMonitor probes the remote health endpoint. Run starts a periodic
// probe loop that feeds subscribers; Online can also be called directly
// for an on-demand check.
type PingMonitor struct {
	pinger   Pinger
	interval time.Duration

	mu     sync.Mutex
	subs   map[int]chan bool
	nextID int
	online bool
	known  bool
}

// NewPingMonitor creates a monitor probing through pinger every interval.
func NewPingMonitor(pinger Pinger, interval time.Duration) *PingMonitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &PingMonitor{
		pinger:   pinger,
		interval: interval,
		subs:     make(map[int]chan bool),
	}
}

// Online probes the remote once and records the result.
func (m *PingMonitor) Online(ctx context.Context) bool {
	online := m.pinger.Ping(ctx) == nil
	m.record(online)
	return online
}

// Subscribe registers an observer for connectivity transitions.
func (m *PingMonitor) Subscribe() (<-chan bool, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	ch := make(chan bool, 4)
	m.subs[id] = ch

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if sub, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Run probes periodically until the context is cancelled.
func (m *PingMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Online(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Online(ctx)
		}
	}
}

// record notes the probe result and broadcasts on transition.
func (m *PingMonitor) record(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.known && online == m.online {
		return
	}
	m.known = true
	m.online = online

	slog.Info("connectivity changed",
		"component", "netmon",
		"action", "transition",
		"online", online,
	)

	for _, ch := range m.subs {
		select {
		case ch <- online:
		default:
			// Slow observer; it will catch the next transition.
		}
	}
}
