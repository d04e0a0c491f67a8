package syncer

import "sync"

// Status is the orchestrator's externally visible state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// StatusFeed broadcasts status transitions to any number of independent
// observers. New subscribers receive the current status immediately,
// then every subsequent transition until they unsubscribe.
type StatusFeed struct {
	mu      sync.Mutex
	current Status
	subs    map[int]chan Status
	nextID  int
}

// NewStatusFeed creates a feed starting at idle.
func NewStatusFeed() *StatusFeed {
	return &StatusFeed{
		current: StatusIdle,
		subs:    make(map[int]chan Status),
	}
}

// Current returns the latest published status.
func (f *StatusFeed) Current() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// Subscribe registers an observer. The returned channel immediately
// carries the current status; the cancel function removes the observer.
func (f *StatusFeed) Subscribe() (<-chan Status, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	ch := make(chan Status, 8)
	ch <- f.current
	f.subs[id] = ch

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if sub, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish records a transition and fans it out to every observer.
func (f *StatusFeed) Publish(s Status) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.current = s
	for _, ch := range f.subs {
		select {
		case ch <- s:
		default:
			// Observer is not draining; it keeps the transitions it has.
		}
	}
}
