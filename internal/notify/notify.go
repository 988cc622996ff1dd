// Package notify carries change signals from data writers to the
// reconciliation service.
package notify

import "sync"

// Kind distinguishes between signal kinds.
type Kind int

const (
	// KindDataChanged reports that stored panel data changed.
	KindDataChanged Kind = iota + 1
	// KindSchemaChanged reports that panel or field configuration changed.
	KindSchemaChanged
	// KindSessionChanged reports that the active session switched.
	KindSessionChanged
)

// String returns the signal kind name.
func (k Kind) String() string {
	switch k {
	case KindDataChanged:
		return "data-changed"
	case KindSchemaChanged:
		return "schema-changed"
	case KindSessionChanged:
		return "session-changed"
	default:
		return "unknown"
	}
}

// Signal is one change notification. PanelID is set for data changes when
// the writer knows which panel it touched; SessionID is set for session
// switches.
type Signal struct {
	Kind      Kind
	PanelID   string
	SessionID string
}

// Bus fans signals out to subscribers, one channel per subscription.
//
// Every subscription channel is buffered with capacity 1 and delivery is
// latest-wins: when a subscriber has not drained the previous signal, Publish
// replaces it instead of blocking. Signals are triggers, not a log, so a
// burst collapsing into one delivery is the intended behavior and a slow
// consumer can never stall a writer.
//
// Publishing is thread-safe. Subscription channels are owned by the Bus and
// closed by Close.
type Bus struct {
	mu     sync.Mutex
	subs   map[Kind][]chan Signal
	closed bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[Kind][]chan Signal),
	}
}

// Subscribe registers for one signal kind and returns the receiving channel.
// Subscribing on a closed bus returns an already-closed channel.
func (b *Bus) Subscribe(kind Kind) <-chan Signal {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Signal, 1)
	if b.closed {
		close(ch)
		return ch
	}

	b.subs[kind] = append(b.subs[kind], ch)
	return ch
}

// Publish delivers a signal to every subscriber of its kind, replacing any
// undrained previous signal per subscriber. Returns false if the bus is
// closed. Publishing a kind nobody subscribed to is a no-op.
func (b *Bus) Publish(sig Signal) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	for _, ch := range b.subs[sig.Kind] {
		select {
		case ch <- sig:
			continue
		default:
		}

		// Buffer full: drop the stale signal, then retry. Only Publish
		// sends on subscription channels and it holds the lock, so the
		// retry cannot find the buffer full again.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- sig:
		default:
		}
	}

	return true
}

// Close shuts the bus down and closes every subscription channel, waking
// blocked receivers. Close is idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true
	for _, chans := range b.subs {
		for _, ch := range chans {
			close(ch)
		}
	}
	b.subs = nil
}
