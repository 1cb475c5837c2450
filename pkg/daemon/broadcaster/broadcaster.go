// Package broadcaster fans out snapshot events to subscribed clients.
package broadcaster

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind is the type of a snapshot event.
type Kind string

const (
	// KindCaptured is sent after a snapshot is written.
	KindCaptured Kind = "captured"
	// KindPruned is sent after retention removed snapshots.
	KindPruned Kind = "pruned"
)

// bufferSize is the per-subscriber queue length. Events beyond it are dropped
// for that subscriber.
const bufferSize = 64

// Event is one snapshot event.
type Event struct {
	Kind    Kind
	ID      string
	Files   int
	Removed []string
	Message string
	At      time.Time
}

// Subscriber receives events on Events until it is unsubscribed or the
// broadcaster closes.
type Subscriber struct {
	ID     string
	Kinds  []Kind
	Events chan *Event
}

func (s *Subscriber) wants(k Kind) bool {
	return len(s.Kinds) == 0 || slices.Contains(s.Kinds, k)
}

// Broadcaster manages subscribers.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	closed      bool
}

// New creates a Broadcaster.
func New() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[string]*Subscriber),
	}
}

// Subscribe registers a subscriber for the given kinds, or all kinds when
// none are given. It returns nil after Close.
func (b *Broadcaster) Subscribe(kinds ...Kind) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	sub := &Subscriber{
		ID:     uuid.NewString(),
		Kinds:  kinds,
		Events: make(chan *Event, bufferSize),
	}
	b.subscribers[sub.ID] = sub
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		close(sub.Events)
		delete(b.subscribers, id)
	}
}

// Publish sends ev to every subscriber that wants its kind. It never blocks;
// a subscriber with a full queue misses the event.
func (b *Broadcaster) Publish(ev *Event) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0
	}

	delivered := 0
	for _, sub := range b.subscribers {
		if !sub.wants(ev.Kind) {
			continue
		}
		select {
		case sub.Events <- ev:
			delivered++
		default:
		}
	}
	return delivered
}

// Close closes all subscriptions. Later Subscribe calls return nil.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true
	for _, sub := range b.subscribers {
		close(sub.Events)
	}
	b.subscribers = make(map[string]*Subscriber)
}

// SubscriberCount returns the number of active subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
