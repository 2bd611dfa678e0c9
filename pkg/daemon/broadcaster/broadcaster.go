// Package broadcaster fans frame changes out to in-process subscribers.
package broadcaster

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// EventType is the kind of frame change.
type EventType int

const (
	EventNew EventType = iota
	EventConfirmed
	EventRemoved
)

func (t EventType) String() string {
	switch t {
	case EventNew:
		return "new"
	case EventConfirmed:
		return "confirmed"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// FrameEvent is one frame change.
type FrameEvent struct {
	Type  EventType
	Level string
	Name  string
	Size  int64
}

// Subscriber receives events for the levels it asked for.
type Subscriber struct {
	ID string
	// Levels restricts delivery; empty means every level.
	Levels []string
	Events chan *FrameEvent
}

// Broadcaster manages subscribers and distributes frame events.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	closed      bool
	dropped     atomic.Int64
	buffer      int
}

// New creates a new Broadcaster whose subscriber channels hold buffer events.
func New(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 100
	}
	return &Broadcaster{
		subscribers: make(map[string]*Subscriber),
		buffer:      buffer,
	}
}

// Subscribe registers a subscriber. It returns nil after Close.
func (b *Broadcaster) Subscribe(levels ...string) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	sub := &Subscriber{
		ID:     uuid.New().String(),
		Levels: levels,
		Events: make(chan *FrameEvent, b.buffer),
	}
	b.subscribers[sub.ID] = sub
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		close(sub.Events)
		delete(b.subscribers, id)
	}
}

// Notify delivers ev to every matching subscriber without blocking.
// Events for a full subscriber are dropped and counted.
func (b *Broadcaster) Notify(ev FrameEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subscribers {
		if len(sub.Levels) > 0 && !slices.Contains(sub.Levels, ev.Level) {
			continue
		}
		event := ev
		select {
		case sub.Events <- &event:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns the number of events discarded for slow subscribers.
func (b *Broadcaster) Dropped() int64 {
	return b.dropped.Load()
}

// Close closes the broadcaster and all subscriptions.
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
