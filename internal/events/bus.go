package events

import (
	"strings"
	"sync"
	"sync/atomic"
)

const defaultBufferSize = 256

// EventBus is a channel-based pub-sub event bus.
// Supports topic subscriptions and SubscribeAll for cross-topic consumers.
type EventBus struct {
	mu      sync.RWMutex
	subs    map[string][]chan Event // topic -> subscriber channels
	allSubs []chan Event
	closed  bool
	dropped atomic.Int64
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subs: make(map[string][]chan Event),
	}
}

// TopicFor maps an event to its topic using the event type prefix.
func TopicFor(event Event) string {
	if strings.HasPrefix(event.EventType(), TopicTask+".") {
		return TopicTask
	}
	return TopicWorkflow
}

// Subscribe creates a subscription to a single topic.
// bufSize <= 0 selects the default buffer of 256 events.
func (b *EventBus) Subscribe(topic string, bufSize int) <-chan Event {
	ch := newSubscriberChan(bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch
	}

	b.subs[topic] = append(b.subs[topic], ch)
	return ch
}

// SubscribeAll creates a subscription receiving events from every topic.
func (b *EventBus) SubscribeAll(bufSize int) <-chan Event {
	ch := newSubscriberChan(bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch
	}

	b.allSubs = append(b.allSubs, ch)
	return ch
}

func newSubscriberChan(bufSize int) chan Event {
	if bufSize <= 0 {
		bufSize = defaultBufferSize
	}
	return make(chan Event, bufSize)
}

// Publish delivers the event to subscribers of its topic and to all SubscribeAll channels.
// Never blocks: a full subscriber channel drops the event for that subscriber.
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, ch := range b.subs[TopicFor(event)] {
		b.send(ch, event)
	}
	for _, ch := range b.allSubs {
		b.send(ch, event)
	}
}

func (b *EventBus) send(ch chan Event, event Event) {
	select {
	case ch <- event:
	default:
		b.dropped.Add(1)
	}
}

// Dropped returns how many deliveries were discarded because a subscriber was full.
func (b *EventBus) Dropped() int64 {
	return b.dropped.Load()
}

// Close closes the bus and every subscriber channel. Safe to call more than once.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, channels := range b.subs {
		for _, ch := range channels {
			close(ch)
		}
	}
	for _, ch := range b.allSubs {
		close(ch)
	}
}
