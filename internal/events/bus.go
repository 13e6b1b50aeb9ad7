// Package events is a non-blocking publish/subscribe bus for scheduler
// notifications and command status transitions.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/me/rfsched/pkg/model"
)

// Topic selects what kind of payload an Event carries.
type Topic string

const (
	// TopicNotification is published for every dispatch-level callback delivery.
	TopicNotification Topic = "notification"
	// TopicTransition is published when a command's status changes.
	TopicTransition Topic = "transition"
)

// Event is one published item. Exactly one payload field is set, matching Topic.
type Event struct {
	Topic        Topic
	Timestamp    time.Time
	Notification *model.Notification
	Transition   *model.Transition
}

// Subscriber receives events.
type Subscriber func(Event)

// Bus delivers events asynchronously via one buffered channel per subscriber.
// If a subscriber's channel is full, the event is dropped for that subscriber.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Topic][]chan Event
	bufferSize  int
	dropped     atomic.Uint64
	wg          sync.WaitGroup
	closed      bool
}

// NewBus creates a bus with the given buffer size per subscriber.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Bus{
		subscribers: make(map[Topic][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers fn for topic and returns an unsubscribe function.
// fn runs on its own goroutine; a panic in fn is recovered and the event skipped.
func (b *Bus) Subscribe(topic Topic, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	if b.closed {
		close(ch)
		return func() {}
	}
	b.subscribers[topic] = append(b.subscribers[topic], ch)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for event := range ch {
			func() {
				defer func() { _ = recover() }()
				fn(event)
			}()
		}
	}()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.subscribers[topic]
		for i, subCh := range subs {
			if subCh == ch {
				b.subscribers[topic] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
}

// PublishNotification publishes n on TopicNotification.
func (b *Bus) PublishNotification(n model.Notification) {
	b.publish(Event{Topic: TopicNotification, Timestamp: time.Now().UTC(), Notification: &n})
}

// PublishTransition publishes t on TopicTransition.
func (b *Bus) PublishTransition(t model.Transition) {
	b.publish(Event{Topic: TopicTransition, Timestamp: time.Now().UTC(), Transition: &t})
}

func (b *Bus) publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers[event.Topic] {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns how many deliveries were dropped because a subscriber lagged.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes all subscriber channels and waits until every subscriber
// has consumed what was already queued.
func (b *Bus) Close() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		for topic, subs := range b.subscribers {
			for _, ch := range subs {
				close(ch)
			}
			delete(b.subscribers, topic)
		}
	}
	b.mu.Unlock()
	b.wg.Wait()
}
