package events

import (
	"sync"
	"testing"
	"time"

	"github.com/me/rfsched/pkg/model"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(10)

	var mu sync.Mutex
	received := []Event{}

	unsub := bus.Subscribe(TopicNotification, func(e Event) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
	})
	defer unsub()

	bus.PublishNotification(model.Notification{CommandID: "cmd_1", Sched: model.EventLastCmdDone})
	bus.Close()

	mu.Lock()
	defer mu.Unlock()

	if len(received) != 1 {
		t.Fatalf("expected 1 event, got %d", len(received))
	}
	if received[0].Topic != TopicNotification {
		t.Errorf("expected topic %s, got %s", TopicNotification, received[0].Topic)
	}
	if n := received[0].Notification; n == nil || n.CommandID != "cmd_1" {
		t.Errorf("unexpected notification payload %+v", n)
	}
}

func TestBus_TopicIsolation(t *testing.T) {
	bus := NewBus(10)

	var mu sync.Mutex
	var transitions, notifications int
	bus.Subscribe(TopicTransition, func(e Event) {
		mu.Lock()
		transitions++
		mu.Unlock()
	})
	bus.Subscribe(TopicNotification, func(e Event) {
		mu.Lock()
		notifications++
		mu.Unlock()
	})

	bus.PublishTransition(model.Transition{CommandID: "cmd_1", From: model.StatusIdle, To: model.StatusQueued})
	bus.PublishTransition(model.Transition{CommandID: "cmd_1", From: model.StatusQueued, To: model.StatusActive})
	bus.PublishNotification(model.Notification{CommandID: "cmd_1"})
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	if transitions != 2 || notifications != 1 {
		t.Errorf("transitions=%d notifications=%d, want 2 and 1", transitions, notifications)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	count := 0
	var mu sync.Mutex
	unsub := bus.Subscribe(TopicNotification, func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	bus.PublishNotification(model.Notification{})
	time.Sleep(50 * time.Millisecond)
	unsub()
	bus.PublishNotification(model.Notification{})
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("expected 1 event after unsubscribe, got %d", count)
	}
}

func TestBus_DropsWhenFull(t *testing.T) {
	bus := NewBus(1)
	block := make(chan struct{})
	bus.Subscribe(TopicNotification, func(e Event) { <-block })

	for range 10 {
		bus.PublishNotification(model.Notification{})
	}
	close(block)
	bus.Close()

	if bus.Dropped() == 0 {
		t.Error("expected dropped deliveries with a blocked subscriber")
	}
}

func TestBus_PanicRecovery(t *testing.T) {
	bus := NewBus(10)

	var mu sync.Mutex
	calls := 0
	bus.Subscribe(TopicNotification, func(e Event) {
		mu.Lock()
		calls++
		mu.Unlock()
		panic("subscriber failure")
	})

	bus.PublishNotification(model.Notification{})
	bus.PublishNotification(model.Notification{})
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Errorf("subscriber called %d times, want 2", calls)
	}
}

func TestBus_SubscribeAfterClose(t *testing.T) {
	bus := NewBus(0)
	bus.Close()
	unsub := bus.Subscribe(TopicNotification, func(e Event) {})
	unsub()
	bus.PublishNotification(model.Notification{})
}
