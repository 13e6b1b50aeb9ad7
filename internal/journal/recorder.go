package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/me/rfsched/internal/events"
)

// Recorder writes bus events into a Journal under one run name.
type Recorder struct {
	j      Journal
	run    string
	logger *slog.Logger

	mu     sync.Mutex
	errors int
	unsubs []func()
}

// NewRecorder returns a recorder that journals events for run.
func NewRecorder(j Journal, run string, logger *slog.Logger) *Recorder {
	return &Recorder{
		j:      j,
		run:    run,
		logger: logger.With("component", "recorder", "run", run),
	}
}

// Attach subscribes the recorder to bus. Writes happen on the bus's
// subscriber goroutines; a failed write is logged and counted.
func (r *Recorder) Attach(bus *events.Bus) {
	unsubT := bus.Subscribe(events.TopicTransition, func(e events.Event) {
		r.write("transition", func(ctx context.Context) error {
			return r.j.RecordTransition(ctx, r.run, *e.Transition)
		})
	})
	unsubN := bus.Subscribe(events.TopicNotification, func(e events.Event) {
		r.write("notification", func(ctx context.Context) error {
			return r.j.RecordNotification(ctx, r.run, *e.Notification)
		})
	})

	r.mu.Lock()
	r.unsubs = append(r.unsubs, unsubT, unsubN)
	r.mu.Unlock()
}

// Detach unsubscribes from every attached bus.
func (r *Recorder) Detach() {
	r.mu.Lock()
	unsubs := r.unsubs
	r.unsubs = nil
	r.mu.Unlock()
	for _, u := range unsubs {
		u()
	}
}

// Errors returns the number of failed writes.
func (r *Recorder) Errors() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errors
}

func (r *Recorder) write(what string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		r.mu.Lock()
		r.errors++
		r.mu.Unlock()
		r.logger.Error("journal write failed", "what", what, "error", err)
	}
}
