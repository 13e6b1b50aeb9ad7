// Package levels runs three strictly prioritized execution levels. Each level
// is a function bound once; triggering marks it pending, and the controller
// always runs the highest pending level next. A level runs to completion and
// never overlaps itself or another level.
package levels

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Level identifies an execution level. Higher values have higher priority.
type Level uint8

const (
	Scheduler Level = iota
	Dispatch
	Command

	numLevels
)

func (l Level) String() string {
	switch l {
	case Scheduler:
		return "scheduler"
	case Dispatch:
		return "dispatch"
	case Command:
		return "command"
	}
	return fmt.Sprintf("level(%d)", uint8(l))
}

// Controller owns the pending flags and the single execution context.
type Controller struct {
	mu       sync.Mutex
	pending  [numLevels]bool
	handlers [numLevels]func()
	runs     [numLevels]uint64

	// exec serializes level bodies.
	exec sync.Mutex

	wake   chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
	logger *slog.Logger
}

// New returns a controller with no levels bound.
func New(logger *slog.Logger) *Controller {
	return &Controller{
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		logger: logger.With("component", "levels"),
	}
}

// Bind installs fn as the body of level l.
func (c *Controller) Bind(l Level, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[l] = fn
}

// Trigger marks l pending. It never blocks and may be called from any level.
func (c *Controller) Trigger(l Level) {
	c.mu.Lock()
	c.pending[l] = true
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Pending reports whether l is waiting to run.
func (c *Controller) Pending(l Level) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[l]
}

// Runs returns how many times l has run.
func (c *Controller) Runs(l Level) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs[l]
}

// Step runs the highest pending level once. It returns false when nothing was pending.
func (c *Controller) Step() (Level, bool) {
	c.exec.Lock()
	defer c.exec.Unlock()

	c.mu.Lock()
	l, ok := c.highestLocked()
	var fn func()
	if ok {
		c.pending[l] = false
		c.runs[l]++
		fn = c.handlers[l]
	}
	c.mu.Unlock()

	if !ok {
		return 0, false
	}
	if fn != nil {
		fn()
	}
	return l, true
}

func (c *Controller) highestLocked() (Level, bool) {
	for l := Command; ; l-- {
		if c.pending[l] {
			return l, true
		}
		if l == Scheduler {
			return 0, false
		}
	}
}

// RunPending steps until no level is pending and returns the number of level runs.
func (c *Controller) RunPending() int {
	n := 0
	for {
		if _, ok := c.Step(); !ok {
			return n
		}
		n++
	}
}

// Run executes triggered levels until ctx is cancelled or Stop is called.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info("level controller started")
	defer close(c.doneCh)
	for {
		c.RunPending()
		select {
		case <-ctx.Done():
			c.logger.Info("level controller stopping (context cancelled)")
			return ctx.Err()
		case <-c.stopCh:
			c.logger.Info("level controller stopping (stop called)")
			return nil
		case <-c.wake:
		}
	}
}

// Stop ends Run and waits for the level in progress to finish.
func (c *Controller) Stop() {
	c.once.Do(func() { close(c.stopCh) })
	<-c.doneCh
}
