package model

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Schedule selects how a command's start time is interpreted.
type Schedule uint8

const (
	// ScheduleNow starts the command as soon as the front-end is available.
	ScheduleNow Schedule = iota
	// ScheduleAbsTime starts the command at Timing.AbsStart.
	ScheduleAbsTime
)

func (s Schedule) String() string {
	if s == ScheduleAbsTime {
		return "abs_time"
	}
	return "now"
}

// ConflictPolicy tells the scheduler how a new command treats a running one.
type ConflictPolicy uint8

const (
	ConflictAlwaysInterrupt ConflictPolicy = iota
	ConflictPolite
	ConflictNeverInterrupt
)

func (p ConflictPolicy) String() string {
	switch p {
	case ConflictAlwaysInterrupt:
		return "always_interrupt"
	case ConflictPolite:
		return "polite"
	case ConflictNeverInterrupt:
		return "never_interrupt"
	}
	return fmt.Sprintf("conflict(%d)", uint8(p))
}

// ParseConflictPolicy accepts the String names and the short forms always, polite and never.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch s {
	case "always", "always_interrupt":
		return ConflictAlwaysInterrupt, nil
	case "polite", "":
		return ConflictPolite, nil
	case "never", "never_interrupt":
		return ConflictNeverInterrupt, nil
	}
	return ConflictPolite, fmt.Errorf("unknown conflict policy %q", s)
}

// StopType is the granularity of a stop request. Values are ordered by strength.
type StopType uint8

const (
	StopNone StopType = iota
	StopDescheduleOnly
	StopGraceful
	StopHard
)

func (t StopType) String() string {
	switch t {
	case StopNone:
		return "none"
	case StopDescheduleOnly:
		return "deschedule"
	case StopGraceful:
		return "graceful"
	case StopHard:
		return "hard"
	}
	return fmt.Sprintf("stop(%d)", uint8(t))
}

// ParseStopType is the inverse of String.
func ParseStopType(s string) (StopType, error) {
	switch s {
	case "none", "":
		return StopNone, nil
	case "deschedule", "deschedule_only":
		return StopDescheduleOnly, nil
	case "graceful":
		return StopGraceful, nil
	case "hard":
		return StopHard, nil
	}
	return StopNone, fmt.Errorf("unknown stop type %q", s)
}

// StopReason records who asked for a stop.
type StopReason uint8

const (
	StopReasonNone StopReason = iota
	StopReasonTimeout
	StopReasonScheduling
	StopReasonApi
)

func (r StopReason) String() string {
	switch r {
	case StopReasonTimeout:
		return "timeout"
	case StopReasonScheduling:
		return "scheduling"
	case StopReasonApi:
		return "api"
	}
	return "none"
}

// MarshalText implements encoding.TextMarshaler.
func (r StopReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// PhyFeatures selects the front-end feature set a command needs within its PHY.
type PhyFeatures uint16

// PhyConfig describes a front-end configuration. Identity is by pointer: two
// clients sharing the same *PhyConfig never force a reconfiguration.
type PhyConfig struct {
	Name   string
	Images []string
}

// Timing holds the command's start and stop times in front-end ticks.
// RelGracefulStop and RelHardStop are relative to the actual start; zero disables them.
type Timing struct {
	AbsStart        uint32
	RelGracefulStop uint32
	RelHardStop     uint32
}

// Callback is invoked from the dispatch level with the coalesced events the
// owning client subscribed to.
type Callback func(cmd *Command, fe FrontEndEvents, ev Events)

// CommandRuntime binds a command to its owner and its behavior.
type CommandRuntime struct {
	Client       *Client
	Handler      Handler
	Callback     Callback
	SchedMask    Events
	FrontEndMask FrontEndEvents
}

// Command is one request to use the radio front-end for a bounded operation.
// It is owned by the caller and referenced, never copied, by the scheduler.
type Command struct {
	ID             string
	Kind           string
	Status         Status
	Scheduling     Schedule
	Timing         Timing
	AllowDelay     bool
	ConflictPolicy ConflictPolicy
	Phy            PhyFeatures
	Runtime        CommandRuntime
}

// NewCommand returns an idle command of the given kind with a fresh ID.
func NewCommand(kind string, h Handler) *Command {
	return &Command{
		ID:             NewCommandID(),
		Kind:           kind,
		Status:         StatusIdle,
		Scheduling:     ScheduleNow,
		ConflictPolicy: ConflictPolite,
		Runtime:        CommandRuntime{Handler: h},
	}
}

// Done reports whether the command reached a terminal status.
func (c *Command) Done() bool {
	return c.Status.IsTerminal()
}

func (c *Command) String() string {
	return fmt.Sprintf("%s(%s %s)", c.Kind, c.ID, c.Status)
}

// Client is one logical owner of commands, typically one protocol stack.
// The deferred accumulators and PendingCmd belong to the scheduler and are
// only touched with its lock held.
type Client struct {
	ID     string
	Name   string
	Config *PhyConfig

	PendingCmd       *Command
	DeferredFrontEnd FrontEndEvents
	DeferredSched    Events

	pendSem chan struct{}
}

// NewClient returns a client bound to cfg.
func NewClient(name string, cfg *PhyConfig) *Client {
	return &Client{
		ID:      NewClientID(),
		Name:    name,
		Config:  cfg,
		pendSem: make(chan struct{}, 1),
	}
}

// Post releases a blocked Pend. Extra posts are absorbed, as with a binary semaphore.
func (c *Client) Post() {
	select {
	case c.pendSem <- struct{}{}:
	default:
	}
}

// Pend blocks until Post is called or ctx is done.
func (c *Client) Pend(ctx context.Context) error {
	select {
	case <-c.pendSem:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain discards a pending Post.
func (c *Client) Drain() {
	select {
	case <-c.pendSem:
	default:
	}
}

// NewCommandID returns a command identifier.
func NewCommandID() string {
	return "cmd_" + uuid.New().String()
}

// NewClientID returns a client identifier.
func NewClientID() string {
	return "cli_" + uuid.New().String()[:8]
}
