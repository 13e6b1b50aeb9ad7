package model

import "time"

// Runtime is the scheduler surface available to a handler while it runs
// inside the command level. Its methods assume the scheduler lock is held.
type Runtime interface {
	// Now returns the current front-end tick.
	Now() uint32
	// ScheduleStart arms the start-due event for c at the later of its
	// requested start and earliest. It returns StatusActive on success or
	// StatusErrorStartTooLate when the start passed and c does not allow delay.
	ScheduleStart(c *Command, earliest uint32) Status
	// StopStatus returns the terminal status for the stop of type t that took effect.
	StopStatus(t StopType) Status
	// RequestPhy records the feature set for a following partial setup.
	RequestPhy(f PhyFeatures)
}

// Handler drives one command kind. It is called from the command level with
// the gathered front-end and scheduler events and returns its output events.
// Handlers must not call back into the scheduler's public API.
type Handler interface {
	Handle(rt Runtime, c *Command, fe FrontEndEvents, in Events) Events
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(rt Runtime, c *Command, fe FrontEndEvents, in Events) Events

// Handle calls f.
func (f HandlerFunc) Handle(rt Runtime, c *Command, fe FrontEndEvents, in Events) Events {
	return f(rt, c, fe, in)
}

// Notification records one dispatch-level delivery to a client.
type Notification struct {
	CommandID string         `json:"command_id"`
	ClientID  string         `json:"client_id"`
	Kind      string         `json:"kind"`
	Status    Status         `json:"status"`
	FrontEnd  FrontEndEvents `json:"front_end"`
	Sched     Events         `json:"sched"`
	Tick      uint32         `json:"tick"`
	At        time.Time      `json:"at"`
}

// Transition records one status change of a command.
type Transition struct {
	CommandID string `json:"command_id"`
	Kind      string `json:"kind"`
	From      Status `json:"from"`
	To        Status `json:"to"`
	Tick      uint32 `json:"tick"`
}
