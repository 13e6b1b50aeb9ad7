package model

import (
	"fmt"
	"strings"
)

// Events is the scheduler event vocabulary. The first group is input to a
// command handler, the second group is produced by handlers or by the
// scheduler itself and may be subscribed to by clients.
type Events uint32

const (
	EventSetup Events = 1 << iota
	EventTimerStart
	EventGracefulStop
	EventHardStop
	EventDescheduleStop
	EventHandlerCmdUpdate

	EventCmdStarted
	EventPartialSetup
	EventLastCmdDone
	EventStopDelayed
	EventStopRejected
	EventStartRejected
	EventReinvoke
	EventRxEntryAvail
	EventTxDone

	EventNone Events = 0
)

// EventStopAny groups the three stop requests the executor reacts to.
const EventStopAny = EventGracefulStop | EventHardStop | EventDescheduleStop

// EventStopOutcome groups the events reporting that a stop did not take effect.
const EventStopOutcome = EventStopDelayed | EventStopRejected

var eventNames = []struct {
	ev   Events
	name string
}{
	{EventSetup, "setup"},
	{EventTimerStart, "timer_start"},
	{EventGracefulStop, "graceful_stop"},
	{EventHardStop, "hard_stop"},
	{EventDescheduleStop, "deschedule_stop"},
	{EventHandlerCmdUpdate, "handler_cmd_update"},
	{EventCmdStarted, "cmd_started"},
	{EventPartialSetup, "partial_setup"},
	{EventLastCmdDone, "last_cmd_done"},
	{EventStopDelayed, "stop_delayed"},
	{EventStopRejected, "stop_rejected"},
	{EventStartRejected, "start_rejected"},
	{EventReinvoke, "reinvoke"},
	{EventRxEntryAvail, "rx_entry_avail"},
	{EventTxDone, "tx_done"},
}

// Has returns true if every bit of mask is set in e.
func (e Events) Has(mask Events) bool {
	return mask != 0 && e&mask == mask
}

// Any returns true if at least one bit of mask is set in e.
func (e Events) Any(mask Events) bool {
	return e&mask != 0
}

func (e Events) String() string {
	if e == EventNone {
		return "none"
	}
	var parts []string
	rest := e
	for _, en := range eventNames {
		if e&en.ev != 0 {
			parts = append(parts, en.name)
			rest &^= en.ev
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// ParseEvents parses names joined by '|' or given separately.
func ParseEvents(names ...string) (Events, error) {
	var out Events
	for _, raw := range names {
		for _, name := range strings.Split(raw, "|") {
			name = strings.TrimSpace(name)
			if name == "" || name == "none" {
				continue
			}
			found := false
			for _, en := range eventNames {
				if en.name == name {
					out |= en.ev
					found = true
					break
				}
			}
			if !found {
				return EventNone, fmt.Errorf("unknown scheduler event %q", name)
			}
		}
	}
	return out, nil
}

// FrontEndEvents is the bitmask of hardware events raised by the radio front-end.
type FrontEndEvents uint32

const (
	FrontEndOpDone FrontEndEvents = 1 << iota
	FrontEndOpStopped
	FrontEndOpAborted
	FrontEndOpError
	FrontEndRxOk
	FrontEndRxNok
	FrontEndTxDone
	FrontEndRfeDone

	FrontEndNone FrontEndEvents = 0
)

var frontEndNames = []struct {
	ev   FrontEndEvents
	name string
}{
	{FrontEndOpDone, "op_done"},
	{FrontEndOpStopped, "op_stopped"},
	{FrontEndOpAborted, "op_aborted"},
	{FrontEndOpError, "op_error"},
	{FrontEndRxOk, "rx_ok"},
	{FrontEndRxNok, "rx_nok"},
	{FrontEndTxDone, "tx_done"},
	{FrontEndRfeDone, "rfe_done"},
}

// Has returns true if every bit of mask is set in e.
func (e FrontEndEvents) Has(mask FrontEndEvents) bool {
	return mask != 0 && e&mask == mask
}

func (e FrontEndEvents) String() string {
	if e == FrontEndNone {
		return "none"
	}
	var parts []string
	rest := e
	for _, en := range frontEndNames {
		if e&en.ev != 0 {
			parts = append(parts, en.name)
			rest &^= en.ev
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// ParseFrontEndEvents parses front-end event names.
func ParseFrontEndEvents(names ...string) (FrontEndEvents, error) {
	var out FrontEndEvents
	for _, raw := range names {
		for _, name := range strings.Split(raw, "|") {
			name = strings.TrimSpace(name)
			if name == "" || name == "none" {
				continue
			}
			found := false
			for _, en := range frontEndNames {
				if en.name == name {
					out |= en.ev
					found = true
					break
				}
			}
			if !found {
				return FrontEndNone, fmt.Errorf("unknown front-end event %q", name)
			}
		}
	}
	return out, nil
}
