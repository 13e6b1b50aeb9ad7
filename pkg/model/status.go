package model

import "fmt"

// Status is both the result code and the lifecycle phase of a Command.
// Values are ordered: a command is done once its status reaches Finished,
// and a status never decreases while the command is submitted.
type Status uint8

const (
	StatusIdle   Status = 0x00
	StatusQueued Status = 0x01
	StatusActive Status = 0x02

	StatusFinished      Status = 0x10
	StatusRxTimeout     Status = 0x11
	StatusNoSync        Status = 0x12
	StatusRxErr         Status = 0x13
	StatusChannelBusy   Status = 0x14
	StatusRejectedStart Status = 0x15

	StatusDescheduledApi         Status = 0x20
	StatusDescheduledScheduling  Status = 0x21
	StatusGracefulStopTimeout    Status = 0x22
	StatusGracefulStopApi        Status = 0x23
	StatusGracefulStopScheduling Status = 0x24
	StatusHardStopTimeout        Status = 0x25
	StatusHardStopApi            Status = 0x26
	StatusHardStopScheduling     Status = 0x27

	StatusError                 Status = 0x80
	StatusErrorSetup            Status = 0x81
	StatusErrorParam            Status = 0x82
	StatusErrorStartTooLate     Status = 0x83
	StatusErrorAlreadySubmitted Status = 0x84
)

var statusNames = map[Status]string{
	StatusIdle:                   "idle",
	StatusQueued:                 "queued",
	StatusActive:                 "active",
	StatusFinished:               "finished",
	StatusRxTimeout:              "rx_timeout",
	StatusNoSync:                 "no_sync",
	StatusRxErr:                  "rx_err",
	StatusChannelBusy:            "channel_busy",
	StatusRejectedStart:          "rejected_start",
	StatusDescheduledApi:         "descheduled_api",
	StatusDescheduledScheduling:  "descheduled_scheduling",
	StatusGracefulStopTimeout:    "graceful_stop_timeout",
	StatusGracefulStopApi:        "graceful_stop_api",
	StatusGracefulStopScheduling: "graceful_stop_scheduling",
	StatusHardStopTimeout:        "hard_stop_timeout",
	StatusHardStopApi:            "hard_stop_api",
	StatusHardStopScheduling:     "hard_stop_scheduling",
	StatusError:                  "error",
	StatusErrorSetup:             "error_setup",
	StatusErrorParam:             "error_param",
	StatusErrorStartTooLate:      "error_start_too_late",
	StatusErrorAlreadySubmitted:  "error_already_submitted",
}

// String returns the snake_case name of the status.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(0x%02x)", uint8(s))
}

// ParseStatus is the inverse of String.
func ParseStatus(name string) (Status, error) {
	for s, n := range statusNames {
		if n == name {
			return s, nil
		}
	}
	return StatusIdle, fmt.Errorf("unknown status %q", name)
}

// IsTerminal returns true once the command will not run again until resubmitted.
func (s Status) IsTerminal() bool {
	return s >= StatusFinished
}

// IsStop returns true for the statuses produced by a deschedule, graceful or hard stop.
func (s Status) IsStop() bool {
	return s >= StatusDescheduledApi && s <= StatusHardStopScheduling
}

// IsError returns true for error statuses.
func (s Status) IsError() bool {
	return s >= StatusError
}

// CanTransitionTo reports whether moving from s to next keeps status monotonic.
// An idle or terminal status only moves through a new submission, which
// either queues the command or rejects it with an error.
func (s Status) CanTransitionTo(next Status) bool {
	if s.IsTerminal() || s == StatusIdle {
		return next == StatusQueued || next.IsError()
	}
	return next >= s
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
