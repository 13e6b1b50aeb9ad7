package model

import "testing"

func TestStatus_Ordering(t *testing.T) {
	order := []Status{
		StatusIdle, StatusQueued, StatusActive,
		StatusFinished, StatusRejectedStart,
		StatusDescheduledApi, StatusHardStopScheduling,
		StatusError, StatusErrorAlreadySubmitted,
	}
	for i := 1; i < len(order); i++ {
		if order[i-1] >= order[i] {
			t.Errorf("%s should sort before %s", order[i-1], order[i])
		}
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		s    Status
		want bool
	}{
		{StatusIdle, false},
		{StatusQueued, false},
		{StatusActive, false},
		{StatusFinished, true},
		{StatusRejectedStart, true},
		{StatusGracefulStopApi, true},
		{StatusErrorSetup, true},
	}
	for _, tt := range tests {
		if got := tt.s.IsTerminal(); got != tt.want {
			t.Errorf("%s.IsTerminal() = %v, want %v", tt.s, got, tt.want)
		}
	}
}

func TestStatus_Classes(t *testing.T) {
	if !StatusHardStopTimeout.IsStop() {
		t.Error("hard_stop_timeout should be a stop status")
	}
	if StatusFinished.IsStop() {
		t.Error("finished should not be a stop status")
	}
	if !StatusErrorStartTooLate.IsError() {
		t.Error("error_start_too_late should be an error")
	}
	if StatusRejectedStart.IsError() {
		t.Error("rejected_start is a preemption outcome, not an error")
	}
}

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusIdle, StatusQueued, true},
		{StatusIdle, StatusError, true},
		{StatusIdle, StatusActive, false},
		{StatusQueued, StatusActive, true},
		{StatusQueued, StatusErrorStartTooLate, true},
		{StatusActive, StatusQueued, false},
		{StatusActive, StatusFinished, true},
		{StatusFinished, StatusActive, false},
		{StatusFinished, StatusQueued, true},
		{StatusHardStopApi, StatusQueued, true},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s → %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStatus_StringRoundTrip(t *testing.T) {
	for s, name := range statusNames {
		got, err := ParseStatus(name)
		if err != nil {
			t.Fatalf("ParseStatus(%q): %v", name, err)
		}
		if got != s {
			t.Errorf("ParseStatus(%q) = %s, want %s", name, got, s)
		}
	}
	if _, err := ParseStatus("bogus"); err == nil {
		t.Error("expected error for unknown status")
	}
	if got := Status(0x7f).String(); got != "status(0x7f)" {
		t.Errorf("String() = %q", got)
	}
}
