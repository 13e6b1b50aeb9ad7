package ticks

import (
	"math"
	"testing"
)

func TestDelta(t *testing.T) {
	tests := []struct {
		name     string
		from, to uint32
		want     int32
	}{
		{"forward", 100, 150, 50},
		{"backward", 150, 100, -50},
		{"equal", 7, 7, 0},
		{"across wrap forward", math.MaxUint32 - 9, 10, 20},
		{"across wrap backward", 10, math.MaxUint32 - 9, -20},
		{"half range", 0, 1<<31 - 1, math.MaxInt32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Delta(tt.from, tt.to); got != tt.want {
				t.Errorf("Delta(%d, %d) = %d, want %d", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestIsLater_Wraparound(t *testing.T) {
	near := uint32(math.MaxUint32 - 1)
	if !IsLater(near, 3) {
		t.Error("3 should be later than MaxUint32-1 after wrap")
	}
	if IsLater(3, near) {
		t.Error("MaxUint32-1 should not be later than 3 after wrap")
	}
	if IsLater(5, 5) {
		t.Error("a time is not later than itself")
	}
}

func TestAddAndEarliest(t *testing.T) {
	if got := Add(math.MaxUint32, 2); got != 1 {
		t.Errorf("Add wrap = %d, want 1", got)
	}
	if got := Add(10, -20); got != math.MaxUint32-9 {
		t.Errorf("Add negative = %d", got)
	}
	if got := Earliest(math.MaxUint32-5, 5); got != math.MaxUint32-5 {
		t.Errorf("Earliest across wrap = %d", got)
	}
	if got := Earliest(40, 30); got != 30 {
		t.Errorf("Earliest = %d, want 30", got)
	}
}

func TestMargins_Setup(t *testing.T) {
	m := Margins{Wakeup: 100, Arm: 10, Configure: 50, Load: 30}
	tests := []struct {
		reconf, load bool
		want         uint32
	}{
		{false, false, 110},
		{true, false, 160},
		{false, true, 140},
		{true, true, 190},
	}
	for _, tt := range tests {
		if got := m.Setup(tt.reconf, tt.load); got != tt.want {
			t.Errorf("Setup(%v, %v) = %d, want %d", tt.reconf, tt.load, got, tt.want)
		}
	}
}

func TestMargins_Validate(t *testing.T) {
	if err := DefaultMargins().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	bad := DefaultMargins()
	bad.SleepCutoff = bad.TrigNowDelay - 1
	if err := bad.Validate(); err == nil {
		t.Error("expected error for sleep cutoff below trigger delay")
	}
	bad = DefaultMargins()
	bad.TrigNowDelay = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected error for zero trigger delay")
	}
}

func TestMargins_Merge(t *testing.T) {
	m := DefaultMargins().Merge(Margins{SleepCutoff: 9999})
	if m.SleepCutoff != 9999 {
		t.Errorf("SleepCutoff = %d, want 9999", m.SleepCutoff)
	}
	if m.Wakeup != DefaultMargins().Wakeup {
		t.Errorf("Wakeup changed to %d", m.Wakeup)
	}
}
