// Package ticks implements wrap-safe arithmetic on the 32-bit front-end tick
// counter and the lead-time margins reserved before a command starts.
package ticks

import "fmt"

// PerMicrosecond is the front-end timer rate (one tick every 250 ns).
const PerMicrosecond = 4

// Delta returns the signed distance from `from` to `to`. It is correct as long
// as the two times are less than 2^31 ticks apart, across counter wraparound.
func Delta(from, to uint32) int32 {
	return int32(to - from)
}

// IsLater reports whether b is strictly later than a.
func IsLater(a, b uint32) bool {
	return Delta(a, b) > 0
}

// Add offsets t by d ticks, wrapping modulo 2^32.
func Add(t uint32, d int32) uint32 {
	return t + uint32(d)
}

// Earliest returns the earlier of a and b.
func Earliest(a, b uint32) uint32 {
	if IsLater(b, a) {
		return b
	}
	return a
}

// Micros converts a tick count to microseconds.
func Micros(d int32) int32 {
	return d / PerMicrosecond
}

// Margins are lead times, in ticks, reserved before a command's start.
type Margins struct {
	// TrigNowDelay is the latency assumed for a start-now command.
	TrigNowDelay uint32 `yaml:"trig_now_delay" json:"trig_now_delay"`
	// SleepCutoff is the distance below which setup is posted immediately
	// instead of arming a wake-up timer.
	SleepCutoff uint32 `yaml:"sleep_cutoff" json:"sleep_cutoff"`
	Wakeup      uint32 `yaml:"wakeup" json:"wakeup"`
	Arm         uint32 `yaml:"arm" json:"arm"`
	Configure   uint32 `yaml:"configure" json:"configure"`
	Load        uint32 `yaml:"load" json:"load"`
}

// DefaultMargins returns margins sized for a typical sub-GHz/2.4 GHz front-end.
func DefaultMargins() Margins {
	return Margins{
		TrigNowDelay: 50 * PerMicrosecond,
		SleepCutoff:  1000 * PerMicrosecond,
		Wakeup:       400 * PerMicrosecond,
		Arm:          10 * PerMicrosecond,
		Configure:    200 * PerMicrosecond,
		Load:         150 * PerMicrosecond,
	}
}

// Validate checks that the margins are usable together.
func (m Margins) Validate() error {
	if m.TrigNowDelay == 0 {
		return fmt.Errorf("trig_now_delay must be > 0")
	}
	if m.SleepCutoff < m.TrigNowDelay {
		return fmt.Errorf("sleep_cutoff (%d) must not be below trig_now_delay (%d)", m.SleepCutoff, m.TrigNowDelay)
	}
	if total := uint64(m.Wakeup) + uint64(m.Arm) + uint64(m.Configure) + uint64(m.Load); total >= 1<<31 {
		return fmt.Errorf("margins sum to %d ticks, exceeding half the counter range", total)
	}
	return nil
}

// Setup returns the lead time needed before a command's start, given whether
// the front-end must be reconfigured and whether images must be loaded.
func (m Margins) Setup(reconfigure, load bool) uint32 {
	margin := m.Arm + m.Wakeup
	if reconfigure {
		margin += m.Configure
	}
	if load {
		margin += m.Load
	}
	return margin
}

// Merge returns m with every non-zero field of o applied.
func (m Margins) Merge(o Margins) Margins {
	if o.TrigNowDelay != 0 {
		m.TrigNowDelay = o.TrigNowDelay
	}
	if o.SleepCutoff != 0 {
		m.SleepCutoff = o.SleepCutoff
	}
	if o.Wakeup != 0 {
		m.Wakeup = o.Wakeup
	}
	if o.Arm != 0 {
		m.Arm = o.Arm
	}
	if o.Configure != 0 {
		m.Configure = o.Configure
	}
	if o.Load != 0 {
		m.Load = o.Load
	}
	return m
}
