package scheduler

import (
	"github.com/me/rfsched/internal/frontend"
	"github.com/me/rfsched/internal/ticks"
	"github.com/me/rfsched/pkg/model"
)

// Hooks are the replaceable policy decisions of the scheduler. All methods
// run with the scheduler lock held and must only use the State they are given.
type Hooks interface {
	// Admit decides whether a submitted command is accepted. Accepting means
	// placing it with State.SetNext.
	Admit(s *State, c *model.Command) bool
	// Conflict selects how the current command is stopped in favor of next.
	Conflict(current, next *model.Command) model.StopType
	// Schedule runs before next is considered for promotion. It may stop the
	// current command immediately or set a scheduled stop deadline on it.
	Schedule(s *State, next *model.Command)
	// Phy prepares any front-end configuration change for a just-promoted command.
	Phy(s *State, c *model.Command)
}

// State is the view of the scheduler available to hooks.
type State struct {
	r *Radio
}

func (s *State) Now() uint32                           { return s.r.drv.CurrentTick() }
func (s *State) Current() *model.Command               { return s.r.sched.current }
func (s *State) Next() *model.Command                  { return s.r.next }
func (s *State) Margins() ticks.Margins                { return s.r.margins }
func (s *State) RadioState() frontend.RadioState       { return s.r.radioState }
func (s *State) Config() *model.PhyConfig              { return s.r.config }
func (s *State) RequestPhy(f model.PhyFeatures)        { s.r.sched.phy = f }
func (s *State) NextWantsStop() bool                   { return s.r.sched.nextWantsStop }
func (s *State) Client(c *model.Command) *model.Client { return c.Runtime.Client }

// Conflict asks the installed hooks for the stop type current must receive for next.
func (s *State) Conflict(current, next *model.Command) model.StopType {
	return s.r.hooks.Conflict(current, next)
}

// SetNext places c in the next-command slot and marks it queued. A nil c empties the slot.
func (s *State) SetNext(c *model.Command) {
	s.r.next = c
	if c != nil {
		s.r.setStatusLocked(c, model.StatusQueued)
	}
}

// Stop requests a stop of c on behalf of the scheduler.
func (s *State) Stop(c *model.Command, t model.StopType, reason model.StopReason) model.Status {
	return s.r.stopLocked(c, t, reason)
}

// SetScheduledStop sets the scheduled deadline of the current command's
// graceful or hard stop. It returns the stop type to apply immediately when
// the effective deadline has already passed, or StopNone.
func (s *State) SetScheduledStop(t model.StopType, at uint32) model.StopType {
	return s.r.setScheduledStopLocked(t, at)
}

// WantStop records that the next command depends on the current one stopping in time.
func (s *State) WantStop() {
	s.r.sched.nextWantsStop = true
}

// DefaultHooks implements a single next-command slot with conflict handling
// driven by the new command's ConflictPolicy.
type DefaultHooks struct{}

// Admit rejects the command when the next slot is occupied.
func (DefaultHooks) Admit(s *State, c *model.Command) bool {
	if s.Next() != nil {
		return false
	}
	s.SetNext(c)
	return true
}

// Conflict maps AlwaysInterrupt to a hard stop, Polite to a graceful stop
// and NeverInterrupt to a deschedule-only stop.
func (DefaultHooks) Conflict(_, next *model.Command) model.StopType {
	switch next.ConflictPolicy {
	case model.ConflictAlwaysInterrupt:
		return model.StopHard
	case model.ConflictPolite:
		return model.StopGraceful
	case model.ConflictNeverInterrupt:
		return model.StopDescheduleOnly
	}
	return model.StopNone
}

// Schedule stops the current command right away when next starts now or
// within two load margins; otherwise it pulls the current command's stop
// deadline in to that point.
func (DefaultHooks) Schedule(s *State, next *model.Command) {
	current := s.Current()
	if current == nil {
		return
	}
	stopType := s.Conflict(current, next)
	if stopType == model.StopNone {
		return
	}

	now := s.Now()
	then := next.Timing.AbsStart - 2*s.Margins().Load
	urgent := !ticks.IsLater(now, then)

	s.WantStop()
	if next.Scheduling == model.ScheduleNow || urgent {
		s.Stop(current, stopType, model.StopReasonScheduling)
		return
	}
	if stopType != model.StopHard && stopType != model.StopGraceful {
		return
	}
	if immediate := s.SetScheduledStop(stopType, then); immediate != model.StopNone {
		s.Stop(current, immediate, model.StopReasonScheduling)
	}
}

// Phy does nothing; the command level reconfigures on setup when the client config changed.
func (DefaultHooks) Phy(*State, *model.Command) {}
