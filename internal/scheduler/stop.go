package scheduler

import (
	"github.com/me/rfsched/internal/frontend"
	"github.com/me/rfsched/internal/ticks"
	"github.com/me/rfsched/pkg/model"
)

// StatusForStop returns the terminal status of a command ended by a stop of
// type t requested for reason.
func StatusForStop(t model.StopType, reason model.StopReason) model.Status {
	switch t {
	case model.StopDescheduleOnly:
		if reason == model.StopReasonApi {
			return model.StatusDescheduledApi
		}
		return model.StatusDescheduledScheduling
	case model.StopGraceful:
		switch reason {
		case model.StopReasonTimeout:
			return model.StatusGracefulStopTimeout
		case model.StopReasonScheduling:
			return model.StatusGracefulStopScheduling
		}
		return model.StatusGracefulStopApi
	case model.StopHard:
		switch reason {
		case model.StopReasonTimeout:
			return model.StatusHardStopTimeout
		case model.StopReasonScheduling:
			return model.StatusHardStopScheduling
		}
		return model.StatusHardStopApi
	}
	return model.StatusFinished
}

// stopLocked implements the stop request path shared by the API and the
// scheduler. A command still in the next slot is removed at once. For the
// current command the stop is posted to the command level, and the front-end
// stop is sent once the command is armed, at most once per stop kind.
func (r *Radio) stopLocked(cmd *model.Command, t model.StopType, reason model.StopReason) model.Status {
	if cmd.Status < model.StatusQueued || cmd.Status.IsTerminal() || t == model.StopNone {
		r.logger.Debug("stop ignored", "cmd", cmd.ID, "type", t, "status", cmd.Status)
		return cmd.Status
	}

	if cmd == r.next {
		r.next = nil
		r.setStatusLocked(cmd, StatusForStop(model.StopDescheduleOnly, reason))
		r.retireLocked(cmd)
		r.logger.Debug("descheduled from next slot", "cmd", cmd.ID, "reason", reason)
		return cmd.Status
	}
	if cmd != r.sched.current {
		return cmd.Status
	}

	armed := cmd.Status >= model.StatusActive
	var ev model.Events
	switch t {
	case model.StopDescheduleOnly:
		r.sched.descheduleReason = reason
		ev = model.EventDescheduleStop
	case model.StopGraceful:
		ev = model.EventGracefulStop
		r.sched.graceful.reason = reason
		if armed && !r.sched.graceful.sent && !r.sched.hard.sent {
			r.drv.SendGracefulStop()
			r.sched.graceful.sent = true
		}
	case model.StopHard:
		ev = model.EventHardStop
		r.sched.hard.reason = reason
		if armed && !r.sched.hard.sent {
			r.drv.SendHardStop()
			r.sched.hard.sent = true
		}
	}
	r.postEventLocked(ev)
	r.logger.Debug("stop requested", "cmd", cmd.ID, "type", t, "reason", reason, "status", cmd.Status)
	return cmd.Status
}

// effective returns the earlier of the command and scheduled deadlines and
// the reason that goes with it.
func (si *stopInfo) effective() (uint32, model.StopReason, bool) {
	switch {
	case si.cmdSet && si.schedSet:
		if ticks.IsLater(si.schedDeadline, si.cmdDeadline) {
			return si.schedDeadline, model.StopReasonScheduling, true
		}
		return si.cmdDeadline, model.StopReasonTimeout, true
	case si.cmdSet:
		return si.cmdDeadline, model.StopReasonTimeout, true
	case si.schedSet:
		return si.schedDeadline, model.StopReasonScheduling, true
	}
	return 0, model.StopReasonNone, false
}

// armStopLocked arms the compare for one stop kind. It returns true with the
// reason when the deadline already passed and the stop must happen now.
func (r *Radio) armStopLocked(si *stopInfo, ev frontend.TimerEvent) (bool, model.StopReason) {
	at, reason, ok := si.effective()
	if !ok {
		return false, model.StopReasonNone
	}
	if !ticks.IsLater(r.drv.CurrentTick(), at) {
		return true, reason
	}
	si.reason = reason
	r.drv.ArmTimer(ev, at)
	return false, model.StopReasonNone
}

// setStopTimesLocked computes the stop deadlines once the current command
// actually started and arms them. It returns the stop that is already due.
func (r *Radio) setStopTimesLocked() (model.StopType, model.StopReason) {
	cmd := r.sched.current
	now := r.drv.CurrentTick()
	start := now
	if r.sched.startTimeSet && !ticks.IsLater(now, r.sched.startTime) {
		start = r.sched.startTime
	}
	r.sched.stopTimesActive = true

	if rel := cmd.Timing.RelHardStop; rel != 0 {
		r.sched.hard.cmdDeadline = start + rel
		r.sched.hard.cmdSet = true
	}
	if rel := cmd.Timing.RelGracefulStop; rel != 0 {
		r.sched.graceful.cmdDeadline = start + rel
		r.sched.graceful.cmdSet = true
	}

	hardNow, hardReason := r.armStopLocked(&r.sched.hard, frontend.TimerHardStop)
	gracefulNow, gracefulReason := r.armStopLocked(&r.sched.graceful, frontend.TimerGracefulStop)
	switch {
	case hardNow:
		return model.StopHard, hardReason
	case gracefulNow:
		return model.StopGraceful, gracefulReason
	}
	return model.StopNone, model.StopReasonNone
}

// setScheduledStopLocked sets a scheduled deadline on the current command.
// Before the command started the deadline is only recorded.
func (r *Radio) setScheduledStopLocked(t model.StopType, at uint32) model.StopType {
	var si *stopInfo
	var ev frontend.TimerEvent
	switch t {
	case model.StopHard:
		si, ev = &r.sched.hard, frontend.TimerHardStop
	case model.StopGraceful:
		si, ev = &r.sched.graceful, frontend.TimerGracefulStop
	default:
		return model.StopNone
	}
	si.schedDeadline = at
	si.schedSet = true
	if !r.sched.stopTimesActive {
		return model.StopNone
	}
	if due, _ := r.armStopLocked(si, ev); due {
		return t
	}
	return model.StopNone
}

// stopStatusLocked is the status for the stop of type t that took effect on the current command.
func (r *Radio) stopStatusLocked(t model.StopType) model.Status {
	switch t {
	case model.StopHard:
		return StatusForStop(t, r.sched.hard.reason)
	case model.StopGraceful:
		return StatusForStop(t, r.sched.graceful.reason)
	case model.StopDescheduleOnly:
		return StatusForStop(t, r.sched.descheduleReason)
	}
	return model.StatusFinished
}
