package scheduler

import (
	"github.com/me/rfsched/internal/frontend"
	"github.com/me/rfsched/internal/levels"
	"github.com/me/rfsched/pkg/model"
)

// RunCommand is the command level body. It gathers posted, hardware and
// timer events for the current command, applies stops and setup, runs the
// handler and accumulates the events its client subscribed to.
func (r *Radio) RunCommand() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cmd := r.sched.current
	if cmd == nil || cmd.Status.IsTerminal() {
		return
	}
	client := cmd.Runtime.Client

	in := r.sched.posted
	r.sched.posted = model.EventNone
	fe := r.drv.ReadEvents()
	switch r.drv.PollTimer() {
	case frontend.TimerSetup:
		in |= model.EventSetup
	case frontend.TimerStart:
		in |= model.EventTimerStart
	case frontend.TimerHardStop:
		in |= model.EventHardStop
	case frontend.TimerGracefulStop:
		in |= model.EventGracefulStop
	}
	if in.Has(model.EventTimerStart) && cmd.Status < model.StatusActive {
		// A start compare left over from an earlier command.
		r.logger.Warn("start event before setup dropped", "cmd", cmd.ID, "status", cmd.Status)
		in &^= model.EventTimerStart
	}
	r.logger.Debug("command input", "cmd", cmd.ID, "in", in, "fe", fe, "status", cmd.Status)

	var out model.Events
	switch {
	case in.Any(model.EventStopAny):
		if cmd.Status == model.StatusQueued {
			// Not armed yet: end it without running the handler.
			r.drv.CancelTimer(frontend.TimerSetup)
			r.drv.CancelTimer(frontend.TimerStart)
			if in.Has(model.EventHardStop) {
				r.sched.descheduleReason = r.sched.hard.reason
			} else if in.Has(model.EventGracefulStop) {
				r.sched.descheduleReason = r.sched.graceful.reason
			}
			r.setStatusLocked(cmd, StatusForStop(model.StopDescheduleOnly, r.sched.descheduleReason))
		} else {
			r.forwardTimerStopsLocked(in)
		}
	case in.Has(model.EventSetup):
		if !r.setupLocked(cmd, cmd.Phy, true) {
			out |= model.EventLastCmdDone
		}
	}

	rt := &handlerRuntime{r: r}
	if cmd.Status >= model.StatusQueued && !cmd.Status.IsTerminal() {
		out |= r.invokeLocked(rt, cmd, fe, in)
	}

	if out.Has(model.EventCmdStarted) {
		if stop, reason := r.setStopTimesLocked(); stop != model.StopNone {
			r.stopLocked(cmd, stop, reason)
		}
	}

	if out.Has(model.EventPartialSetup) {
		if !r.setupLocked(cmd, r.sched.phy, false) {
			out |= model.EventLastCmdDone
		}
		if !cmd.Status.IsTerminal() {
			out |= r.invokeLocked(rt, cmd, model.FrontEndNone, model.EventHandlerCmdUpdate)
		}
	}

	done := cmd.Status.IsTerminal()
	if in.Has(model.EventGracefulStop) && !done {
		out |= model.EventStopDelayed
		r.logger.Warn("graceful stop delayed", "cmd", cmd.ID, "status", cmd.Status)
	}
	if in.Has(model.EventDescheduleStop) && !done {
		out |= model.EventStopRejected
		r.logger.Warn("deschedule rejected", "cmd", cmd.ID, "status", cmd.Status)
	}
	if done {
		out |= model.EventLastCmdDone
	}
	if out.Has(model.EventReinvoke) && !done {
		r.ctl.Trigger(levels.Command)
	}

	// Stop outcomes always reach the dispatch level since they concern the next command.
	mask := cmd.Runtime.SchedMask | model.EventStopOutcome
	client.DeferredFrontEnd |= cmd.Runtime.FrontEndMask & fe
	client.DeferredSched |= mask & out

	if done || client.DeferredFrontEnd != model.FrontEndNone || client.DeferredSched != model.EventNone {
		if done {
			r.drv.CancelTimer(frontend.TimerSetup)
			r.drv.CancelTimer(frontend.TimerStart)
			r.drv.CancelTimer(frontend.TimerGracefulStop)
			r.drv.CancelTimer(frontend.TimerHardStop)
			if !r.standbyAllowed {
				r.drv.ReleasePowerConstraint()
				r.standbyAllowed = true
			}
			r.logger.Info("command done", "cmd", cmd.ID, "kind", cmd.Kind, "status", cmd.Status)
		}
		r.ctl.Trigger(levels.Dispatch)
	}
}

// invokeLocked runs the handler and reports any status change it made.
func (r *Radio) invokeLocked(rt *handlerRuntime, cmd *model.Command, fe model.FrontEndEvents, in model.Events) model.Events {
	before := cmd.Status
	out := cmd.Runtime.Handler.Handle(rt, cmd, fe, in)
	if cmd.Status < before {
		r.logger.Error("handler decreased status", "cmd", cmd.ID, "from", before, "to", cmd.Status)
	}
	r.noteTransitionLocked(cmd, before)
	r.logger.Debug("handler output", "cmd", cmd.ID, "out", out, "status", cmd.Status)
	return out
}

// forwardTimerStopsLocked sends the front-end stops requested by expired
// stop deadlines, sharing the once-only flags with the API path.
func (r *Radio) forwardTimerStopsLocked(in model.Events) {
	if in.Has(model.EventHardStop) && !r.sched.hard.sent {
		r.drv.SendHardStop()
		r.sched.hard.sent = true
	}
	if in.Has(model.EventGracefulStop) && !r.sched.graceful.sent && !r.sched.hard.sent {
		r.drv.SendGracefulStop()
		r.sched.graceful.sent = true
	}
}

// setupLocked (re)configures the front-end for cmd. A full setup also
// adopts the client's config and keeps the device out of standby. It
// returns false when configuration failed and the command ended with
// StatusErrorSetup.
func (r *Radio) setupLocked(cmd *model.Command, phy model.PhyFeatures, full bool) bool {
	prior := r.radioState
	if full {
		if cfg := cmd.Runtime.Client.Config; r.config != cfg {
			r.config = cfg
			if prior > frontend.RadioImagesLoaded {
				prior = frontend.RadioImagesLoaded
			}
		}
	}

	ok := true
	if err := r.drv.Configure(r.config, phy, prior); err != nil {
		r.logger.Error("setup failed", "cmd", cmd.ID, "error", err)
		r.setStatusLocked(cmd, model.StatusErrorSetup)
		r.radioState = frontend.RadioDown
		ok = false
	} else {
		r.radioState = frontend.RadioConfigured
	}

	if full && r.standbyAllowed {
		r.drv.SetPowerConstraint()
		r.standbyAllowed = false
	}
	return ok
}
