package scheduler

import (
	"github.com/me/rfsched/internal/frontend"
	"github.com/me/rfsched/internal/ticks"
	"github.com/me/rfsched/pkg/model"
)

// RunScheduler is the scheduler level body. It decides whether the command
// in the next slot can be promoted and arranges for its setup.
func (r *Radio) RunScheduler() {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.next
	if next == nil {
		return
	}

	now := r.drv.CurrentTick()
	var delta int32
	if next.Scheduling == model.ScheduleNow {
		delta = int32(r.margins.TrigNowDelay)
	} else {
		delta = ticks.Delta(now, next.Timing.AbsStart)
	}

	if !next.AllowDelay && delta < -int32(r.margins.TrigNowDelay) {
		r.next = nil
		r.setStatusLocked(next, model.StatusErrorStartTooLate)
		r.retireLocked(next)
		r.logger.Warn("start too late", "cmd", next.ID, "abs_start", next.Timing.AbsStart,
			"now", now, "late_us", -ticks.Micros(delta))
		return
	}

	r.hooks.Schedule(r.state(), next)

	if r.next != next {
		// The schedule hook replaced or dropped the candidate.
		return
	}
	if cur := r.sched.current; cur != nil {
		r.logger.Debug("could not promote, command running", "next", next.ID, "current", cur.ID, "status", cur.Status)
		return
	}

	r.next = nil
	r.sched = schedState{current: next}
	r.hooks.Phy(r.state(), next)

	if delta <= int32(r.margins.SleepCutoff) {
		r.logger.Info("promoted, setup now", "cmd", next.ID, "kind", next.Kind, "until_start_us", ticks.Micros(delta))
		r.postEventLocked(model.EventSetup)
		return
	}

	cfg := next.Runtime.Client.Config
	reconfigure := r.radioState < frontend.RadioConfigured || cfg != r.config
	load := r.radioState < frontend.RadioImagesLoaded || r.drv.ImagesNeedUpdate(cfg)
	wake := next.Timing.AbsStart - r.margins.Setup(reconfigure, load)
	r.drv.ArmTimer(frontend.TimerSetup, wake)
	r.logger.Info("promoted, wake-up armed", "cmd", next.ID, "kind", next.Kind,
		"wake", wake, "until_start_us", ticks.Micros(delta), "reconfigure", reconfigure, "load", load)
}
