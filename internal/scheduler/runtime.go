package scheduler

import (
	"github.com/me/rfsched/internal/frontend"
	"github.com/me/rfsched/internal/ticks"
	"github.com/me/rfsched/pkg/model"
)

// handlerRuntime is the model.Runtime handed to handlers. It is only used inside
// the command level, with the scheduler lock held.
type handlerRuntime struct {
	r *Radio
}

var _ model.Runtime = (*handlerRuntime)(nil)

func (rt *handlerRuntime) Now() uint32 {
	return rt.r.drv.CurrentTick()
}

// ScheduleStart arms the start compare for c at its requested start, or at
// earliest if that is later. A start-now command starts at the later of now
// and earliest. A start missed by no more than the trigger latency starts now.
func (rt *handlerRuntime) ScheduleStart(c *model.Command, earliest uint32) model.Status {
	r := rt.r
	now := r.drv.CurrentTick()
	at := now
	if c.Scheduling == model.ScheduleAbsTime {
		at = c.Timing.AbsStart
		if late := ticks.Delta(now, at); late < 0 {
			if !c.AllowDelay && late < -int32(r.margins.TrigNowDelay) {
				r.logger.Warn("start passed before arming", "cmd", c.ID, "abs_start", at, "now", now)
				return model.StatusErrorStartTooLate
			}
			at = now
		}
	}
	if ticks.IsLater(at, earliest) {
		at = earliest
	}
	r.sched.startTime = at
	r.sched.startTimeSet = true
	r.drv.ArmTimer(frontend.TimerStart, at)
	return model.StatusActive
}

func (rt *handlerRuntime) StopStatus(t model.StopType) model.Status {
	return rt.r.stopStatusLocked(t)
}

func (rt *handlerRuntime) RequestPhy(f model.PhyFeatures) {
	rt.r.sched.phy = f
}
