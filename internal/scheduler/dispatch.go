package scheduler

import (
	"time"

	"github.com/me/rfsched/internal/levels"
	"github.com/me/rfsched/pkg/model"
)

type delivery struct {
	cmd    *model.Command
	status model.Status
	fe     model.FrontEndEvents
	ev     model.Events
}

// RunDispatch is the dispatch level body. It takes a finished command out of
// circulation, drains the deferred events of the current client and invokes
// client callbacks outside the lock, once per command per run.
func (r *Radio) RunDispatch() {
	r.mu.Lock()

	var out []delivery
	for _, cmd := range r.retired {
		r.releaseWaiterLocked(cmd)
		out = append(out, delivery{
			cmd:    cmd,
			status: cmd.Status,
			ev:     model.EventLastCmdDone & cmd.Runtime.SchedMask,
		})
	}
	r.retired = nil

	if cur := r.sched.current; cur != nil {
		client := cur.Runtime.Client
		if cur.Status.IsTerminal() {
			r.sched.current = nil
			r.releaseWaiterLocked(cur)
			r.ctl.Trigger(levels.Scheduler)
			r.logger.Debug("finished, clearing current", "cmd", cur.ID, "status", cur.Status)
		}

		fe := client.DeferredFrontEnd
		all := client.DeferredSched
		client.DeferredFrontEnd = model.FrontEndNone
		client.DeferredSched = model.EventNone

		if all.Any(model.EventStopOutcome) {
			if d, ok := r.rejectNextLocked(); ok {
				out = append(out, d)
			}
		}
		out = append(out, delivery{cmd: cur, status: cur.Status, fe: fe, ev: all & cur.Runtime.SchedMask})
	}
	tick := r.drv.CurrentTick()
	r.mu.Unlock()

	for _, d := range out {
		if d.fe == model.FrontEndNone && d.ev == model.EventNone {
			continue
		}
		cb := d.cmd.Runtime.Callback
		if cb == nil {
			continue
		}
		cb(d.cmd, d.fe, d.ev)
		r.notify(d, tick)
	}
}

// rejectNextLocked drops a next command that needed the current one to stop
// in time and cannot tolerate a delay. It synthesizes the delivery reporting
// the rejected start.
func (r *Radio) rejectNextLocked() (delivery, bool) {
	next := r.next
	if next == nil || next.AllowDelay || !r.sched.nextWantsStop {
		return delivery{}, false
	}
	r.next = nil
	r.sched.nextWantsStop = false
	r.setStatusLocked(next, model.StatusRejectedStart)
	r.releaseWaiterLocked(next)
	r.ctl.Trigger(levels.Scheduler)
	r.logger.Warn("rejected start, stop did not take effect in time", "cmd", next.ID)

	return delivery{
		cmd:    next,
		status: next.Status,
		ev:     (model.EventLastCmdDone | model.EventStartRejected) & next.Runtime.SchedMask,
	}, true
}

func (r *Radio) releaseWaiterLocked(cmd *model.Command) {
	client := cmd.Runtime.Client
	if client != nil && client.PendingCmd == cmd {
		client.PendingCmd = nil
		client.Post()
		r.logger.Debug("waiter released", "cmd", cmd.ID, "client_id", client.ID)
	}
}

func (r *Radio) notify(d delivery, tick uint32) {
	if r.obs == nil && r.bus == nil {
		return
	}
	n := model.Notification{
		CommandID: d.cmd.ID,
		Kind:      d.cmd.Kind,
		Status:    d.status,
		FrontEnd:  d.fe,
		Sched:     d.ev,
		Tick:      tick,
		At:        time.Now().UTC(),
	}
	if c := d.cmd.Runtime.Client; c != nil {
		n.ClientID = c.ID
	}
	if r.obs != nil {
		r.obs.OnNotification(n)
	}
	if r.bus != nil {
		r.bus.PublishNotification(n)
	}
}
