package scheduler

import "github.com/me/rfsched/pkg/model"

// CommandView is a read-only summary of a command held by the scheduler.
type CommandView struct {
	ID       string       `json:"id"`
	Kind     string       `json:"kind"`
	ClientID string       `json:"client_id,omitempty"`
	Status   model.Status `json:"status"`
	AbsStart uint32       `json:"abs_start,omitempty"`
}

// StopView summarizes one stop mechanism of the current command.
type StopView struct {
	Deadline uint32           `json:"deadline,omitempty"`
	Armed    bool             `json:"armed"`
	Sent     bool             `json:"sent"`
	Reason   model.StopReason `json:"reason"`
}

// Snapshot is a consistent copy of the scheduler's state.
type Snapshot struct {
	Tick           uint32       `json:"tick"`
	Clients        int          `json:"clients"`
	RadioState     string       `json:"radio_state"`
	Config         string       `json:"config,omitempty"`
	StandbyAllowed bool         `json:"standby_allowed"`
	Current        *CommandView `json:"current,omitempty"`
	Next           *CommandView `json:"next,omitempty"`
	NextWantsStop  bool         `json:"next_wants_stop"`
	HardStop       StopView     `json:"hard_stop"`
	GracefulStop   StopView     `json:"graceful_stop"`
	Posted         string       `json:"posted"`
}

// Snapshot returns a copy of the scheduler state.
func (r *Radio) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		Tick:           r.drv.CurrentTick(),
		Clients:        r.numClients,
		RadioState:     r.radioState.String(),
		StandbyAllowed: r.standbyAllowed,
		Current:        viewOf(r.sched.current),
		Next:           viewOf(r.next),
		NextWantsStop:  r.sched.nextWantsStop,
		HardStop:       stopViewOf(r.sched.hard),
		GracefulStop:   stopViewOf(r.sched.graceful),
		Posted:         r.sched.posted.String(),
	}
	if r.config != nil {
		s.Config = r.config.Name
	}
	return s
}

func viewOf(c *model.Command) *CommandView {
	if c == nil {
		return nil
	}
	v := &CommandView{ID: c.ID, Kind: c.Kind, Status: c.Status}
	if c.Scheduling == model.ScheduleAbsTime {
		v.AbsStart = c.Timing.AbsStart
	}
	if c.Runtime.Client != nil {
		v.ClientID = c.Runtime.Client.ID
	}
	return v
}

func stopViewOf(si stopInfo) StopView {
	at, reason, ok := si.effective()
	if !ok {
		reason = si.reason
	}
	return StopView{Deadline: at, Armed: ok, Sent: si.sent, Reason: reason}
}
