package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/me/rfsched/internal/events"
	"github.com/me/rfsched/internal/frontend"
	"github.com/me/rfsched/internal/handlers"
	"github.com/me/rfsched/internal/scheduler"
	"github.com/me/rfsched/pkg/model"
)

// StopResult is the outcome of one scripted stop.
type StopResult struct {
	Command string         `json:"command"`
	At      uint32         `json:"at"`
	Type    model.StopType `json:"type"`
	Status  model.Status   `json:"status"`
}

// Result is what a scenario run produced. Command IDs are the scenario's ids.
type Result struct {
	Name          string                  `json:"name"`
	Final         map[string]model.Status `json:"final"`
	Notifications []model.Notification    `json:"notifications"`
	Trace         []model.Transition      `json:"trace"`
	Stops         []StopResult            `json:"stops,omitempty"`
	Calls         frontend.Calls          `json:"calls"`
	EndTick       uint32                  `json:"end_tick"`
}

// Runner executes one scenario on its own simulated front-end and scheduler.
type Runner struct {
	file   *File
	logger *slog.Logger
	pace   time.Duration

	sim     *frontend.Sim
	radio   *scheduler.Radio
	clients map[string]*model.Client
	cmds    map[string]*model.Command
	specs   map[string]CommandSpec
	names   map[string]string // model ID to scenario ID
	trace   *traceObserver
}

// RunnerOption configures a Runner.
type RunnerOption func(*runnerOptions)

type runnerOptions struct {
	bus  *events.Bus
	pace time.Duration
}

// WithBus publishes the run's notifications and transitions on bus.
func WithBus(b *events.Bus) RunnerOption {
	return func(o *runnerOptions) { o.bus = b }
}

// WithPace sleeps d of wall-clock time for every Step ticks simulated.
func WithPace(d time.Duration) RunnerOption {
	return func(o *runnerOptions) { o.pace = d }
}

// NewRunner builds the front-end, scheduler, clients and commands for f.
func NewRunner(f *File, logger *slog.Logger, opts ...RunnerOption) (*Runner, error) {
	var o runnerOptions
	for _, opt := range opts {
		opt(&o)
	}

	r := &Runner{
		file:    f,
		logger:  logger.With("component", "scenario", "scenario", f.Name),
		pace:    o.pace,
		sim:     frontend.NewSim(f.StartTick, logger),
		clients: make(map[string]*model.Client, len(f.Clients)),
		cmds:    make(map[string]*model.Command, len(f.Commands)),
		specs:   make(map[string]CommandSpec, len(f.Commands)),
		names:   make(map[string]string, len(f.Commands)),
	}
	r.trace = &traceObserver{names: r.names}
	for _, name := range f.FailSetup {
		r.sim.FailConfigure(name)
	}

	radioOpts := []scheduler.Option{
		scheduler.WithLogger(logger),
		scheduler.WithMargins(f.EffectiveMargins()),
		scheduler.WithObserver(r.trace),
	}
	if o.bus != nil {
		radioOpts = append(radioOpts, scheduler.WithBus(o.bus))
	}
	r.radio = scheduler.New(r.sim, radioOpts...)

	configs := make(map[string]*model.PhyConfig)
	for _, cs := range f.Clients {
		cfg, ok := configs[cs.Phy]
		if !ok {
			cfg = &model.PhyConfig{Name: cs.Phy, Images: []string{cs.Phy}}
			configs[cs.Phy] = cfg
		}
		r.clients[cs.Name] = r.radio.Open(cs.Name, cfg)
	}

	for _, cs := range f.Commands {
		cmd, err := r.buildCommand(cs)
		if err != nil {
			return nil, fmt.Errorf("command %q: %w", cs.ID, err)
		}
		r.cmds[cs.ID] = cmd
		r.specs[cs.ID] = cs
		r.names[cmd.ID] = cs.ID
	}
	return r, nil
}

func (r *Runner) buildCommand(cs CommandSpec) (*model.Command, error) {
	cmd, err := handlers.NewCommand(cs.Kind, r.sim, cs.Params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownKind, err)
	}
	policy, err := model.ParseConflictPolicy(cs.Conflict)
	if err != nil {
		return nil, err
	}
	cmd.ConflictPolicy = policy
	cmd.AllowDelay = cs.AllowDelay
	cmd.Phy = model.PhyFeatures(cs.Phy)
	cmd.Timing.RelGracefulStop = cs.GracefulStop
	cmd.Timing.RelHardStop = cs.HardStop
	if at, ok := cs.Start.offset(cs.SubmitAt); ok {
		cmd.Scheduling = model.ScheduleAbsTime
		cmd.Timing.AbsStart = r.file.StartTick + at
	}

	var client ClientSpec
	for _, c := range r.file.Clients {
		if c.Name == cs.Client {
			client = c
		}
	}
	mask := DefaultSubscription
	if len(client.Subscribe) > 0 {
		if mask, err = model.ParseEvents(client.Subscribe...); err != nil {
			return nil, err
		}
	}
	fe, err := model.ParseFrontEndEvents(client.FrontEnd...)
	if err != nil {
		return nil, err
	}
	cmd.Runtime.SchedMask = mask
	cmd.Runtime.FrontEndMask = fe
	cmd.Runtime.Callback = func(*model.Command, model.FrontEndEvents, model.Events) {}
	return cmd, nil
}

// Radio returns the scheduler the scenario runs on.
func (r *Runner) Radio() *scheduler.Radio { return r.radio }

// Sim returns the simulated front-end.
func (r *Runner) Sim() *frontend.Sim { return r.sim }

// Command looks up a command by scenario id or by command ID.
func (r *Runner) Command(id string) (*model.Command, bool) {
	if cmd, ok := r.cmds[id]; ok {
		return cmd, true
	}
	if name, ok := r.names[id]; ok {
		return r.cmds[name], true
	}
	return nil, false
}

// ScenarioID maps a command ID to the scenario's id for it.
func (r *Runner) ScenarioID(commandID string) string {
	if name, ok := r.names[commandID]; ok {
		return name
	}
	return commandID
}

type action struct {
	at   uint32
	seq  int
	kind string // "submit" or "stop"
	id   string
	stop model.StopType
}

func (r *Runner) actions() []action {
	var out []action
	for _, c := range r.file.Commands {
		out = append(out, action{at: c.SubmitAt, seq: len(out), kind: "submit", id: c.ID})
	}
	for _, s := range r.file.Stops {
		t, _ := model.ParseStopType(s.Type)
		out = append(out, action{at: s.At, seq: len(out), kind: "stop", id: s.Command, stop: t})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].at != out[j].at {
			return out[i].at < out[j].at
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// Run drives the scenario to run_until. Time moves from one due event to
// the next, in increments of at most Step ticks, with every triggered
// level run in between. Cancelling ctx ends the run early with the partial
// result and the context's error.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	f := r.file
	start := f.StartTick
	for _, in := range f.Inject {
		ev, _ := model.ParseFrontEndEvents(in.Events...)
		r.sim.RaiseAt(start+in.At, ev)
	}

	step := f.Step
	if step == 0 {
		step = f.RunUntil
	}
	acts := r.actions()
	var stops []StopResult
	ctl := r.radio.Controller()

	r.logger.Info("scenario started", "commands", len(f.Commands), "run_until", f.RunUntil, "start_tick", start)
	var cur uint32
	var err error
	for {
		if err = ctx.Err(); err != nil {
			break
		}
		for len(acts) > 0 && acts[0].at <= cur {
			a := acts[0]
			acts = acts[1:]
			cmd := r.cmds[a.id]
			switch a.kind {
			case "submit":
				st := r.radio.Submit(r.clients[r.specs[a.id].Client], cmd)
				r.logger.Debug("submit", "id", a.id, "at", cur, "status", st)
			case "stop":
				st := r.radio.Stop(cmd, a.stop)
				stops = append(stops, StopResult{Command: a.id, At: cur, Type: a.stop, Status: st})
				r.logger.Debug("stop", "id", a.id, "type", a.stop, "at", cur, "status", st)
			}
		}
		ctl.RunPending()
		if cur >= f.RunUntil {
			break
		}

		next := min((cur/step+1)*step, f.RunUntil)
		if len(acts) > 0 {
			next = min(next, acts[0].at)
		}
		if due, ok := r.sim.NextDue(); ok {
			next = min(next, max(due-start, cur+1))
		}
		r.sim.AdvanceTo(start + next)
		if r.pace > 0 && next%step == 0 {
			select {
			case <-ctx.Done():
			case <-time.After(r.pace):
			}
		}
		cur = next
	}
	ctl.RunPending()

	res := &Result{
		Name:          f.Name,
		Final:         make(map[string]model.Status, len(r.cmds)),
		Notifications: r.trace.notifications(),
		Trace:         r.trace.transitions(),
		Stops:         stops,
		Calls:         r.sim.Calls(),
		EndTick:       r.sim.CurrentTick(),
	}
	for id, cmd := range r.cmds {
		st := r.radio.Status(cmd)
		if !st.IsTerminal() && st != model.StatusIdle {
			r.logger.Warn("command still live at run_until", "id", id, "status", st)
		}
		res.Final[id] = st
	}
	r.logger.Info("scenario finished", "end_tick", res.EndTick, "notifications", len(res.Notifications))
	return res, err
}

// Close closes every client the runner opened.
func (r *Runner) Close() {
	for _, c := range r.clients {
		r.radio.Close(c)
	}
}

// traceObserver records transitions and notifications with scenario ids.
type traceObserver struct {
	names map[string]string

	mu    sync.Mutex
	trace []model.Transition
	notes []model.Notification
}

func (o *traceObserver) OnTransition(t model.Transition) {
	if name, ok := o.names[t.CommandID]; ok {
		t.CommandID = name
	}
	o.mu.Lock()
	o.trace = append(o.trace, t)
	o.mu.Unlock()
}

func (o *traceObserver) OnNotification(n model.Notification) {
	if name, ok := o.names[n.CommandID]; ok {
		n.CommandID = name
	}
	o.mu.Lock()
	o.notes = append(o.notes, n)
	o.mu.Unlock()
}

func (o *traceObserver) transitions() []model.Transition {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]model.Transition(nil), o.trace...)
}

func (o *traceObserver) notifications() []model.Notification {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]model.Notification(nil), o.notes...)
}
