// Package scheduler arbitrates one radio front-end between many clients.
//
// A Radio runs three strictly prioritized levels: the command level drives
// the active command's handler, the dispatch level delivers coalesced events
// to clients, and the scheduler level promotes the next command. All state is
// guarded by one mutex; level bodies hold it for their whole run except while
// the dispatch level invokes client callbacks.
package scheduler

import (
	"context"
	"log/slog"
	"sync"

	"github.com/me/rfsched/internal/events"
	"github.com/me/rfsched/internal/frontend"
	"github.com/me/rfsched/internal/levels"
	"github.com/me/rfsched/internal/ticks"
	"github.com/me/rfsched/pkg/model"
)

// stopInfo tracks one of the two stop mechanisms of the current command.
type stopInfo struct {
	cmdDeadline   uint32
	cmdSet        bool
	schedDeadline uint32
	schedSet      bool
	// sent is set once the front-end was told to stop; each stop is sent at most once.
	sent   bool
	reason model.StopReason
}

// schedState is reset on every promotion.
type schedState struct {
	current          *model.Command
	hard             stopInfo
	graceful         stopInfo
	posted           model.Events
	descheduleReason model.StopReason
	nextWantsStop    bool
	startTime        uint32
	startTimeSet     bool
	stopTimesActive  bool
	phy              model.PhyFeatures
}

// Observer receives status transitions synchronously with the scheduler lock
// held, and notifications from the dispatch level after callbacks ran.
// Implementations must not call back into the Radio.
type Observer interface {
	OnTransition(t model.Transition)
	OnNotification(n model.Notification)
}

// Radio is the scheduler context object. The zero value is not usable; call New.
type Radio struct {
	mu sync.Mutex

	drv     frontend.Driver
	ctl     *levels.Controller
	hooks   Hooks
	margins ticks.Margins
	bus     *events.Bus
	obs     Observer
	logger  *slog.Logger

	numClients     int
	clients        map[string]*model.Client
	config         *model.PhyConfig
	radioState     frontend.RadioState
	next           *model.Command
	standbyAllowed bool

	sched   schedState
	retired []*model.Command
}

// Option configures a Radio.
type Option func(*Radio)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Radio) { r.logger = l }
}

// WithMargins overrides the default lead-time margins.
func WithMargins(m ticks.Margins) Option {
	return func(r *Radio) { r.margins = m }
}

// WithHooks installs policy hooks.
func WithHooks(h Hooks) Option {
	return func(r *Radio) { r.hooks = h }
}

// WithBus publishes notifications and transitions on b.
func WithBus(b *events.Bus) Option {
	return func(r *Radio) { r.bus = b }
}

// WithObserver installs a synchronous observer.
func WithObserver(o Observer) Option {
	return func(r *Radio) { r.obs = o }
}

// New creates a Radio on top of drv and binds its three levels.
func New(drv frontend.Driver, opts ...Option) *Radio {
	r := &Radio{
		drv:            drv,
		hooks:          DefaultHooks{},
		margins:        ticks.DefaultMargins(),
		logger:         slog.Default(),
		clients:        make(map[string]*model.Client),
		radioState:     frontend.RadioDown,
		standbyAllowed: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "scheduler")
	r.ctl = levels.New(r.logger)
	r.ctl.Bind(levels.Command, r.RunCommand)
	r.ctl.Bind(levels.Dispatch, r.RunDispatch)
	r.ctl.Bind(levels.Scheduler, r.RunScheduler)
	drv.Attach(func() { r.ctl.Trigger(levels.Command) })
	return r
}

// Controller exposes the level controller for stepping.
func (r *Radio) Controller() *levels.Controller {
	return r.ctl
}

// Run executes triggered levels until ctx is cancelled.
func (r *Radio) Run(ctx context.Context) error {
	return r.ctl.Run(ctx)
}

// Open registers a client bound to cfg.
func (r *Radio) Open(name string, cfg *model.PhyConfig) *model.Client {
	c := model.NewClient(name, cfg)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.numClients == 0 {
		r.drv.PowerOpen(r.StandbyWake)
	}
	r.numClients++
	r.clients[c.ID] = c
	r.logger.Info("client opened", "client_id", c.ID, "name", name, "clients", r.numClients)
	return c
}

// Close unregisters c. Closing the client whose config is current invalidates it.
func (r *Radio) Close(c *model.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c.ID]; !ok {
		return
	}
	delete(r.clients, c.ID)
	r.numClients--
	if c.Config == r.config {
		r.config = nil
	}
	if r.numClients == 0 {
		r.drv.PowerClose()
	}
	r.logger.Info("client closed", "client_id", c.ID, "clients", r.numClients)
}

// Submit hands cmd to the scheduler on behalf of client and returns its status.
// A command that is already queued or active is left untouched and
// StatusErrorAlreadySubmitted is returned.
func (r *Radio) Submit(client *model.Client, cmd *model.Command) model.Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cmd.Status != model.StatusIdle && !cmd.Status.IsTerminal() {
		return model.StatusErrorAlreadySubmitted
	}
	if cmd == r.sched.current || cmd == r.next || r.isRetiredLocked(cmd) {
		return model.StatusErrorAlreadySubmitted
	}
	if client == nil || cmd.Runtime.Handler == nil {
		r.setStatusLocked(cmd, model.StatusErrorParam)
		return cmd.Status
	}

	cmd.Runtime.Client = client
	if !r.hooks.Admit(r.state(), cmd) {
		r.setStatusLocked(cmd, model.StatusError)
		r.logger.Debug("submit rejected", "cmd", cmd.ID, "client_id", client.ID)
		return cmd.Status
	}

	r.logger.Debug("submitted", "cmd", cmd.ID, "kind", cmd.Kind, "client_id", client.ID,
		"scheduling", cmd.Scheduling, "abs_start", cmd.Timing.AbsStart)
	r.ctl.Trigger(levels.Scheduler)
	return cmd.Status
}

// Wait blocks until cmd reaches a terminal status or ctx is done. Only one
// command per client may be waited on at a time.
func (r *Radio) Wait(ctx context.Context, cmd *model.Command) (model.Status, error) {
	r.mu.Lock()
	client := cmd.Runtime.Client
	if client == nil || cmd.Status == model.StatusIdle || cmd.Status.IsTerminal() {
		st := cmd.Status
		r.mu.Unlock()
		return st, nil
	}
	client.Drain()
	client.PendingCmd = cmd
	r.mu.Unlock()

	if err := client.Pend(ctx); err != nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		if client.PendingCmd == cmd {
			client.PendingCmd = nil
		}
		client.Drain()
		return cmd.Status, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return cmd.Status, nil
}

// Status returns cmd's status, read under the scheduler lock.
func (r *Radio) Status(cmd *model.Command) model.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cmd.Status
}

// Stop requests a stop of cmd and returns its status after the request.
// A stop of an idle or terminal command, or of type StopNone, changes nothing.
func (r *Radio) Stop(cmd *model.Command, t model.StopType) model.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopLocked(cmd, t, model.StopReasonApi)
}

// ReadRSSI returns the front-end RSSI, or frontend.RSSIInvalid when it is not configured.
func (r *Radio) ReadRSSI() int8 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.radioState < frontend.RadioConfigured {
		return frontend.RSSIInvalid
	}
	return r.drv.ReadRSSI()
}

// StandbyWake is called when the device leaves standby. The front-end keeps
// its images but loses its configuration.
func (r *Radio) StandbyWake() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.radioState > frontend.RadioImagesLoaded {
		r.radioState = frontend.RadioImagesLoaded
	}
	r.logger.Debug("standby wake", "radio_state", r.radioState, "active", r.sched.current != nil)
}

func (r *Radio) state() *State {
	return &State{r: r}
}

func (r *Radio) isRetiredLocked(cmd *model.Command) bool {
	for _, c := range r.retired {
		if c == cmd {
			return true
		}
	}
	return false
}

// retireLocked hands a command that left the scheduler without running to
// the dispatch level, which reports LastCmdDone and releases its waiter.
func (r *Radio) retireLocked(cmd *model.Command) {
	r.retired = append(r.retired, cmd)
	r.ctl.Trigger(levels.Dispatch)
}

// postEventLocked posts scheduler events to the current command and raises the command level.
func (r *Radio) postEventLocked(ev model.Events) {
	r.sched.posted |= ev
	r.ctl.Trigger(levels.Command)
}

func (r *Radio) setStatusLocked(cmd *model.Command, to model.Status) {
	from := cmd.Status
	if from == to {
		return
	}
	if err := model.CheckTransition(cmd.ID, from, to); err != nil {
		r.logger.Error("non-monotonic status change", "error", err)
	}
	cmd.Status = to
	r.noteTransitionLocked(cmd, from)
}

// noteTransitionLocked reports a status change that already happened.
func (r *Radio) noteTransitionLocked(cmd *model.Command, from model.Status) {
	if cmd.Status == from {
		return
	}
	t := model.Transition{
		CommandID: cmd.ID,
		Kind:      cmd.Kind,
		From:      from,
		To:        cmd.Status,
		Tick:      r.drv.CurrentTick(),
	}
	if r.obs != nil {
		r.obs.OnTransition(t)
	}
	if r.bus != nil {
		r.bus.PublishTransition(t)
	}
}
