package frontend

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/me/rfsched/internal/ticks"
	"github.com/me/rfsched/pkg/model"
)

// Calls counts driver invocations on a Sim.
type Calls struct {
	Configure         int `json:"configure"`
	ArmTimer          int `json:"arm_timer"`
	CancelTimer       int `json:"cancel_timer"`
	HardStop          int `json:"hard_stop"`
	GracefulStop      int `json:"graceful_stop"`
	SetConstraint     int `json:"set_constraint"`
	ReleaseConstraint int `json:"release_constraint"`
}

type pendingRaise struct {
	at uint32
	ev model.FrontEndEvents
}

type runningOp struct {
	op  Operation
	end uint32
	ev  model.FrontEndEvents
}

// Sim is a simulated front-end with a virtual tick counter. Time only moves
// through Advance and AdvanceTo; fired compares and raised events invoke the
// attached trigger. Sim is safe for concurrent use.
type Sim struct {
	mu sync.Mutex

	now     uint32
	armed   map[TimerEvent]uint32
	fired   map[TimerEvent]bool
	events  model.FrontEndEvents
	raises  []pendingRaise
	op      *runningOp
	trigger func()
	wake    func()

	failing    map[string]bool
	images     string
	configured string
	constraint int
	rssi       int8
	calls      Calls

	// GracefulLatency is how long an interruptible operation takes to wind down.
	GracefulLatency uint32
	// HardLatency is how long an aborted operation takes to report.
	HardLatency uint32

	logger *slog.Logger
}

// NewSim returns a simulated front-end starting at tick start.
func NewSim(start uint32, logger *slog.Logger) *Sim {
	return &Sim{
		now:             start,
		armed:           make(map[TimerEvent]uint32),
		fired:           make(map[TimerEvent]bool),
		failing:         make(map[string]bool),
		rssi:            -70,
		GracefulLatency: 20 * ticks.PerMicrosecond,
		HardLatency:     2 * ticks.PerMicrosecond,
		logger:          logger.With("component", "frontend-sim"),
	}
}

// Attach implements Driver.
func (s *Sim) Attach(trigger func()) {
	s.mu.Lock()
	s.trigger = trigger
	s.mu.Unlock()
}

// FailConfigure makes Configure fail for the named config.
func (s *Sim) FailConfigure(name string) {
	s.mu.Lock()
	s.failing[name] = true
	s.mu.Unlock()
}

// SetRSSI sets the value returned by ReadRSSI.
func (s *Sim) SetRSSI(v int8) {
	s.mu.Lock()
	s.rssi = v
	s.mu.Unlock()
}

// Calls returns a copy of the call counters.
func (s *Sim) Calls() Calls {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Constrained reports whether a power constraint is currently held.
func (s *Sim) Constrained() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.constraint > 0
}

// Armed returns the compare time for ev and whether it is armed.
func (s *Sim) Armed(ev TimerEvent) (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.armed[ev]
	return at, ok
}

// Configure implements Driver.
func (s *Sim) Configure(cfg *model.PhyConfig, phy model.PhyFeatures, prior RadioState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Configure++
	if cfg == nil {
		return fmt.Errorf("configure: no config")
	}
	if s.failing[cfg.Name] {
		s.configured = ""
		return fmt.Errorf("configure %s: synthesizer did not lock", cfg.Name)
	}
	if prior < RadioImagesLoaded || s.images != cfg.Name {
		s.images = cfg.Name
	}
	s.configured = cfg.Name
	s.logger.Debug("configured", "config", cfg.Name, "phy", phy, "prior", prior)
	return nil
}

// ImagesNeedUpdate implements Driver.
func (s *Sim) ImagesNeedUpdate(cfg *model.PhyConfig) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cfg == nil || s.images != cfg.Name
}

// ArmTimer implements Driver. A compare already in the past fires at once.
func (s *Sim) ArmTimer(ev TimerEvent, at uint32) {
	s.mu.Lock()
	s.calls.ArmTimer++
	delete(s.fired, ev)
	fire := !ticks.IsLater(s.now, at)
	if fire {
		delete(s.armed, ev)
		s.fired[ev] = true
	} else {
		s.armed[ev] = at
	}
	trigger := s.trigger
	s.mu.Unlock()

	if fire && trigger != nil {
		trigger()
	}
}

// CancelTimer implements Driver.
func (s *Sim) CancelTimer(ev TimerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.CancelTimer++
	delete(s.armed, ev)
	delete(s.fired, ev)
}

var pollOrder = []TimerEvent{TimerHardStop, TimerStart, TimerSetup, TimerGracefulStop}

// PollTimer implements Driver.
func (s *Sim) PollTimer() TimerEvent {
	s.mu.Lock()
	got := TimerNone
	for _, ev := range pollOrder {
		if s.fired[ev] {
			delete(s.fired, ev)
			got = ev
			break
		}
	}
	more := len(s.fired) > 0
	trigger := s.trigger
	s.mu.Unlock()

	if more && trigger != nil {
		trigger()
	}
	return got
}

// ReadEvents implements Driver.
func (s *Sim) ReadEvents() model.FrontEndEvents {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev := s.events
	s.events = model.FrontEndNone
	return ev
}

// SendHardStop implements Driver. A running operation aborts after HardLatency.
func (s *Sim) SendHardStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.HardStop++
	if s.op != nil {
		s.op.end = s.now + s.HardLatency
		s.op.ev = model.FrontEndOpAborted
	}
}

// SendGracefulStop implements Driver. Only interruptible operations end early.
func (s *Sim) SendGracefulStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.GracefulStop++
	if s.op != nil && s.op.op.Interruptible {
		end := s.now + s.GracefulLatency
		if ticks.IsLater(end, s.op.end) {
			return
		}
		s.op.end = end
		s.op.ev = model.FrontEndOpStopped
	}
}

// CurrentTick implements Driver.
func (s *Sim) CurrentTick() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// SetPowerConstraint implements Driver.
func (s *Sim) SetPowerConstraint() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.SetConstraint++
	s.constraint++
}

// ReleasePowerConstraint implements Driver.
func (s *Sim) ReleasePowerConstraint() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.ReleaseConstraint++
	if s.constraint > 0 {
		s.constraint--
	}
}

// PowerOpen implements Driver.
func (s *Sim) PowerOpen(fn func()) {
	s.mu.Lock()
	s.wake = fn
	s.mu.Unlock()
}

// PowerClose implements Driver.
func (s *Sim) PowerClose() {
	s.mu.Lock()
	s.wake = nil
	s.mu.Unlock()
}

// ReadRSSI implements Driver.
func (s *Sim) ReadRSSI() int8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.configured == "" {
		return RSSIInvalid
	}
	return s.rssi
}

// Standby simulates a standby/wake cycle. It fails while a power constraint is held.
func (s *Sim) Standby() error {
	s.mu.Lock()
	if s.constraint > 0 {
		s.mu.Unlock()
		return fmt.Errorf("standby disallowed: %d constraint(s) held", s.constraint)
	}
	s.configured = ""
	wake := s.wake
	s.mu.Unlock()

	if wake != nil {
		wake()
	}
	return nil
}

// StartOp implements Operator.
func (s *Sim) StartOp(op Operation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	begin := op.Start
	if !ticks.IsLater(s.now, begin) {
		begin = s.now
	}
	s.op = &runningOp{op: op, end: begin + op.Duration, ev: op.Done}
	s.logger.Debug("operation started", "op", op.Name, "begin", begin, "end", s.op.end)
}

// Raise sets hardware events immediately.
func (s *Sim) Raise(ev model.FrontEndEvents) {
	s.mu.Lock()
	s.events |= ev
	trigger := s.trigger
	s.mu.Unlock()

	if trigger != nil {
		trigger()
	}
}

// RaiseAt sets hardware events when the clock reaches at.
func (s *Sim) RaiseAt(at uint32, ev model.FrontEndEvents) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raises = append(s.raises, pendingRaise{at: at, ev: ev})
	sort.SliceStable(s.raises, func(i, j int) bool {
		return ticks.IsLater(s.raises[j].at, s.raises[i].at)
	})
}

// NextDue returns the next tick at which something fires.
func (s *Sim) NextDue() (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextDueLocked()
}

func (s *Sim) nextDueLocked() (uint32, bool) {
	var best uint32
	found := false
	consider := func(t uint32) {
		if !found || ticks.IsLater(t, best) {
			best = t
			found = true
		}
	}
	for _, at := range s.armed {
		consider(at)
	}
	if len(s.raises) > 0 {
		consider(s.raises[0].at)
	}
	if s.op != nil {
		consider(s.op.end)
	}
	return best, found
}

// Advance moves the clock forward by d ticks, firing everything due on the way.
func (s *Sim) Advance(d uint32) {
	s.AdvanceTo(s.CurrentTick() + d)
}

// AdvanceTo moves the clock to target. Everything due at or before target
// fires with the clock set to its own due time, in time order.
func (s *Sim) AdvanceTo(target uint32) {
	for {
		s.mu.Lock()
		due, ok := s.nextDueLocked()
		if !ok || ticks.IsLater(target, due) {
			s.now = target
			s.mu.Unlock()
			return
		}
		if ticks.IsLater(s.now, due) {
			s.now = due
		}
		fired := s.fireDueLocked()
		trigger := s.trigger
		s.mu.Unlock()

		if fired && trigger != nil {
			trigger()
		}
	}
}

func (s *Sim) fireDueLocked() bool {
	fired := false
	for ev, at := range s.armed {
		if !ticks.IsLater(s.now, at) {
			delete(s.armed, ev)
			s.fired[ev] = true
			fired = true
		}
	}
	for len(s.raises) > 0 && !ticks.IsLater(s.now, s.raises[0].at) {
		s.events |= s.raises[0].ev
		s.raises = s.raises[1:]
		fired = true
	}
	if s.op != nil && !ticks.IsLater(s.now, s.op.end) {
		s.events |= s.op.ev
		s.logger.Debug("operation ended", "op", s.op.op.Name, "events", s.op.ev)
		s.op = nil
		fired = true
	}
	return fired
}
