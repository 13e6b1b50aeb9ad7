// Package handlers implements the command kinds the simulator can run. Each
// handler value drives exactly one command and keeps its per-command progress.
package handlers

import (
	"fmt"
	"sort"

	"github.com/me/rfsched/internal/frontend"
	"github.com/me/rfsched/pkg/model"
)

// Command kinds.
const (
	KindTx    = "tx"
	KindRx    = "rx"
	KindNoise = "noise"
)

// Params carries the kind-specific parameters of a command.
type Params struct {
	Airtime uint32 `yaml:"airtime" json:"airtime,omitempty"`
	Window  uint32 `yaml:"window" json:"window,omitempty"`
	Words   uint32 `yaml:"words" json:"words,omitempty"`
}

type factory func(op frontend.Operator, p Params) model.Handler

var registry = map[string]factory{
	KindTx:    func(op frontend.Operator, p Params) model.Handler { return &Tx{Op: op, Airtime: p.Airtime} },
	KindRx:    func(op frontend.Operator, p Params) model.Handler { return &Rx{Op: op, Window: p.Window} },
	KindNoise: func(op frontend.Operator, p Params) model.Handler { return &Noise{Op: op, Words: p.Words} },
}

// Known reports whether kind names a registered command kind.
func Known(kind string) bool {
	_, ok := registry[kind]
	return ok
}

// Kinds returns the registered kinds in sorted order.
func Kinds() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// NewCommand returns an idle command of kind driven by a fresh handler.
func NewCommand(kind string, op frontend.Operator, p Params) (*model.Command, error) {
	f, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("unknown command kind %q", kind)
	}
	return model.NewCommand(kind, f(op, p)), nil
}

// progress is the start bookkeeping shared by all kinds.
type progress struct {
	started bool
}

// setup begins a new run: it clears the previous run's progress, arms the
// start compare and reports whether the command is still live.
func (p *progress) setup(rt model.Runtime, c *model.Command, earliest uint32) bool {
	p.started = false
	c.Status = rt.ScheduleStart(c, earliest)
	return !c.Status.IsTerminal()
}

// endStops ends the command on stop events that arrive before any
// front-end operation was started, and on the outcome of a started one.
func (p *progress) endStops(rt model.Runtime, c *model.Command, fe model.FrontEndEvents, in model.Events) bool {
	switch {
	case fe.Has(model.FrontEndOpAborted):
		c.Status = rt.StopStatus(model.StopHard)
	case fe.Has(model.FrontEndOpStopped):
		c.Status = rt.StopStatus(model.StopGraceful)
	case !p.started && in.Has(model.EventHardStop):
		c.Status = rt.StopStatus(model.StopHard)
	case !p.started && in.Has(model.EventGracefulStop):
		c.Status = rt.StopStatus(model.StopGraceful)
	default:
		return false
	}
	return true
}
