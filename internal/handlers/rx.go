package handlers

import (
	"github.com/me/rfsched/internal/frontend"
	"github.com/me/rfsched/pkg/model"
)

// Rx listens for Window ticks. Every received packet is reported to the
// client as an RxEntryAvail event. A graceful stop ends the window early.
type Rx struct {
	Op     frontend.Operator
	Window uint32

	// Received counts packets delivered during the window.
	Received int
	// Errors counts packets received with a bad CRC.
	Errors int

	progress
}

func (h *Rx) Handle(rt model.Runtime, c *model.Command, fe model.FrontEndEvents, in model.Events) model.Events {
	var out model.Events
	if in.Has(model.EventSetup) {
		h.Received, h.Errors = 0, 0
		if !h.setup(rt, c, rt.Now()) {
			return out
		}
	}
	if in.Has(model.EventTimerStart) && !h.started {
		h.Op.StartOp(frontend.Operation{
			Name:          KindRx,
			Start:         rt.Now(),
			Duration:      h.Window,
			Done:          model.FrontEndOpDone,
			Interruptible: true,
		})
		h.started = true
		out |= model.EventCmdStarted
	}
	if fe.Has(model.FrontEndRxOk) {
		h.Received++
		out |= model.EventRxEntryAvail
	}
	if fe.Has(model.FrontEndRxNok) {
		h.Errors++
	}
	if h.endStops(rt, c, fe, in) {
		return out
	}
	switch {
	case fe.Has(model.FrontEndOpError):
		c.Status = model.StatusRxErr
	case fe.Has(model.FrontEndOpDone):
		c.Status = model.StatusRxTimeout
	}
	return out
}
