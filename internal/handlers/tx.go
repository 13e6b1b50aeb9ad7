package handlers

import (
	"github.com/me/rfsched/internal/frontend"
	"github.com/me/rfsched/pkg/model"
)

// Tx transmits one packet taking Airtime ticks. A transmission in progress
// cannot be stopped gracefully; only a hard stop aborts it.
type Tx struct {
	Op      frontend.Operator
	Airtime uint32

	progress
}

func (h *Tx) Handle(rt model.Runtime, c *model.Command, fe model.FrontEndEvents, in model.Events) model.Events {
	var out model.Events
	if in.Has(model.EventSetup) && !h.setup(rt, c, rt.Now()) {
		return out
	}
	if in.Has(model.EventTimerStart) && !h.started {
		h.Op.StartOp(frontend.Operation{
			Name:     KindTx,
			Start:    rt.Now(),
			Duration: h.Airtime,
			Done:     model.FrontEndTxDone,
		})
		h.started = true
		out |= model.EventCmdStarted
	}
	if h.endStops(rt, c, fe, in) {
		return out
	}
	if fe.Has(model.FrontEndTxDone) {
		c.Status = model.StatusFinished
		out |= model.EventTxDone
	}
	return out
}
