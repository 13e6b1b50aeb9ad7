package handlers

import (
	"github.com/me/rfsched/internal/frontend"
	"github.com/me/rfsched/pkg/model"
)

const (
	// MaxNoiseWords bounds the number of 32-bit sample words one capture takes.
	MaxNoiseWords = 1024
	// RefsysWarmup is the time in ticks the synthesizer reference needs before power-up.
	RefsysWarmup = 100
	// PowerUpTicks is the front-end power-up time.
	PowerUpTicks = 40
)

type noisePhase uint8

const (
	noiseIdle noisePhase = iota
	noiseWarmup
	noisePowerUp
	noiseCapture
)

// Noise captures Words words of raw ADC samples with the receive path
// detached from the antenna. The capture runs in three phases: reference
// warm-up, front-end power-up and sampling.
type Noise struct {
	Op    frontend.Operator
	Words uint32

	// Captured is the number of words captured once the command finished.
	Captured uint32

	phase noisePhase
	progress
}

// captureTicks is the sampling time for n words, at three words per tick.
func captureTicks(n uint32) uint32 {
	return n/3 + 1
}

func (h *Noise) Handle(rt model.Runtime, c *model.Command, fe model.FrontEndEvents, in model.Events) model.Events {
	var out model.Events
	if in.Has(model.EventSetup) {
		h.phase = noiseIdle
		h.Captured = 0
		if h.Words == 0 || h.Words > MaxNoiseWords {
			c.Status = model.StatusErrorParam
			return out
		}
		if !h.setup(rt, c, rt.Now()+RefsysWarmup) {
			return out
		}
		h.phase = noiseWarmup
	}
	if in.Has(model.EventTimerStart) && h.phase == noiseWarmup {
		h.Op.StartOp(frontend.Operation{
			Name:     "noise_power_up",
			Start:    rt.Now(),
			Duration: PowerUpTicks,
			Done:     model.FrontEndRfeDone,
		})
		h.started = true
		h.phase = noisePowerUp
		out |= model.EventCmdStarted
	}
	if h.endStops(rt, c, fe, in) {
		return out
	}
	switch {
	case fe.Has(model.FrontEndRfeDone) && h.phase == noisePowerUp:
		h.Op.StartOp(frontend.Operation{
			Name:     "noise_capture",
			Start:    rt.Now(),
			Duration: captureTicks(h.Words),
			Done:     model.FrontEndOpDone,
		})
		h.phase = noiseCapture
	case fe.Has(model.FrontEndOpDone) && h.phase == noiseCapture:
		h.Captured = h.Words
		h.phase = noiseIdle
		c.Status = model.StatusFinished
	}
	return out
}
