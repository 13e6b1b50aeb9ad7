package handlers

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me/rfsched/internal/frontend"
	"github.com/me/rfsched/internal/scheduler"
	"github.com/me/rfsched/pkg/model"
)

type fakeRuntime struct {
	now      uint32
	earliest uint32
	start    model.Status
}

func (rt *fakeRuntime) Now() uint32 { return rt.now }

func (rt *fakeRuntime) ScheduleStart(_ *model.Command, earliest uint32) model.Status {
	rt.earliest = earliest
	if rt.start == model.StatusIdle {
		return model.StatusActive
	}
	return rt.start
}

func (rt *fakeRuntime) StopStatus(t model.StopType) model.Status {
	return scheduler.StatusForStop(t, model.StopReasonApi)
}

func (rt *fakeRuntime) RequestPhy(model.PhyFeatures) {}

type fakeOperator struct {
	ops []frontend.Operation
}

func (o *fakeOperator) StartOp(op frontend.Operation) { o.ops = append(o.ops, op) }

func TestNewCommand(t *testing.T) {
	for _, kind := range Kinds() {
		cmd, err := NewCommand(kind, &fakeOperator{}, Params{})
		require.NoError(t, err, kind)
		assert.Equal(t, kind, cmd.Kind)
		assert.Equal(t, model.StatusIdle, cmd.Status)
		assert.NotNil(t, cmd.Runtime.Handler)
	}

	_, err := NewCommand("ble_cs", &fakeOperator{}, Params{})
	assert.Error(t, err)
	assert.False(t, Known("ble_cs"))
	assert.Equal(t, []string{KindNoise, KindRx, KindTx}, Kinds())
}

func TestTx_Lifecycle(t *testing.T) {
	op := &fakeOperator{}
	h := &Tx{Op: op, Airtime: 2000}
	cmd := model.NewCommand(KindTx, h)
	rt := &fakeRuntime{now: 500}

	out := h.Handle(rt, cmd, model.FrontEndNone, model.EventSetup)
	assert.Equal(t, model.EventNone, out)
	assert.Equal(t, model.StatusActive, cmd.Status)
	assert.Equal(t, uint32(500), rt.earliest)

	out = h.Handle(rt, cmd, model.FrontEndNone, model.EventTimerStart)
	assert.True(t, out.Has(model.EventCmdStarted))
	require.Len(t, op.ops, 1)
	assert.Equal(t, uint32(2000), op.ops[0].Duration)
	assert.False(t, op.ops[0].Interruptible)

	// A second start event does not restart the transmission.
	h.Handle(rt, cmd, model.FrontEndNone, model.EventTimerStart)
	assert.Len(t, op.ops, 1)

	out = h.Handle(rt, cmd, model.FrontEndTxDone, model.EventNone)
	assert.True(t, out.Has(model.EventTxDone))
	assert.Equal(t, model.StatusFinished, cmd.Status)
}

func TestTx_StartTooLate(t *testing.T) {
	op := &fakeOperator{}
	h := &Tx{Op: op, Airtime: 10}
	cmd := model.NewCommand(KindTx, h)

	h.Handle(&fakeRuntime{start: model.StatusErrorStartTooLate}, cmd, model.FrontEndNone, model.EventSetup|model.EventTimerStart)
	assert.Equal(t, model.StatusErrorStartTooLate, cmd.Status)
	assert.Empty(t, op.ops)
}

func TestStops(t *testing.T) {
	tests := []struct {
		name    string
		started bool
		fe      model.FrontEndEvents
		in      model.Events
		want    model.Status
	}{
		{"hard before start", false, model.FrontEndNone, model.EventHardStop, model.StatusHardStopApi},
		{"graceful before start", false, model.FrontEndNone, model.EventGracefulStop, model.StatusGracefulStopApi},
		{"graceful after start waits", true, model.FrontEndNone, model.EventGracefulStop, model.StatusActive},
		{"aborted", true, model.FrontEndOpAborted, model.EventNone, model.StatusHardStopApi},
		{"stopped", true, model.FrontEndOpStopped, model.EventNone, model.StatusGracefulStopApi},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &Rx{Op: &fakeOperator{}, Window: 100}
			h.started = tt.started
			cmd := model.NewCommand(KindRx, h)
			cmd.Status = model.StatusActive

			h.Handle(&fakeRuntime{}, cmd, tt.fe, tt.in)
			assert.Equal(t, tt.want, cmd.Status)
		})
	}
}

func TestRx_Window(t *testing.T) {
	op := &fakeOperator{}
	h := &Rx{Op: op, Window: 20000}
	cmd := model.NewCommand(KindRx, h)
	rt := &fakeRuntime{now: 100}

	h.Handle(rt, cmd, model.FrontEndNone, model.EventSetup|model.EventTimerStart)
	require.Len(t, op.ops, 1)
	assert.True(t, op.ops[0].Interruptible)

	out := h.Handle(rt, cmd, model.FrontEndRxOk, model.EventNone)
	assert.True(t, out.Has(model.EventRxEntryAvail))
	h.Handle(rt, cmd, model.FrontEndRxOk|model.FrontEndRxNok, model.EventNone)
	assert.Equal(t, 2, h.Received)
	assert.Equal(t, 1, h.Errors)
	assert.Equal(t, model.StatusActive, cmd.Status)

	h.Handle(rt, cmd, model.FrontEndOpDone, model.EventNone)
	assert.Equal(t, model.StatusRxTimeout, cmd.Status)
}

func TestNoise_Params(t *testing.T) {
	for _, words := range []uint32{0, MaxNoiseWords + 1} {
		op := &fakeOperator{}
		h := &Noise{Op: op, Words: words}
		cmd := model.NewCommand(KindNoise, h)

		out := h.Handle(&fakeRuntime{}, cmd, model.FrontEndNone, model.EventSetup)
		assert.Equal(t, model.EventNone, out)
		assert.Equal(t, model.StatusErrorParam, cmd.Status, "words=%d", words)
		assert.Empty(t, op.ops)
	}
}

func TestNoise_Phases(t *testing.T) {
	op := &fakeOperator{}
	h := &Noise{Op: op, Words: 300}
	cmd := model.NewCommand(KindNoise, h)
	rt := &fakeRuntime{now: 1000}

	h.Handle(rt, cmd, model.FrontEndNone, model.EventSetup)
	assert.Equal(t, uint32(1000+RefsysWarmup), rt.earliest)
	assert.Equal(t, model.StatusActive, cmd.Status)

	out := h.Handle(rt, cmd, model.FrontEndNone, model.EventTimerStart)
	assert.True(t, out.Has(model.EventCmdStarted))
	require.Len(t, op.ops, 1)
	assert.Equal(t, model.FrontEndRfeDone, op.ops[0].Done)

	h.Handle(rt, cmd, model.FrontEndRfeDone, model.EventNone)
	require.Len(t, op.ops, 2)
	assert.Equal(t, uint32(101), op.ops[1].Duration)
	assert.Equal(t, model.StatusActive, cmd.Status)

	h.Handle(rt, cmd, model.FrontEndOpDone, model.EventNone)
	assert.Equal(t, model.StatusFinished, cmd.Status)
	assert.Equal(t, uint32(300), h.Captured)
}

// runToDone drives the scheduler and the simulated clock until cmd ends.
func runToDone(t *testing.T, r *scheduler.Radio, sim *frontend.Sim, cmd *model.Command) {
	t.Helper()
	for range 1000 {
		r.Controller().RunPending()
		if cmd.Done() {
			return
		}
		due, ok := sim.NextDue()
		require.True(t, ok, "nothing due while %s is live", cmd)
		sim.AdvanceTo(due)
	}
	t.Fatalf("%s did not finish", cmd)
}

func TestHandlers_OnScheduler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		kind string
		p    Params
		want model.Status
	}{
		{KindTx, Params{Airtime: 2000}, model.StatusFinished},
		{KindRx, Params{Window: 5000}, model.StatusRxTimeout},
		{KindNoise, Params{Words: 96}, model.StatusFinished},
		{KindNoise, Params{}, model.StatusErrorParam},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			sim := frontend.NewSim(10_000, logger)
			r := scheduler.New(sim, scheduler.WithLogger(logger))
			client := r.Open("test", &model.PhyConfig{Name: "ble_1m"})
			defer r.Close(client)

			cmd, err := NewCommand(tt.kind, sim, tt.p)
			require.NoError(t, err)
			cmd.Runtime.SchedMask = model.EventLastCmdDone
			done := make(chan model.Status, 1)
			cmd.Runtime.Callback = func(c *model.Command, _ model.FrontEndEvents, ev model.Events) {
				if ev.Has(model.EventLastCmdDone) {
					done <- c.Status
				}
			}

			require.Equal(t, model.StatusQueued, r.Submit(client, cmd))
			runToDone(t, r, sim, cmd)
			r.Controller().RunPending()

			select {
			case got := <-done:
				assert.Equal(t, tt.want, got)
			case <-time.After(time.Second):
				t.Fatal("no LastCmdDone callback")
			}
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			got, err := r.Wait(ctx, cmd)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// startRun submits cmd and moves the clock until its start compare fired.
func startRun(t *testing.T, r *scheduler.Radio, sim *frontend.Sim, client *model.Client, cmd *model.Command) {
	t.Helper()
	require.Equal(t, model.StatusQueued, r.Submit(client, cmd))
	for range 1000 {
		r.Controller().RunPending()
		if cmd.Status == model.StatusActive {
			if _, armed := sim.Armed(frontend.TimerStart); !armed {
				return
			}
		}
		due, ok := sim.NextDue()
		require.True(t, ok, "nothing due while %s is live", cmd)
		sim.AdvanceTo(due)
	}
	t.Fatalf("%s did not start", cmd)
}

func TestHandlers_Resubmit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		kind string
		p    Params
		want model.Status
	}{
		{KindTx, Params{Airtime: 2000}, model.StatusFinished},
		{KindRx, Params{Window: 5000}, model.StatusRxTimeout},
		{KindNoise, Params{Words: 96}, model.StatusFinished},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			sim := frontend.NewSim(10_000, logger)
			r := scheduler.New(sim, scheduler.WithLogger(logger))
			client := r.Open("test", &model.PhyConfig{Name: "ble_1m"})
			defer r.Close(client)

			cmd, err := NewCommand(tt.kind, sim, tt.p)
			require.NoError(t, err)

			// First run ends early with a hard stop after the operation started.
			startRun(t, r, sim, client, cmd)
			assert.Equal(t, model.StatusActive, r.Stop(cmd, model.StopHard))
			runToDone(t, r, sim, cmd)
			require.Equal(t, model.StatusHardStopApi, cmd.Status)

			for run := 2; run <= 3; run++ {
				require.Equal(t, model.StatusQueued, r.Submit(client, cmd), "run %d", run)
				runToDone(t, r, sim, cmd)
				assert.Equal(t, tt.want, cmd.Status, "run %d", run)
			}

			// The radio still serves a different command afterwards.
			other, err := NewCommand(KindTx, sim, Params{Airtime: 100})
			require.NoError(t, err)
			require.Equal(t, model.StatusQueued, r.Submit(client, other))
			runToDone(t, r, sim, other)
			assert.Equal(t, model.StatusFinished, other.Status)
			assert.Nil(t, r.Snapshot().Current)
		})
	}
}
