package journal

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/me/rfsched/internal/events"
	"github.com/me/rfsched/pkg/model"
)

func testJournal(t *testing.T) *SQLiteJournal {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	j, err := NewSQLiteJournal(":memory:", logger)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	if err := j.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func transitions(id string, tick uint32, path ...model.Status) []model.Transition {
	var out []model.Transition
	for i := 1; i < len(path); i++ {
		out = append(out, model.Transition{
			CommandID: id, Kind: "tx", From: path[i-1], To: path[i], Tick: tick + uint32(i),
		})
	}
	return out
}

func TestMigrate_Idempotent(t *testing.T) {
	j := testJournal(t)
	if err := j.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestRecordTransition(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()

	path := transitions("cmd_1", 100, model.StatusIdle, model.StatusQueued, model.StatusActive, model.StatusFinished)
	for _, tr := range path {
		if err := j.RecordTransition(ctx, "run-a", tr); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	rec, err := j.GetCommand(ctx, "cmd_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec == nil {
		t.Fatal("expected command record")
	}
	if rec.Status != model.StatusFinished {
		t.Errorf("status = %s, want finished", rec.Status)
	}
	if rec.FirstTick != 101 || rec.LastTick != 103 {
		t.Errorf("ticks = %d..%d, want 101..103", rec.FirstTick, rec.LastTick)
	}
	if rec.Transitions != 3 {
		t.Errorf("transitions = %d, want 3", rec.Transitions)
	}
	if rec.Run != "run-a" || rec.Kind != "tx" {
		t.Errorf("run/kind = %q/%q", rec.Run, rec.Kind)
	}

	got, err := j.ListTransitions(ctx, "cmd_1")
	if err != nil {
		t.Fatalf("list transitions: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i := range got {
		if got[i] != path[i] {
			t.Errorf("transition %d = %+v, want %+v", i, got[i], path[i])
		}
	}
}

func TestGetCommand_NotFound(t *testing.T) {
	j := testJournal(t)
	rec, err := j.GetCommand(context.Background(), "missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil, got %+v", rec)
	}
}

func TestListCommands_Pagination(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		tr := model.Transition{CommandID: id, Kind: "rx", From: model.StatusIdle, To: model.StatusQueued}
		if err := j.RecordTransition(ctx, "run", tr); err != nil {
			t.Fatalf("record %s: %v", id, err)
		}
	}

	page, total, err := j.ListCommands(ctx, model.ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 5 || len(page) != 2 {
		t.Fatalf("total=%d len=%d, want 5/2", total, len(page))
	}

	rest, _, err := j.ListCommands(ctx, model.ListOptions{Limit: 10, Offset: 4})
	if err != nil {
		t.Fatalf("list offset: %v", err)
	}
	if len(rest) != 1 {
		t.Errorf("len = %d, want 1", len(rest))
	}
}

func TestRecordNotification(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()

	if err := j.RecordTransition(ctx, "run", model.Transition{
		CommandID: "cmd_n", Kind: "rx", From: model.StatusIdle, To: model.StatusQueued,
	}); err != nil {
		t.Fatalf("record transition: %v", err)
	}

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i := range 3 {
		n := model.Notification{
			CommandID: "cmd_n",
			ClientID:  "cli_x",
			Kind:      "rx",
			Status:    model.StatusActive,
			FrontEnd:  model.FrontEndRxOk,
			Sched:     model.EventRxEntryAvail,
			Tick:      uint32(1000 + i),
			At:        at,
		}
		if err := j.RecordNotification(ctx, "run", n); err != nil {
			t.Fatalf("record notification: %v", err)
		}
	}

	got, total, err := j.ListNotifications(ctx, "cmd_n", model.ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 || len(got) != 2 {
		t.Fatalf("total=%d len=%d, want 3/2", total, len(got))
	}
	if got[0].Tick != 1000 || got[1].Tick != 1001 {
		t.Errorf("ticks = %d,%d", got[0].Tick, got[1].Tick)
	}
	if got[0].Sched != model.EventRxEntryAvail || got[0].FrontEnd != model.FrontEndRxOk {
		t.Errorf("events = %s/%s", got[0].Sched, got[0].FrontEnd)
	}
	if !got[0].At.Equal(at) {
		t.Errorf("at = %v, want %v", got[0].At, at)
	}

	rec, err := j.GetCommand(ctx, "cmd_n")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.ClientID != "cli_x" {
		t.Errorf("client_id = %q, want cli_x", rec.ClientID)
	}

	byClient, total, err := j.ListCommands(ctx, model.ListOptions{ClientID: "cli_x"})
	if err != nil {
		t.Fatalf("list by client: %v", err)
	}
	if total != 1 || len(byClient) != 1 {
		t.Errorf("by client total=%d len=%d, want 1/1", total, len(byClient))
	}
}

func TestRecorder(t *testing.T) {
	j := testJournal(t)
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	bus := events.NewBus(16)

	rec := NewRecorder(j, "recorded", logger)
	rec.Attach(bus)

	bus.PublishTransition(model.Transition{CommandID: "cmd_r", Kind: "tx", From: model.StatusIdle, To: model.StatusQueued, Tick: 5})
	bus.PublishNotification(model.Notification{CommandID: "cmd_r", Kind: "tx", Status: model.StatusFinished, Sched: model.EventLastCmdDone})
	// Close drains both subscribers before returning.
	bus.Close()

	if rec.Errors() != 0 {
		t.Fatalf("recorder errors = %d", rec.Errors())
	}
	got, err := j.GetCommand(context.Background(), "cmd_r")
	if err != nil || got == nil {
		t.Fatalf("get: %v %v", got, err)
	}
	if got.Run != "recorded" {
		t.Errorf("run = %q", got.Run)
	}
	_, total, err := j.ListNotifications(context.Background(), "cmd_r", model.DefaultListOptions())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 {
		t.Errorf("notifications = %d, want 1", total)
	}
	rec.Detach()
}
