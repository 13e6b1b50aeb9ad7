package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me/rfsched/internal/config"
	"github.com/me/rfsched/internal/logging"
	"github.com/me/rfsched/pkg/model"
)

const preemptScenario = `name: preempt
clients:
  - {name: ble, phy: ble_1m}
commands:
  - {id: c1, client: ble, kind: rx, submit_at: 0, start: now, window: 20000, conflict: never}
  - {id: c2, client: ble, kind: tx, submit_at: 5000, start: {rel: 100}, airtime: 2000, conflict: always}
stops:
  - {command: c1, at: 9000, type: graceful}
inject:
  - {at: 3000, events: [rx_ok]}
run_until: 60000
step: 50
`

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "rfsim "+Version+"\n", out)
}

func TestRun_Summary(t *testing.T) {
	out, err := execute(t, "run", writeScenario(t, preemptScenario))
	require.NoError(t, err)

	assert.Contains(t, out, "scenario preempt: 2 commands, 3 notifications, ended at tick 60,000")
	assert.Regexp(t, `c1\s+rx\s+ble\s+hard_stop_scheduling`, out)
	assert.Regexp(t, `c2\s+tx\s+ble\s+finished`, out)
	assert.Contains(t, out, "stop graceful c1 at 9,000: hard_stop_scheduling")
	assert.Contains(t, out, "1 hard stop, 0 graceful stop")
}

func TestRun_JSON(t *testing.T) {
	out, err := execute(t, "run", "--json", writeScenario(t, preemptScenario))
	require.NoError(t, err)

	var res struct {
		Name    string                  `json:"name"`
		Final   map[string]model.Status `json:"final"`
		EndTick uint32                  `json:"end_tick"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "preempt", res.Name)
	assert.Equal(t, uint32(60000), res.EndTick)
	assert.Equal(t, map[string]model.Status{
		"c1": model.StatusHardStopScheduling,
		"c2": model.StatusFinished,
	}, res.Final)
}

func TestRun_InvalidScenario(t *testing.T) {
	path := writeScenario(t, `name: bad
clients:
  - {name: ble, phy: ble_1m}
commands:
  - {id: c1, client: nobody, kind: tx, airtime: 100}
run_until: 1000
`)
	_, err := execute(t, "run", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown client")
}

func TestRun_MissingFile(t *testing.T) {
	_, err := execute(t, "run", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read scenario")
}

func TestRun_ConfigMargins(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "rfsim.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("log_level: warn\nmargins:\n  configure: 900\n"), 0o644))

	out, err := execute(t, "--config", cfgPath, "run", writeScenario(t, preemptScenario))
	require.NoError(t, err)
	assert.Contains(t, out, "scenario preempt")
	assert.Equal(t, uint32(900), cfg.Margins.Configure)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestRun_BadConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "rfsim.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("tick_interval: -1s\n"), 0o644))

	_, err := execute(t, "--config", cfgPath, "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tick_interval")
}

func TestRunAndHistory(t *testing.T) {
	db := filepath.Join(t.TempDir(), "journal.db")
	_, err := execute(t, "run", "--db", db, writeScenario(t, preemptScenario))
	require.NoError(t, err)

	out, err := execute(t, "history", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "hard_stop_scheduling")
	assert.Contains(t, out, "finished")
	assert.Equal(t, 4, strings.Count(out, "\n"), "header, rule and two commands")

	j, err := openJournal(context.Background(), db)
	require.NoError(t, err)
	recs, _, err := j.ListCommands(context.Background(), model.ListOptions{Limit: 10})
	require.NoError(t, err)
	require.NoError(t, j.Close())
	require.Len(t, recs, 2)

	var tx string
	for _, r := range recs {
		if r.Kind == "tx" {
			tx = r.ID
		}
	}
	require.NotEmpty(t, tx)

	out, err = execute(t, "history", "--db", db, "--command", tx)
	require.NoError(t, err)
	assert.Contains(t, out, "command "+tx+" (tx), run preempt@")
	assert.Contains(t, out, "idle")
	assert.Regexp(t, `active\s+-> finished`, out)

	_, err = execute(t, "history", "--db", db, "--command", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestHistory_NoDB(t *testing.T) {
	_, err := execute(t, "history")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no journal")
}

func TestServeScenario(t *testing.T) {
	cfg = config.DefaultSimConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.TickInterval = time.Millisecond
	cfg.DBPath = filepath.Join(t.TempDir(), "journal.db")
	logger = logging.Discard()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ready := make(chan string, 1)
	done := make(chan error, 1)
	path := writeScenario(t, preemptScenario)
	go func() { done <- serveScenario(ctx, path, ready) }()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + addr + "/api/v1/health")
	require.NoError(t, err)
	var body struct {
		Data struct {
			Status  string `json:"status"`
			Version string `json:"version"`
			Journal string `json:"journal"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body.Data.Status)
	assert.Equal(t, Version, body.Data.Version)
	assert.Equal(t, "enabled", body.Data.Journal)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not shut down")
	}
}
