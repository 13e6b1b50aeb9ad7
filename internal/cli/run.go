package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/me/rfsched/internal/events"
	"github.com/me/rfsched/internal/journal"
	"github.com/me/rfsched/internal/scenario"
)

// watchDebounce coalesces the burst of writes editors make on save.
const watchDebounce = 150 * time.Millisecond

func newRunCmd() *cobra.Command {
	var (
		dbPath  string
		asJSON  bool
		watch   bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a scenario to completion and print the outcome",
		Long: `Runs the scenario on a fresh simulated front-end, as fast as the
simulated clock allows. With --db, every transition and notification is
journaled. With --watch, the scenario is re-run whenever the file changes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("db") {
				dbPath = cfg.DBPath
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			once := func() error {
				runCtx, cancel := ctx, context.CancelFunc(func() {})
				if timeout > 0 {
					runCtx, cancel = context.WithTimeout(ctx, timeout)
				}
				defer cancel()
				return runScenario(runCtx, cmd.OutOrStdout(), args[0], dbPath, asJSON)
			}
			if !watch {
				return once()
			}
			return watchScenario(ctx, args[0], once)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite journal path (default: db_path from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Re-run when the scenario file changes")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Abort a run after this long (0 = no limit)")

	return cmd
}

// loadScenario reads the scenario and layers the configured margins and
// step under its own.
func loadScenario(path string) (*scenario.File, error) {
	f, err := scenario.Load(path)
	if err != nil {
		return nil, err
	}
	f.Margins = cfg.Margins.Merge(f.Margins)
	if f.Step == 0 {
		f.Step = cfg.TicksPerStep
	}
	if f.Name == "" {
		f.Name = filepath.Base(path)
	}
	return f, nil
}

// openJournal opens and migrates the journal at path.
func openJournal(ctx context.Context, path string) (*journal.SQLiteJournal, error) {
	j, err := journal.NewSQLiteJournal(path, logger)
	if err != nil {
		return nil, err
	}
	if err := j.Migrate(ctx); err != nil {
		j.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return j, nil
}

func runName(f *scenario.File) string {
	return fmt.Sprintf("%s@%s", f.Name, time.Now().UTC().Format(time.RFC3339))
}

func runScenario(ctx context.Context, out io.Writer, path, dbPath string, asJSON bool) error {
	f, err := loadScenario(path)
	if err != nil {
		return err
	}

	var opts []scenario.RunnerOption
	var bus *events.Bus
	var rec *journal.Recorder
	if dbPath != "" {
		j, err := openJournal(ctx, dbPath)
		if err != nil {
			return err
		}
		defer j.Close()
		bus = events.NewBus(cfg.BusBuffer)
		rec = journal.NewRecorder(j, runName(f), logger)
		rec.Attach(bus)
		opts = append(opts, scenario.WithBus(bus))
	}

	runner, err := scenario.NewRunner(f, logger, opts...)
	if err != nil {
		return err
	}
	defer runner.Close()

	start := time.Now()
	res, runErr := runner.Run(ctx)
	if bus != nil {
		bus.Close()
		if n := rec.Errors(); n > 0 {
			logger.Warn("journal writes failed", "errors", n)
		}
		if d := bus.Dropped(); d > 0 {
			logger.Warn("journal missed events", "dropped", d)
		}
	}
	if res == nil {
		return runErr
	}
	logger.Info("run complete", "scenario", f.Name, "elapsed", time.Since(start))

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		return runErr
	}
	printSummary(out, f, res)
	return runErr
}

func printSummary(out io.Writer, f *scenario.File, res *scenario.Result) {
	fmt.Fprintf(out, "scenario %s: %d commands, %d notifications, ended at tick %s\n",
		res.Name, len(f.Commands), len(res.Notifications), humanize.Comma(int64(res.EndTick)))

	fmt.Fprintf(out, "\n%-16s  %-8s  %-12s  %s\n", "ID", "KIND", "CLIENT", "FINAL")
	fmt.Fprintf(out, "%-16s  %-8s  %-12s  %s\n", "--", "----", "------", "-----")
	for _, cs := range f.Commands {
		fmt.Fprintf(out, "%-16s  %-8s  %-12s  %s\n", cs.ID, cs.Kind, cs.Client, res.Final[cs.ID])
	}

	if len(res.Stops) > 0 {
		fmt.Fprintln(out)
		for _, s := range res.Stops {
			fmt.Fprintf(out, "stop %s %s at %s: %s\n", s.Type, s.Command, humanize.Comma(int64(s.At)), s.Status)
		}
	}
	c := res.Calls
	fmt.Fprintf(out, "\nfront-end: %s configure, %s hard stop, %s graceful stop\n",
		humanize.Comma(int64(c.Configure)), humanize.Comma(int64(c.HardStop)), humanize.Comma(int64(c.GracefulStop)))
}

// watchScenario runs once, then again after every change to path until ctx
// ends. Failed runs are logged and do not stop the watch.
func watchScenario(ctx context.Context, path string, run func() error) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()
	// Watch the directory: editors often replace the file on save.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	if err := run(); err != nil {
		logger.Error("run failed", "path", path, "error", err)
	}
	logger.Info("watching scenario", "path", abs)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Name != abs || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			logger.Debug("scenario changed", "op", ev.Op.String())
			pending = time.After(watchDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "error", err)
		case <-pending:
			pending = nil
			if err := run(); err != nil {
				logger.Error("run failed", "path", path, "error", err)
			}
		}
	}
}
