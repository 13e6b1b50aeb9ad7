package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/me/rfsched/internal/events"
	"github.com/me/rfsched/internal/journal"
	"github.com/me/rfsched/internal/scenario"
	"github.com/me/rfsched/internal/server"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	var (
		addr         string
		dbPath       string
		tickInterval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve <scenario.yaml>",
		Short: "Run a scenario in paced real time and serve its state over HTTP",
		Long: `Runs the scenario with the simulated clock paced against the wall
clock and exposes the scheduler state, the command journal, a stop endpoint
and a notification stream. The server stays up after the scenario ends
until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("addr") {
				cfg.Addr = addr
			}
			if flags.Changed("db") {
				cfg.DBPath = dbPath
			}
			if flags.Changed("tick-interval") {
				cfg.TickInterval = tickInterval
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serveScenario(ctx, args[0], nil)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8090", "Listen address")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite journal path (default: db_path from config)")
	cmd.Flags().DurationVar(&tickInterval, "tick-interval", 10*time.Millisecond, "Wall-clock time per simulated step")

	return cmd
}

// serveScenario runs the paced scenario, the level controller and the HTTP
// server until ctx ends. When ready is non-nil it receives the bound
// listener address once the server accepts connections.
func serveScenario(ctx context.Context, path string, ready chan<- string) error {
	f, err := loadScenario(path)
	if err != nil {
		return err
	}

	bus := events.NewBus(cfg.BusBuffer)

	srvOpts := []server.Option{server.WithBus(bus), server.WithVersion(Version)}
	if cfg.DBPath != "" {
		j, err := openJournal(ctx, cfg.DBPath)
		if err != nil {
			return err
		}
		defer j.Close()
		rec := journal.NewRecorder(j, runName(f), logger)
		rec.Attach(bus)
		srvOpts = append(srvOpts, server.WithJournal(j))
	}
	// Closing the bus flushes queued journal writes, so it runs before the
	// journal closes.
	defer bus.Close()

	runner, err := scenario.NewRunner(f, logger, scenario.WithBus(bus), scenario.WithPace(cfg.TickInterval))
	if err != nil {
		return err
	}
	defer runner.Close()

	srv := server.New(cfg, runner.Radio(), runner, logger, srvOpts...)
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Streaming requests end with the group so Shutdown does not wait on them.
		BaseContext: func(net.Listener) context.Context { return gctx },
	}
	g.Go(func() error {
		err := runner.Radio().Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		res, err := runner.Run(gctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("scenario %s: %w", f.Name, err)
		}
		logger.Info("scenario complete, still serving", "end_tick", res.EndTick, "notifications", len(res.Notifications))
		return nil
	})
	g.Go(func() error {
		logger.Info("server starting", "addr", ln.Addr().String(), "scenario", f.Name)
		if ready != nil {
			ready <- ln.Addr().String()
		}
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
