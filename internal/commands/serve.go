package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/runledger/internal/schedule"
	"github.com/dwsmith1983/runledger/internal/server"
	"github.com/dwsmith1983/runledger/internal/server/handlers"
)

// NewServeCmd creates the serve command.
func NewServeCmd(opts *Options) *cobra.Command {
	var noSweep bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the scheduled sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, noSweep)
		},
	}
	cmd.Flags().BoolVar(&noSweep, "no-sweep", false, "Do not run the scheduled reconciliation sweep")
	return cmd
}

func runServe(opts *Options, noSweep bool) error {
	ctx := context.Background()
	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	cfg := a.Config
	h := handlers.New(a.Service,
		handlers.Check{Name: "store", Pinger: a.Store},
		handlers.Check{Name: "artifacts", Pinger: a.Locator},
	)
	h.SetLogger(a.Logger)
	srv := server.New(cfg.Server.Addr, h, server.Options{
		APIKey:       cfg.Server.APIKey,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		CORSOrigin:   cfg.Server.CORSOrigin,
		Logger:       a.Logger,
	})

	var sched *schedule.Scheduler
	if !noSweep {
		sched, err = schedule.New(cfg.Sweep.Schedule, a.Service, a.Logger)
		if err != nil {
			return err
		}
		sched.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	color.Green("runledger listening on %s (%s store, %s artifacts)", cfg.Server.Addr, cfg.Provider, cfg.Artifacts.Backend)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		if sched != nil {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			sched.Stop(stopCtx)
			cancel()
		}
		return err
	case sig := <-sigCh:
		color.Yellow("\nReceived %s, shutting down...", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if sched != nil {
			sched.Stop(shutdownCtx)
		}
		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		color.Green("Server stopped gracefully")
		return nil
	}
}
