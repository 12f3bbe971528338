// Package schedule runs the reconciliation sweep on a cron schedule for
// long-running deployments.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dwsmith1983/runledger/internal/runs"
)

// DefaultTimeout bounds a single sweep.
const DefaultTimeout = 5 * time.Minute

var parser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Parse parses a five-field cron expression or a descriptor such as
// "@every 10m".
func Parse(expr string) (cron.Schedule, error) {
	s, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", expr, err)
	}
	return s, nil
}

// Sweeper runs one reconciliation pass.
type Sweeper interface {
	Sweep(ctx context.Context) (*runs.SweepReport, error)
}

// Scheduler fires the sweep on its schedule. Overlapping ticks are skipped.
type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	logger  *slog.Logger
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// New creates a scheduler that sweeps on expr.
func New(expr string, sweeper Sweeper, logger *slog.Logger, opts ...Option) (*Scheduler, error) {
	sched, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{sweeper: sweeper, logger: logger, timeout: DefaultTimeout}
	for _, o := range opts {
		o(s)
	}

	cl := cronLogger{logger}
	s.cron = cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	s.cron.Schedule(sched, cron.FuncJob(s.tick))
	return s, nil
}

// Start begins firing the schedule. Sweeps inherit ctx's values and are
// cancelled by Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.cron.Start()
	s.logger.Info("sweep scheduler started", "next", s.Next())
}

// Stop halts the schedule and waits for an in-flight sweep until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		if s.cancel != nil {
			s.cancel()
		}
		<-done.Done()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.logger.Info("sweep scheduler stopped")
}

// Next returns when the sweep fires next, or the zero time if not started.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// RunOnce sweeps immediately and logs the outcome.
func (s *Scheduler) RunOnce(ctx context.Context) (*runs.SweepReport, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	report, err := s.sweeper.Sweep(ctx)
	if err != nil {
		s.logger.Error("scheduled sweep failed", "error", err, "elapsed", time.Since(start))
		return nil, err
	}
	s.logger.Info("scheduled sweep finished",
		"examined", report.Examined,
		"reconciled", report.Reconciled,
		"abandoned", report.Abandoned,
		"unchanged", report.Unchanged,
		"failed", report.Failed,
		"elapsed", time.Since(start),
	)
	return report, nil
}

func (s *Scheduler) tick() {
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	_, _ = s.RunOnce(ctx)
}

// cronLogger routes cron's own log lines through slog.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
