// Package lambda adapts the run service to AWS Lambda: API Gateway proxy
// requests for the HTTP routes and scheduled events for the sweep.
package lambda

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dwsmith1983/runledger/internal/app"
	"github.com/dwsmith1983/runledger/internal/config"
	"github.com/dwsmith1983/runledger/internal/runs"
	"github.com/dwsmith1983/runledger/internal/server"
	"github.com/dwsmith1983/runledger/internal/server/handlers"
)

// Sweeper runs one reconciliation sweep.
type Sweeper interface {
	Sweep(ctx context.Context) (*runs.SweepReport, error)
}

// Deps holds shared dependencies for Lambda handlers.
type Deps struct {
	API     *API
	Sweeper Sweeper
	Logger  *slog.Logger
	App     *app.App
}

// Init creates shared dependencies from environment variables.
// See config.FromEnv for the variables read.
func Init(ctx context.Context) (*Deps, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	logger := app.NewLogger(cfg, nil)

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("building service: %w", err)
	}

	h := handlers.New(a.Service,
		handlers.Check{Name: "store", Pinger: a.Store},
		handlers.Check{Name: "artifacts", Pinger: a.Locator},
	)
	h.SetLogger(logger)
	srv := server.New("", h, server.Options{
		APIKey:       cfg.Server.APIKey,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		CORSOrigin:   cfg.Server.CORSOrigin,
		Logger:       logger,
	})

	return &Deps{
		API:     NewAPI(srv.Router(), logger),
		Sweeper: a.Service,
		Logger:  logger,
		App:     a,
	}, nil
}
