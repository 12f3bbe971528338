// Package app assembles the run service and its backends from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"go.opentelemetry.io/otel"

	"github.com/dwsmith1983/runledger/internal/artifact"
	"github.com/dwsmith1983/runledger/internal/config"
	"github.com/dwsmith1983/runledger/internal/events"
	"github.com/dwsmith1983/runledger/internal/github"
	"github.com/dwsmith1983/runledger/internal/metrics"
	"github.com/dwsmith1983/runledger/internal/provider"
	ddbprov "github.com/dwsmith1983/runledger/internal/provider/dynamodb"
	"github.com/dwsmith1983/runledger/internal/provider/sqlite"
	"github.com/dwsmith1983/runledger/internal/runs"
	"github.com/dwsmith1983/runledger/internal/secrets"
	"github.com/dwsmith1983/runledger/internal/telemetry"
)

// App holds the assembled components.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Store   provider.Provider
	Locator *artifact.Locator
	Service *runs.Service

	shutdownTelemetry telemetry.Shutdown
}

// NewLogger returns the JSON logger on w at the configured level.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

// Build creates and starts every component described by cfg.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = NewLogger(cfg, nil)
	}
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close(ctx)
		}
	}()

	shutdown, err := telemetry.Setup(ctx, telemetry.Config{Endpoint: cfg.Telemetry.Endpoint, Stage: cfg.Stage})
	if err != nil {
		return nil, fmt.Errorf("setting up telemetry: %w", err)
	}
	a.shutdownTelemetry = shutdown

	counters, err := metrics.New(otel.Meter("github.com/dwsmith1983/runledger"))
	if err != nil {
		return nil, err
	}

	loader := &awsLoader{region: cfg.Region}

	store, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Store = store
	if err := store.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting %s store: %w", cfg.Provider, err)
	}

	objects, err := newObjectStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Locator = artifact.NewLocator(objects,
		artifact.WithURLExpiry(config.Duration(cfg.Artifacts.URLExpiry, artifact.DefaultURLExpiry)),
		artifact.WithLogger(logger),
	)

	token, webhookSecret, err := resolveSecrets(ctx, cfg, loader)
	if err != nil {
		return nil, err
	}

	ghOpts := []github.Option{
		github.WithLogger(logger),
		github.WithBreaker(github.BreakerSettings{
			MaxFailures: cfg.GitHub.BreakerMaxFailures,
			OpenTimeout: config.Duration(cfg.GitHub.BreakerOpenDuration, 0),
		}),
	}
	if cfg.GitHub.BaseURL != "" {
		ghOpts = append(ghOpts, github.WithBaseURL(cfg.GitHub.BaseURL))
	}

	deps := runs.Deps{
		Store:     store,
		CI:        github.New(token, ghOpts...),
		Artifacts: a.Locator,
		Metrics:   counters,
		Logger:    logger,
		Config:    cfg.ServiceConfig(),
	}
	deps.Config.WebhookSecret = webhookSecret

	if cfg.Events.BusName != "" {
		awsCfg, err := loader.load(ctx)
		if err != nil {
			return nil, err
		}
		deps.Publisher = events.NewPublisher(eventbridge.NewFromConfig(awsCfg), cfg.Events.BusName)
	}

	svc, err := runs.New(deps)
	if err != nil {
		return nil, err
	}
	a.Service = svc

	logger.Info("runledger assembled",
		"stage", cfg.Stage,
		"provider", cfg.Provider,
		"artifacts", cfg.Artifacts.Backend,
		"events", cfg.Events.BusName != "",
	)
	return a, nil
}

// Close stops the store and flushes telemetry.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Store != nil {
		errs = append(errs, a.Store.Stop(ctx))
	}
	if a.shutdownTelemetry != nil {
		errs = append(errs, a.shutdownTelemetry(ctx))
	}
	return errors.Join(errs...)
}

func newStore(ctx context.Context, cfg *config.Config) (provider.Provider, error) {
	switch cfg.Provider {
	case config.ProviderDynamoDB:
		p, err := ddbprov.New(ctx, cfg.DynamoDB)
		if err != nil {
			return nil, fmt.Errorf("creating DynamoDB provider: %w", err)
		}
		return p, nil
	case config.ProviderSQLite:
		p, err := sqlite.New(cfg.SQLite)
		if err != nil {
			return nil, fmt.Errorf("creating SQLite provider: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func newObjectStore(ctx context.Context, cfg *config.Config) (artifact.ObjectStore, error) {
	switch cfg.Artifacts.Backend {
	case config.BackendS3:
		s, err := artifact.NewS3Store(ctx, *cfg.Artifacts.S3)
		if err != nil {
			return nil, fmt.Errorf("creating S3 store: %w", err)
		}
		return s, nil
	case config.BackendMinio:
		s, err := artifact.NewMinioStore(*cfg.Artifacts.Minio)
		if err != nil {
			return nil, fmt.Errorf("creating MinIO store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown artifact backend %q", cfg.Artifacts.Backend)
	}
}

func resolveSecrets(ctx context.Context, cfg *config.Config, loader *awsLoader) (token, webhookSecret string, err error) {
	token, webhookSecret = cfg.GitHub.Token, cfg.GitHub.WebhookSecret
	if cfg.GitHub.TokenSecretARN == "" && cfg.GitHub.WebhookSecretARN == "" {
		return token, webhookSecret, nil
	}
	awsCfg, err := loader.load(ctx)
	if err != nil {
		return "", "", err
	}
	resolver := secrets.NewResolver(secretsmanager.NewFromConfig(awsCfg))
	if arn := cfg.GitHub.TokenSecretARN; arn != "" {
		if token, err = resolver.Resolve(ctx, arn); err != nil {
			return "", "", fmt.Errorf("resolving GitHub token: %w", err)
		}
	}
	if arn := cfg.GitHub.WebhookSecretARN; arn != "" {
		if webhookSecret, err = resolver.Resolve(ctx, arn); err != nil {
			return "", "", fmt.Errorf("resolving webhook secret: %w", err)
		}
	}
	return token, webhookSecret, nil
}

type awsLoader struct {
	region string
	cfg    *aws.Config
}

func (l *awsLoader) load(ctx context.Context) (aws.Config, error) {
	if l.cfg != nil {
		return *l.cfg, nil
	}
	var opts []func(*awsconfig.LoadOptions) error
	if l.region != "" {
		opts = append(opts, awsconfig.WithRegion(l.region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	l.cfg = &cfg
	return cfg, nil
}
