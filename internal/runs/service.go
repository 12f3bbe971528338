// Package runs implements the test run lifecycle: triggering CI, listing and
// reading runs, reconciling completion webhooks and sweeping stale runs.
package runs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dwsmith1983/runledger/internal/github"
	"github.com/dwsmith1983/runledger/internal/metrics"
	"github.com/dwsmith1983/runledger/internal/provider"
	"github.com/dwsmith1983/runledger/pkg/types"
)

// CI is the continuous-integration system that executes the test suite.
type CI interface {
	DispatchWorkflow(ctx context.Context, owner, repo, workflow, ref string, inputs map[string]string) error
	ListWorkflowRuns(ctx context.Context, owner, repo, workflow string, filter github.ListFilter) ([]github.WorkflowRun, error)
	GetWorkflowRun(ctx context.Context, owner, repo string, id int64) (*github.WorkflowRun, error)
}

// ArtifactLocator resolves the stored artifacts of a run.
type ArtifactLocator interface {
	Artifacts(ctx context.Context, brand types.Brand, env types.Environment, ts time.Time) (*types.Artifacts, error)
	ReportURL(ctx context.Context, brand types.Brand, env types.Environment, ts time.Time) (string, error)
}

// Publisher emits run lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, detailType types.EventDetailType, run types.Run) error
}

// Workflow identifies the GitHub Actions workflow that runs the suite.
type Workflow struct {
	Owner    string `yaml:"owner" json:"owner"`
	Repo     string `yaml:"repo" json:"repo"`
	Workflow string `yaml:"workflow" json:"workflow"`
	Ref      string `yaml:"ref,omitempty" json:"ref,omitempty"`
}

// Repository returns owner/repo.
func (w Workflow) Repository() string {
	return w.Owner + "/" + w.Repo
}

// Defaults applied by New.
const (
	DefaultStaleAfter       = 30 * time.Minute
	DefaultAbandonAfter     = 2 * time.Hour
	DefaultSweepConcurrency = 4
)

// Config holds the behavioral settings of the service.
type Config struct {
	Workflow           Workflow
	WebhookSecret      string
	RunIDFormat        string // "timestamp" (default) or "ulid"
	ExposeErrorDetails bool
	StaleAfter         time.Duration
	AbandonAfter       time.Duration
	SweepConcurrency   int
}

// Deps are the collaborators of a Service. Store and CI are required.
type Deps struct {
	Store     provider.Provider
	CI        CI
	Artifacts ArtifactLocator // optional; results carry no artifacts without it
	Publisher Publisher       // optional
	Metrics   *metrics.Counters
	Logger    *slog.Logger
	Now       func() time.Time
	NewRunID  RunIDFunc // optional; derived from Config.RunIDFormat
	Config    Config
}

// Service implements the run lifecycle operations.
type Service struct {
	store     provider.Provider
	ci        CI
	artifacts ArtifactLocator
	publisher Publisher
	metrics   *metrics.Counters
	logger    *slog.Logger
	now       func() time.Time
	newRunID  RunIDFunc
	cfg       Config
	tracer    trace.Tracer
}

// New validates d and builds a Service.
func New(d Deps) (*Service, error) {
	if d.Store == nil {
		return nil, errors.New("runs: store is required")
	}
	if d.CI == nil {
		return nil, errors.New("runs: CI client is required")
	}
	s := &Service{
		store:     d.Store,
		ci:        d.CI,
		artifacts: d.Artifacts,
		publisher: d.Publisher,
		metrics:   d.Metrics,
		logger:    d.Logger,
		now:       d.Now,
		newRunID:  d.NewRunID,
		cfg:       d.Config,
		tracer:    otel.Tracer("github.com/dwsmith1983/runledger/internal/runs"),
	}
	if s.metrics == nil {
		s.metrics = metrics.Noop()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newRunID == nil {
		gen, err := RunIDGenerator(s.cfg.RunIDFormat)
		if err != nil {
			return nil, err
		}
		s.newRunID = gen
	}
	if s.cfg.Workflow.Ref == "" {
		s.cfg.Workflow.Ref = "main"
	}
	if s.cfg.StaleAfter <= 0 {
		s.cfg.StaleAfter = DefaultStaleAfter
	}
	if s.cfg.AbandonAfter <= 0 {
		s.cfg.AbandonAfter = DefaultAbandonAfter
	}
	if s.cfg.SweepConcurrency <= 0 {
		s.cfg.SweepConcurrency = DefaultSweepConcurrency
	}
	return s, nil
}

// Ping checks the run store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) publish(ctx context.Context, detailType types.EventDetailType, run types.Run) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, detailType, run); err != nil {
		s.logger.Warn("failed to publish run event", "runId", run.RunID, "event", string(detailType), "error", err)
		return
	}
	metrics.Inc(ctx, s.metrics.EventsPublished, "event", string(detailType))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
