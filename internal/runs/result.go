package runs

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dwsmith1983/runledger/internal/lifecycle"
	"github.com/dwsmith1983/runledger/internal/metrics"
	"github.com/dwsmith1983/runledger/internal/provider"
	"github.com/dwsmith1983/runledger/pkg/types"
)

const artifactsErrorMessage = "Failed to retrieve artifacts"

// Result returns the run with the given id. Without a brand every brand is
// tried in order. Terminal runs are enriched with artifacts and a report link;
// an artifact failure is reported inside the result rather than failing it.
func (s *Service) Result(ctx context.Context, runID, brand string) (res *types.RunResult, err error) {
	ctx, span := s.tracer.Start(ctx, "runs.Result")
	defer func() { endSpan(span, err) }()

	if runID == "" {
		return nil, types.Validation("runId", "runId is required")
	}
	brands := types.Brands
	if brand != "" {
		b := types.Brand(brand)
		if !b.Valid() {
			return nil, types.Validation("brand", "Invalid brand. Must be one of: mweb, webafrica", types.Strings(types.Brands)...)
		}
		brands = []types.Brand{b}
	}
	span.SetAttributes(attribute.String("run.id", runID))

	var run *types.Run
	for _, b := range brands {
		r, err := s.store.GetRun(ctx, b, runID)
		if errors.Is(err, provider.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, types.Upstream("failed to read test run", err)
		}
		run = r
		break
	}
	if run == nil {
		return nil, types.NotFound(fmt.Sprintf("Test run not found: %s", runID))
	}

	res = &types.RunResult{Run: *run}
	if !lifecycle.IsTerminal(run.Status) || s.artifacts == nil {
		return res, nil
	}

	arts, err := s.artifacts.Artifacts(ctx, run.Brand, run.Environment, run.Timestamp)
	if err != nil {
		metrics.Inc(ctx, s.metrics.ArtifactFailures, "brand", string(run.Brand))
		s.logger.Warn("artifact lookup failed", "runId", runID, "error", err)
		arts = &types.Artifacts{Error: artifactsErrorMessage}
		if s.cfg.ExposeErrorDetails {
			arts.Details = err.Error()
		}
	}
	res.Artifacts = arts

	url, err := s.artifacts.ReportURL(ctx, run.Brand, run.Environment, run.Timestamp)
	if err != nil {
		s.logger.Warn("report lookup failed", "runId", runID, "error", err)
	}
	res.ReportURL = url
	return res, nil
}
