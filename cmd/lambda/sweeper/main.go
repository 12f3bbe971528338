// sweeper Lambda reconciles test runs stuck in a non-terminal state with
// GitHub. Invoked by an EventBridge schedule (e.g. every 10 minutes).
package main

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	awslambda "github.com/aws/aws-lambda-go/lambda"

	intlambda "github.com/dwsmith1983/runledger/internal/lambda"
	"github.com/dwsmith1983/runledger/internal/runs"
)

var (
	deps     *intlambda.Deps
	depsOnce sync.Once
	depsErr  error
)

func getDeps() (*intlambda.Deps, error) {
	depsOnce.Do(func() {
		deps, depsErr = intlambda.Init(context.Background())
	})
	return deps, depsErr
}

func handler(ctx context.Context, ev events.CloudWatchEvent) (*runs.SweepReport, error) {
	d, err := getDeps()
	if err != nil {
		return nil, err
	}
	return intlambda.HandleSweep(ctx, d, ev)
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	awslambda.Start(handler)
}
