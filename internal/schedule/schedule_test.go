package schedule

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/runledger/internal/runs"
)

type countingSweeper struct {
	calls  atomic.Int32
	report *runs.SweepReport
	err    error
}

func (c *countingSweeper) Sweep(ctx context.Context) (*runs.SweepReport, error) {
	c.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("sweep called without a deadline")
	}
	return c.report, c.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParse(t *testing.T) {
	for _, expr := range []string{"@every 10m", "*/5 * * * *", "@hourly", "0 3 * * 1-5"} {
		_, err := Parse(expr)
		assert.NoError(t, err, expr)
	}
	for _, expr := range []string{"", "every ten minutes", "* * *", "0 0 0 * * *"} {
		_, err := Parse(expr)
		assert.Error(t, err, expr)
	}
}

func TestNew_InvalidSchedule(t *testing.T) {
	_, err := New("not a schedule", &countingSweeper{}, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid sweep schedule")
}

func TestRunOnce(t *testing.T) {
	sw := &countingSweeper{report: &runs.SweepReport{Examined: 4, Reconciled: 1, Abandoned: 1, Unchanged: 2}}
	s, err := New("@every 10m", sw, quietLogger(), WithTimeout(time.Second))
	require.NoError(t, err)

	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, report.Examined)
	assert.Equal(t, int32(1), sw.calls.Load())

	sw.err = errors.New("store down")
	_, err = s.RunOnce(context.Background())
	assert.EqualError(t, err, "store down")
}

func TestStartStop(t *testing.T) {
	sw := &countingSweeper{report: &runs.SweepReport{}}
	s, err := New("@every 1s", sw, quietLogger())
	require.NoError(t, err)
	assert.True(t, s.Next().IsZero())

	s.Start(context.Background())
	assert.False(t, s.Next().IsZero())
	assert.Eventually(t, func() bool { return sw.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)

	after := sw.calls.Load()
	time.Sleep(1200 * time.Millisecond)
	assert.Equal(t, after, sw.calls.Load())
}
