// Package testutil provides shared test utilities for runledger.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dwsmith1983/runledger/internal/lifecycle"
	"github.com/dwsmith1983/runledger/internal/provider"
	"github.com/dwsmith1983/runledger/pkg/types"
)

// Compile-time interface satisfaction check.
var _ provider.Provider = (*MockProvider)(nil)

// MockProvider is an in-memory Provider implementation for testing.
// The *Err fields inject failures into the matching operation.
type MockProvider struct {
	mu      sync.Mutex
	runs    map[string]types.Run
	expires map[string]time.Time
	updates int

	PutErr    error
	GetErr    error
	ListErr   error
	UpdateErr error
	PingErr   error

	Now          func() time.Time
	RetentionTTL time.Duration
}

// NewMockProvider creates a new in-memory mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		runs:         make(map[string]types.Run),
		expires:      make(map[string]time.Time),
		Now:          time.Now,
		RetentionTTL: provider.DefaultRetentionDays * 24 * time.Hour,
	}
}

func runKey(brand types.Brand, runID string) string {
	return string(brand) + "/" + runID
}

func (m *MockProvider) live(key string) bool {
	exp, ok := m.expires[key]
	return !ok || !m.Now().After(exp)
}

func (m *MockProvider) PutRun(_ context.Context, run types.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PutErr != nil {
		return m.PutErr
	}
	key := runKey(run.Brand, run.RunID)
	m.runs[key] = run
	m.expires[key] = provider.RetentionStart(run.Timestamp, m.Now()).Add(m.RetentionTTL)
	return nil
}

func (m *MockProvider) GetRun(_ context.Context, brand types.Brand, runID string) (*types.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	key := runKey(brand, runID)
	run, ok := m.runs[key]
	if !ok || !m.live(key) {
		return nil, fmt.Errorf("%w: %s/%s", provider.ErrNotFound, brand, runID)
	}
	return &run, nil
}

func (m *MockProvider) ListRunsByBrand(_ context.Context, brand types.Brand, q types.RunQuery) (*types.RunPage, error) {
	return m.list(q, func(r types.Run) bool { return r.Brand == brand })
}

func (m *MockProvider) ListRunsByStatus(_ context.Context, status types.RunStatus, q types.RunQuery) (*types.RunPage, error) {
	return m.list(q, func(r types.Run) bool {
		return r.Status == status && (q.Brand == "" || r.Brand == q.Brand)
	})
}

func (m *MockProvider) list(q types.RunQuery, match func(types.Run) bool) (*types.RunPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	pos, err := provider.DecodeCursor(q.Cursor)
	if err != nil {
		return nil, err
	}

	var matched []types.Run
	for key, r := range m.runs {
		if !match(r) || !m.live(key) {
			continue
		}
		if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
			continue
		}
		if !q.End.IsZero() && r.Timestamp.After(q.End) {
			continue
		}
		matched = append(matched, r)
	}
	sort.Slice(matched, func(i, j int) bool {
		return sortKey(matched[i]) > sortKey(matched[j])
	})

	if pos != nil {
		after := pos["ts"] + "#" + pos["runId"]
		i := sort.Search(len(matched), func(i int) bool { return sortKey(matched[i]) < after })
		matched = matched[i:]
	}

	page := &types.RunPage{Runs: []types.Run{}}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
		last := matched[len(matched)-1]
		page.Cursor = provider.EncodeCursor(map[string]string{
			"ts":    types.FormatTimestamp(last.Timestamp),
			"runId": last.RunID,
		})
	}
	page.Runs = append(page.Runs, matched...)
	return page, nil
}

func sortKey(r types.Run) string {
	return types.FormatTimestamp(r.Timestamp) + "#" + r.RunID
}

func (m *MockProvider) UpdateRunStatus(_ context.Context, key types.RunKey, status types.RunStatus, update types.RunUpdate) (*types.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	if m.UpdateErr != nil {
		return nil, m.UpdateErr
	}
	k := runKey(key.Brand, key.RunID)
	run, ok := m.runs[k]
	if !ok || !m.live(k) {
		return nil, fmt.Errorf("%w: %s/%s", provider.ErrNotFound, key.Brand, key.RunID)
	}
	if !lifecycle.CanTransition(run.Status, status) {
		return nil, provider.RejectTransition(key.RunID, run.Status, status)
	}
	if update.UpdatedAt.IsZero() {
		update.UpdatedAt = m.Now()
	}
	run.Status = status
	update.Apply(&run)
	m.runs[k] = run
	return &run, nil
}

func (m *MockProvider) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PingErr
}

func (m *MockProvider) Start(_ context.Context) error { return nil }
func (m *MockProvider) Stop(_ context.Context) error  { return nil }

// Runs returns a snapshot of every stored run.
func (m *MockProvider) Runs() []types.Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Run, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, r)
	}
	return out
}

// UpdateCount returns how many status updates were attempted.
func (m *MockProvider) UpdateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates
}
