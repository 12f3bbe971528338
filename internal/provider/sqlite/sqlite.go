// Package sqlite implements the Provider interface on an embedded SQLite
// database for local development and single-host deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dwsmith1983/runledger/internal/lifecycle"
	"github.com/dwsmith1983/runledger/internal/provider"
	"github.com/dwsmith1983/runledger/pkg/types"
)

var _ provider.Provider = (*SQLiteProvider)(nil)

const defaultRetentionTTL = provider.DefaultRetentionDays * 24 * time.Hour

const selectRunCols = `brand, run_id, environment, status, ts, github_run_id,
	commit_sha, actor, workflow, repository, duration, tests, conclusion,
	workflow_name, run_number, reason, updated_at`

// SQLiteProvider stores runs in a single SQLite table.
type SQLiteProvider struct {
	db           *sql.DB
	logger       *slog.Logger
	retentionTTL time.Duration
	now          func() time.Time
}

// New opens the database at cfg.Path. Migrations run in Start.
func New(cfg *Config) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer keeps conditional updates serialized.
	db.SetMaxOpenConns(1)

	retentionTTL := defaultRetentionTTL
	if cfg.RetentionTTL != "" {
		if d, err := time.ParseDuration(cfg.RetentionTTL); err == nil && d > 0 {
			retentionTTL = d
		}
	}
	return &SQLiteProvider{
		db:           db,
		logger:       slog.Default(),
		retentionTTL: retentionTTL,
		now:          time.Now,
	}, nil
}

// SetLogger overrides the default logger.
func (p *SQLiteProvider) SetLogger(l *slog.Logger) {
	if l != nil {
		p.logger = l
	}
}

// Start enables WAL mode and applies the schema.
func (p *SQLiteProvider) Start(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if err := runMigrations(ctx, p.db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Stop closes the database.
func (p *SQLiteProvider) Stop(_ context.Context) error {
	return p.db.Close()
}

// Ping checks the database connection.
func (p *SQLiteProvider) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite ping failed: %w", err)
	}
	return nil
}

// PutRun inserts the run or replaces the record with the same brand and id.
func (p *SQLiteProvider) PutRun(ctx context.Context, run types.Run) error {
	tests, err := marshalTests(run.Tests)
	if err != nil {
		return err
	}
	var updatedAt sql.NullString
	if !run.UpdatedAt.IsZero() {
		updatedAt = sql.NullString{String: types.FormatTimestamp(run.UpdatedAt), Valid: true}
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (
			brand, run_id, environment, status, ts, github_run_id, commit_sha,
			actor, workflow, repository, duration, tests, conclusion,
			workflow_name, run_number, reason, updated_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(run.Brand),
		run.RunID,
		string(run.Environment),
		string(run.Status),
		types.FormatTimestamp(run.Timestamp),
		nullInt64(run.GitHubRunID),
		nullString(run.Commit),
		nullString(run.Actor),
		nullString(run.Workflow),
		nullString(run.Repository),
		nullDuration(run.Duration),
		tests,
		nullString(run.Conclusion),
		nullString(run.WorkflowName),
		nullInt64(int64(run.RunNumber)),
		nullString(run.Reason),
		updatedAt,
		provider.RetentionStart(run.Timestamp, p.now()).Add(p.retentionTTL).Unix(),
	)
	if err != nil {
		return fmt.Errorf("putting run %q: %w", run.RunID, err)
	}
	return nil
}

// GetRun returns a single run by brand and id.
func (p *SQLiteProvider) GetRun(ctx context.Context, brand types.Brand, runID string) (*types.Run, error) {
	row := p.db.QueryRowContext(ctx,
		"SELECT "+selectRunCols+" FROM runs WHERE brand = ? AND run_id = ? AND (expires_at = 0 OR expires_at >= ?)",
		string(brand), runID, p.now().Unix())
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", provider.ErrNotFound, brand, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("getting run %q: %w", runID, err)
	}
	return run, nil
}

// ListRunsByBrand lists a brand's runs newest first.
func (p *SQLiteProvider) ListRunsByBrand(ctx context.Context, brand types.Brand, q types.RunQuery) (*types.RunPage, error) {
	return p.list(ctx, "brand = ?", []any{string(brand)}, q)
}

// ListRunsByStatus lists runs in a status newest first, optionally for one brand.
func (p *SQLiteProvider) ListRunsByStatus(ctx context.Context, status types.RunStatus, q types.RunQuery) (*types.RunPage, error) {
	where := "status = ?"
	args := []any{string(status)}
	if q.Brand != "" {
		where += " AND brand = ?"
		args = append(args, string(q.Brand))
	}
	return p.list(ctx, where, args, q)
}

// list runs a keyset-paginated query. The cursor carries the timestamp and
// run id of the last row returned.
func (p *SQLiteProvider) list(ctx context.Context, where string, args []any, q types.RunQuery) (*types.RunPage, error) {
	pos, err := provider.DecodeCursor(q.Cursor)
	if err != nil {
		return nil, err
	}

	query := "SELECT " + selectRunCols + " FROM runs WHERE " + where + " AND (expires_at = 0 OR expires_at >= ?)"
	args = append(args, p.now().Unix())
	if !q.Start.IsZero() {
		query += " AND ts >= ?"
		args = append(args, types.FormatTimestamp(q.Start))
	}
	if !q.End.IsZero() {
		query += " AND ts <= ?"
		args = append(args, types.FormatTimestamp(q.End))
	}
	if pos != nil {
		ts, id := pos["ts"], pos["runId"]
		if ts == "" || id == "" {
			return nil, fmt.Errorf("%w: missing position fields", provider.ErrInvalidCursor)
		}
		query += " AND (ts < ? OR (ts = ? AND run_id < ?))"
		args = append(args, ts, ts, id)
	}
	query += " ORDER BY ts DESC, run_id DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit+1)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	page := &types.RunPage{Runs: []types.Run{}}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			p.logger.Warn("skipping corrupt run data", "error", err)
			continue
		}
		page.Runs = append(page.Runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}

	if q.Limit > 0 && len(page.Runs) > q.Limit {
		page.Runs = page.Runs[:q.Limit]
		last := page.Runs[len(page.Runs)-1]
		page.Cursor = provider.EncodeCursor(map[string]string{
			"ts":    types.FormatTimestamp(last.Timestamp),
			"runId": last.RunID,
		})
	}
	return page, nil
}

// UpdateRunStatus applies a conditional status update addressed by brand and
// run id. The key timestamp is not needed since it is not part of the key.
func (p *SQLiteProvider) UpdateRunStatus(ctx context.Context, key types.RunKey, status types.RunStatus, update types.RunUpdate) (*types.Run, error) {
	if update.UpdatedAt.IsZero() {
		update.UpdatedAt = p.now()
	}
	tests, err := marshalTests(update.Tests)
	if err != nil {
		return nil, err
	}

	from := lifecycle.AllowedFrom(status)
	placeholders := make([]string, len(from))
	args := []any{
		string(status),
		types.FormatTimestamp(update.UpdatedAt),
		nullInt64(update.GitHubRunID),
		nullString(update.Commit),
		nullString(update.Conclusion),
		nullString(update.WorkflowName),
		nullInt64(int64(update.RunNumber)),
		nullDuration(update.Duration),
		tests,
		nullString(update.Reason),
		string(key.Brand),
		key.RunID,
	}
	for i, s := range from {
		placeholders[i] = "?"
		args = append(args, string(s))
	}

	row := p.db.QueryRowContext(ctx, `
		UPDATE runs SET
			status = ?,
			updated_at = ?,
			github_run_id = COALESCE(?, github_run_id),
			commit_sha = COALESCE(?, commit_sha),
			conclusion = COALESCE(?, conclusion),
			workflow_name = COALESCE(?, workflow_name),
			run_number = COALESCE(?, run_number),
			duration = COALESCE(?, duration),
			tests = COALESCE(?, tests),
			reason = COALESCE(?, reason)
		WHERE brand = ? AND run_id = ? AND status IN (`+strings.Join(placeholders, ", ")+`)
		RETURNING `+selectRunCols, args...)
	run, err := scanRun(row)
	if err == nil {
		return run, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("updating run %q: %w", key.RunID, err)
	}

	var current string
	err = p.db.QueryRowContext(ctx, "SELECT status FROM runs WHERE brand = ? AND run_id = ?",
		string(key.Brand), key.RunID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", provider.ErrNotFound, key.Brand, key.RunID)
	}
	if err != nil {
		return nil, fmt.Errorf("updating run %q: %w", key.RunID, err)
	}
	return nil, provider.RejectTransition(key.RunID, types.RunStatus(current), status)
}

func scanRun(row interface{ Scan(...any) error }) (*types.Run, error) {
	var (
		r                                   types.Run
		brand, env, status, ts              string
		githubRunID, duration, runNumber    sql.NullInt64
		commit, actor, workflow, repository sql.NullString
		tests, conclusion, workflowName     sql.NullString
		reason, updatedAt                   sql.NullString
	)
	err := row.Scan(
		&brand, &r.RunID, &env, &status, &ts, &githubRunID,
		&commit, &actor, &workflow, &repository, &duration, &tests, &conclusion,
		&workflowName, &runNumber, &reason, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Brand = types.Brand(brand)
	r.Environment = types.Environment(env)
	r.Status = types.RunStatus(status)
	r.Timestamp, err = types.ParseTimestamp(ts)
	if err != nil {
		return nil, fmt.Errorf("parse ts: %w", err)
	}
	if updatedAt.Valid {
		r.UpdatedAt, err = types.ParseTimestamp(updatedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse updated_at: %w", err)
		}
	}
	if githubRunID.Valid {
		r.GitHubRunID = githubRunID.Int64
	}
	if duration.Valid {
		d := duration.Int64
		r.Duration = &d
	}
	if runNumber.Valid {
		r.RunNumber = int(runNumber.Int64)
	}
	if tests.Valid {
		var s types.TestSummary
		if err := json.Unmarshal([]byte(tests.String), &s); err != nil {
			return nil, fmt.Errorf("parse tests: %w", err)
		}
		r.Tests = &s
	}
	r.Commit = commit.String
	r.Actor = actor.String
	r.Workflow = workflow.String
	r.Repository = repository.String
	r.Conclusion = conclusion.String
	r.WorkflowName = workflowName.String
	r.Reason = reason.String
	return &r, nil
}

func marshalTests(s *types.TestSummary) (sql.NullString, error) {
	if s == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshaling tests: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt64(v int64) sql.NullInt64 {
	if v == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: v, Valid: true}
}

func nullDuration(d *int64) sql.NullInt64 {
	if d == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *d, Valid: true}
}
