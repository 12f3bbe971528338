package sqlite

import (
	"context"
	"database/sql"
)

const migrationSQL = `
CREATE TABLE IF NOT EXISTS runs (
    brand TEXT NOT NULL,
    run_id TEXT NOT NULL,
    environment TEXT NOT NULL,
    status TEXT NOT NULL,
    ts TEXT NOT NULL,
    github_run_id INTEGER,
    commit_sha TEXT,
    actor TEXT,
    workflow TEXT,
    repository TEXT,
    duration INTEGER,
    tests TEXT,
    conclusion TEXT,
    workflow_name TEXT,
    run_number INTEGER,
    reason TEXT,
    updated_at TEXT,
    expires_at INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (brand, run_id)
);
CREATE INDEX IF NOT EXISTS idx_runs_brand_ts ON runs(brand, ts DESC, run_id DESC);
CREATE INDEX IF NOT EXISTS idx_runs_status_ts ON runs(status, ts DESC, run_id DESC);
`

func runMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, migrationSQL)
	return err
}
