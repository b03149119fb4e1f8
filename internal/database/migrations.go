package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS topics (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    text TEXT UNIQUE NOT NULL,
    category TEXT NOT NULL DEFAULT 'general',
    demand_volume INTEGER DEFAULT 0,
    competition INTEGER DEFAULT 50,
    unit_value REAL DEFAULT 0,
    trend_score INTEGER DEFAULT 50,
    priority_score REAL DEFAULT 0,
    use_count INTEGER DEFAULT 0,
    last_used_at TEXT,
    status TEXT NOT NULL DEFAULT 'active' CHECK(status IN ('active', 'inactive')),
    discovered_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS schedules (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    category TEXT NOT NULL DEFAULT '',
    frequency TEXT NOT NULL,
    run_at TEXT NOT NULL DEFAULT '',
    next_run_at TEXT NOT NULL,
    last_run_at TEXT,
    topics_per_run INTEGER DEFAULT 1,
    min_length INTEGER DEFAULT 0,
    max_length INTEGER DEFAULT 0,
    model TEXT NOT NULL DEFAULT '',
    image_count INTEGER DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'active' CHECK(status IN ('active', 'paused', 'completed')),
    run_count INTEGER DEFAULT 0,
    success_count INTEGER DEFAULT 0,
    failure_count INTEGER DEFAULT 0,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS cost_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    kind TEXT NOT NULL CHECK(kind IN ('content', 'image')),
    input_units INTEGER DEFAULT 0,
    output_units INTEGER DEFAULT 0,
    input_price REAL DEFAULT 0,
    output_price REAL DEFAULT 0,
    cost REAL NOT NULL,
    artifact_id TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS artifacts (
    id TEXT PRIMARY KEY,
    schedule_id INTEGER REFERENCES schedules(id),
    topic TEXT NOT NULL,
    title TEXT NOT NULL,
    body TEXT NOT NULL,
    length INTEGER DEFAULT 0,
    model TEXT NOT NULL DEFAULT '',
    cost REAL DEFAULT 0,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_reports (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    schedule_id INTEGER NOT NULL REFERENCES schedules(id),
    succeeded INTEGER DEFAULT 0,
    failed INTEGER DEFAULT 0,
    skipped INTEGER DEFAULT 0,
    cost REAL DEFAULT 0,
    started_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_topics_status_category ON topics(status, category);
CREATE INDEX IF NOT EXISTS idx_schedules_status_next ON schedules(status, next_run_at);
CREATE INDEX IF NOT EXISTS idx_cost_events_created ON cost_events(created_at);
CREATE INDEX IF NOT EXISTS idx_artifacts_schedule ON artifacts(schedule_id);
CREATE INDEX IF NOT EXISTS idx_run_reports_schedule ON run_reports(schedule_id);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
