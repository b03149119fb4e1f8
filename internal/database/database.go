package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// TimeFormat is the timestamp layout stored in every datetime column.
// It matches sqlite's datetime('now') output, so string comparison
// orders chronologically.
const TimeFormat = "2006-01-02 15:04:05"

// FormatTime renders t in UTC using the storage layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime parses a stored timestamp back into a UTC time.
func ParseTime(s string) (time.Time, error) {
	return time.ParseInLocation(TimeFormat, s, time.UTC)
}

// DB wraps a SQLite database connection.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates or opens a SQLite database at the given path.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &DB{conn: conn, path: dbPath}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// GetStats returns aggregate counts for the status view.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM topics", &s.TotalTopics},
		{"SELECT COUNT(*) FROM topics WHERE status = 'active'", &s.ActiveTopics},
		{"SELECT COUNT(*) FROM schedules", &s.TotalSchedules},
		{"SELECT COUNT(*) FROM schedules WHERE status = 'active'", &s.ActiveSchedules},
		{"SELECT COUNT(*) FROM artifacts", &s.Artifacts},
		{"SELECT COUNT(*) FROM cost_events", &s.CostEvents},
	}
	for _, q := range queries {
		if err := db.conn.QueryRow(q.query).Scan(q.dest); err != nil {
			return nil, err
		}
	}
	if err := db.conn.QueryRow("SELECT COALESCE(SUM(cost), 0) FROM cost_events").Scan(&s.TotalCost); err != nil {
		return nil, err
	}
	return s, nil
}
