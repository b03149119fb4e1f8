package database

import (
	"database/sql"
)

const scheduleColumns = `id, name, category, frequency, run_at, next_run_at, last_run_at,
	topics_per_run, min_length, max_length, model, image_count, status,
	run_count, success_count, failure_count, created_at`

// InsertSchedule creates a new schedule and returns its ID.
func (db *DB) InsertSchedule(s *Schedule) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT INTO schedules (name, category, frequency, run_at, next_run_at,
			topics_per_run, min_length, max_length, model, image_count, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Name, s.Category, s.Frequency, s.RunAt, s.NextRunAt,
		s.TopicsPerRun, s.MinLength, s.MaxLength, s.Model, s.ImageCount, ScheduleActive,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// LoadDueSchedules returns active schedules whose next run is at or before now.
func (db *DB) LoadDueSchedules(now string) ([]Schedule, error) {
	rows, err := db.conn.Query(
		`SELECT `+scheduleColumns+` FROM schedules
		WHERE status = 'active' AND next_run_at <= ?
		ORDER BY next_run_at ASC`, now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSchedules(rows)
}

// AllSchedules returns every schedule.
func (db *DB) AllSchedules() ([]Schedule, error) {
	rows, err := db.conn.Query(
		`SELECT ` + scheduleColumns + ` FROM schedules ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSchedules(rows)
}

// GetScheduleByID returns a single schedule, or nil if not found.
func (db *DB) GetScheduleByID(scheduleID int64) (*Schedule, error) {
	row := db.conn.QueryRow(
		`SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, scheduleID,
	)
	s, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// SetScheduleStatus moves a schedule between lifecycle states.
func (db *DB) SetScheduleStatus(scheduleID int64, status string) error {
	_, err := db.conn.Exec(
		"UPDATE schedules SET status = ? WHERE id = ?", status, scheduleID,
	)
	return err
}

// DeleteSchedule removes a schedule entirely (operator action).
func (db *DB) DeleteSchedule(scheduleID int64) error {
	if _, err := db.conn.Exec("DELETE FROM run_reports WHERE schedule_id = ?", scheduleID); err != nil {
		return err
	}
	_, err := db.conn.Exec("DELETE FROM schedules WHERE id = ?", scheduleID)
	return err
}

// RecordScheduleRun updates run bookkeeping after one execution. For `once`
// schedules the caller passes the completed status so the schedule leaves the
// active pool regardless of outcome.
func (db *DB) RecordScheduleRun(scheduleID int64, lastRunAt, nextRunAt, status string, succeeded, failed int) error {
	_, err := db.conn.Exec(
		`UPDATE schedules SET last_run_at = ?, next_run_at = ?, status = ?,
			run_count = run_count + 1,
			success_count = success_count + ?,
			failure_count = failure_count + ?
		WHERE id = ?`,
		lastRunAt, nextRunAt, status, succeeded, failed, scheduleID,
	)
	return err
}

// InsertRunReport records a per-run summary row.
func (db *DB) InsertRunReport(scheduleID int64, succeeded, failed, skipped int, cost float64, startedAt string) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT INTO run_reports (schedule_id, succeeded, failed, skipped, cost, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		scheduleID, succeeded, failed, skipped, cost, startedAt,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// RecentRunReports returns the most recent run reports, newest first.
func (db *DB) RecentRunReports(limit int) ([]RunReport, error) {
	rows, err := db.conn.Query(
		`SELECT id, schedule_id, succeeded, failed, skipped, cost, started_at
		FROM run_reports ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []RunReport
	for rows.Next() {
		var r RunReport
		if err := rows.Scan(&r.ID, &r.ScheduleID, &r.Succeeded, &r.Failed,
			&r.Skipped, &r.Cost, &r.StartedAt); err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

func scanSchedules(rows *sql.Rows) ([]Schedule, error) {
	var schedules []Schedule
	for rows.Next() {
		var s Schedule
		if err := rows.Scan(&s.ID, &s.Name, &s.Category, &s.Frequency, &s.RunAt,
			&s.NextRunAt, &s.LastRunAt, &s.TopicsPerRun, &s.MinLength, &s.MaxLength,
			&s.Model, &s.ImageCount, &s.Status, &s.RunCount, &s.SuccessCount,
			&s.FailureCount, &s.CreatedAt); err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

func scanSchedule(row *sql.Row) (*Schedule, error) {
	var s Schedule
	if err := row.Scan(&s.ID, &s.Name, &s.Category, &s.Frequency, &s.RunAt,
		&s.NextRunAt, &s.LastRunAt, &s.TopicsPerRun, &s.MinLength, &s.MaxLength,
		&s.Model, &s.ImageCount, &s.Status, &s.RunCount, &s.SuccessCount,
		&s.FailureCount, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}
