package database

import (
	"database/sql"
)

const topicColumns = `id, text, category, demand_volume, competition, unit_value,
	trend_score, priority_score, use_count, last_used_at, status, discovered_at`

// InsertTopic inserts a candidate topic. Returns the ID on success, 0 if the
// text already exists.
func (db *DB) InsertTopic(text, category string, demandVolume, competition, trendScore int, unitValue float64) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT INTO topics (text, category, demand_volume, competition, trend_score, unit_value)
		VALUES (?, ?, ?, ?, ?, ?)`,
		text, category, demandVolume, competition, trendScore, unitValue,
	)
	if err != nil {
		// Duplicate text constraint
		return 0, nil //nolint: nilerr
	}
	return result.LastInsertId()
}

// LoadActiveTopics returns active topics, optionally filtered by category,
// ordered by priority score descending with ties broken by lowest use count
// then most recent discovery.
func (db *DB) LoadActiveTopics(category string) ([]Topic, error) {
	query := `SELECT ` + topicColumns + ` FROM topics WHERE status = 'active'`
	var args []any
	if category != "" {
		query += " AND category = ?"
		args = append(args, category)
	}
	query += " ORDER BY priority_score DESC, use_count ASC, discovered_at DESC"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTopics(rows)
}

// AllTopics returns every topic regardless of status.
func (db *DB) AllTopics() ([]Topic, error) {
	rows, err := db.conn.Query(
		`SELECT ` + topicColumns + ` FROM topics ORDER BY priority_score DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTopics(rows)
}

// GetTopicByID returns a single topic by ID, or nil if not found.
func (db *DB) GetTopicByID(topicID int64) (*Topic, error) {
	row := db.conn.QueryRow(
		`SELECT `+topicColumns+` FROM topics WHERE id = ?`, topicID,
	)
	t, err := scanTopic(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateTopicScore stores a recomputed priority score.
func (db *DB) UpdateTopicScore(topicID int64, score float64) error {
	_, err := db.conn.Exec(
		"UPDATE topics SET priority_score = ? WHERE id = ?", score, topicID,
	)
	return err
}

// MarkTopicUsed increments the use count, stamps last-used, and stores the
// recomputed score in a single statement so concurrent jobs cannot interleave
// partial updates.
func (db *DB) MarkTopicUsed(topicID int64, lastUsedAt string, score float64) error {
	_, err := db.conn.Exec(
		`UPDATE topics SET use_count = use_count + 1, last_used_at = ?, priority_score = ?
		WHERE id = ?`,
		lastUsedAt, score, topicID,
	)
	return err
}

// SetTopicStatus flips a topic between active and inactive. Topics are never
// physically deleted.
func (db *DB) SetTopicStatus(topicID int64, status string) error {
	_, err := db.conn.Exec(
		"UPDATE topics SET status = ? WHERE id = ?", status, topicID,
	)
	return err
}

func scanTopics(rows *sql.Rows) ([]Topic, error) {
	var topics []Topic
	for rows.Next() {
		var t Topic
		if err := rows.Scan(&t.ID, &t.Text, &t.Category, &t.DemandVolume, &t.Competition,
			&t.UnitValue, &t.TrendScore, &t.PriorityScore, &t.UseCount,
			&t.LastUsedAt, &t.Status, &t.DiscoveredAt); err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

func scanTopic(row *sql.Row) (*Topic, error) {
	var t Topic
	if err := row.Scan(&t.ID, &t.Text, &t.Category, &t.DemandVolume, &t.Competition,
		&t.UnitValue, &t.TrendScore, &t.PriorityScore, &t.UseCount,
		&t.LastUsedAt, &t.Status, &t.DiscoveredAt); err != nil {
		return nil, err
	}
	return &t, nil
}
