package database

import (
	"database/sql"
)

// InsertArtifact stores a finished artifact.
func (db *DB) InsertArtifact(a *Artifact) error {
	_, err := db.conn.Exec(
		`INSERT INTO artifacts (id, schedule_id, topic, title, body, length, model, cost)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ScheduleID, a.Topic, a.Title, a.Body, a.Length, a.Model, a.Cost,
	)
	return err
}

// GetArtifact returns an artifact by ID, or nil if not found.
func (db *DB) GetArtifact(artifactID string) (*Artifact, error) {
	row := db.conn.QueryRow(
		`SELECT id, schedule_id, topic, title, body, length, model, cost, created_at
		FROM artifacts WHERE id = ?`, artifactID,
	)
	var a Artifact
	err := row.Scan(&a.ID, &a.ScheduleID, &a.Topic, &a.Title, &a.Body,
		&a.Length, &a.Model, &a.Cost, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// RecentArtifacts returns the most recent artifacts without their bodies,
// newest first.
func (db *DB) RecentArtifacts(limit int) ([]Artifact, error) {
	rows, err := db.conn.Query(
		`SELECT id, schedule_id, topic, title, length, model, cost, created_at
		FROM artifacts ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []Artifact
	for rows.Next() {
		var a Artifact
		if err := rows.Scan(&a.ID, &a.ScheduleID, &a.Topic, &a.Title,
			&a.Length, &a.Model, &a.Cost, &a.CreatedAt); err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}
