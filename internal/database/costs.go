package database

// AppendCostEvent records one billed external-service call. Events are
// append-only and never mutated.
func (db *DB) AppendCostEvent(e *CostEvent) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT INTO cost_events (kind, input_units, output_units, input_price, output_price, cost, artifact_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Kind, e.InputUnits, e.OutputUnits, e.InputPrice, e.OutputPrice, e.Cost, e.ArtifactID,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// SumCostSince returns the total cost of events recorded at or after the
// given timestamp.
func (db *DB) SumCostSince(since string) (float64, error) {
	var total float64
	err := db.conn.QueryRow(
		"SELECT COALESCE(SUM(cost), 0) FROM cost_events WHERE created_at >= ?", since,
	).Scan(&total)
	return total, err
}

// RecentCostEvents returns the most recent cost events, newest first.
func (db *DB) RecentCostEvents(limit int) ([]CostEvent, error) {
	rows, err := db.conn.Query(
		`SELECT id, kind, input_units, output_units, input_price, output_price, cost, artifact_id, created_at
		FROM cost_events ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []CostEvent
	for rows.Next() {
		var e CostEvent
		if err := rows.Scan(&e.ID, &e.Kind, &e.InputUnits, &e.OutputUnits,
			&e.InputPrice, &e.OutputPrice, &e.Cost, &e.ArtifactID, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// PurgeCostEvents deletes events older than the given timestamp and returns
// how many were removed. Used by the retention command, never by the engine.
func (db *DB) PurgeCostEvents(before string) (int64, error) {
	result, err := db.conn.Exec(
		"DELETE FROM cost_events WHERE created_at < ?", before,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
