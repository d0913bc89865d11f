package sqlite

// initSchema creates the database schema if it doesn't exist.
func (db *DB) initSchema() error {
	schema := `
	-- Time-series metric points
	CREATE TABLE IF NOT EXISTS metric_points (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		metric_name TEXT NOT NULL,
		value REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_metric_points_name_ts ON metric_points(metric_name, timestamp);
	CREATE INDEX IF NOT EXISTS idx_metric_points_ts ON metric_points(timestamp);

	-- Alert lifecycle events (trigger, acknowledge, resolve, notify, ...)
	CREATE TABLE IF NOT EXISTS alert_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		alert_name TEXT NOT NULL,
		action TEXT NOT NULL,
		details TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_alert_events_name_ts ON alert_events(alert_name, timestamp);
	CREATE INDEX IF NOT EXISTS idx_alert_events_ts ON alert_events(timestamp);
	`

	_, err := db.conn.Exec(schema)
	return err
}
