package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vigilhq/vigil/internal/alerts"
)

// AlertStore provides SQLite persistence for the alert event log.
type AlertStore struct {
	db *DB
}

// NewAlertStore creates a new AlertStore.
func NewAlertStore(db *DB) *AlertStore {
	return &AlertStore{db: db}
}

// SaveEntry persists one alert history entry. Details are stored as JSON.
func (s *AlertStore) SaveEntry(ctx context.Context, entry alerts.HistoryEntry) error {
	var details []byte
	if len(entry.Details) > 0 {
		var err error
		details, err = json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal details: %w", err)
		}
	}

	query := `INSERT INTO alert_events (timestamp, alert_name, action, details) VALUES (?, ?, ?, ?)`
	_, err := s.db.conn.ExecContext(ctx, query,
		entry.Timestamp.Format(time.RFC3339Nano),
		entry.AlertName,
		entry.Action,
		string(details),
	)
	if err != nil {
		return fmt.Errorf("failed to save alert event: %w", err)
	}
	return nil
}

// GetEntries returns recent alert events, newest first.
// If limit is 0, returns all events within the retention period.
func (s *AlertStore) GetEntries(ctx context.Context, limit int) ([]alerts.HistoryEntry, error) {
	query := `
		SELECT timestamp, alert_name, action, details
		FROM alert_events
		ORDER BY timestamp DESC
	`

	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.db.conn.QueryContext(ctx, query+" LIMIT ?", limit)
	} else {
		rows, err = s.db.conn.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query alert events: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// GetEntriesForAlert returns events for a specific alert, newest first.
func (s *AlertStore) GetEntriesForAlert(ctx context.Context, alertName string, limit int) ([]alerts.HistoryEntry, error) {
	query := `
		SELECT timestamp, alert_name, action, details
		FROM alert_events
		WHERE alert_name = ?
		ORDER BY timestamp DESC
	`

	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.db.conn.QueryContext(ctx, query+" LIMIT ?", alertName, limit)
	} else {
		rows, err = s.db.conn.QueryContext(ctx, query, alertName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query alert events: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Prune removes alert events older than the retention period.
// Returns number of rows deleted.
func (s *AlertStore) Prune(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = 7
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	result, err := s.db.conn.ExecContext(ctx, `DELETE FROM alert_events WHERE timestamp < ?`, cutoff.Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("failed to prune: %w", err)
	}

	return result.RowsAffected()
}

func scanEntries(rows *sql.Rows) ([]alerts.HistoryEntry, error) {
	var result []alerts.HistoryEntry
	for rows.Next() {
		var timestampStr, alertName, action string
		var detailsStr sql.NullString
		if err := rows.Scan(&timestampStr, &alertName, &action, &detailsStr); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		t, err := time.Parse(time.RFC3339Nano, timestampStr)
		if err != nil {
			t, err = time.Parse(time.RFC3339, timestampStr)
			if err != nil {
				continue // Skip malformed timestamps
			}
		}

		entry := alerts.HistoryEntry{
			Timestamp: t,
			AlertName: alertName,
			Action:    action,
		}
		if detailsStr.Valid && detailsStr.String != "" {
			var details map[string]any
			if err := json.Unmarshal([]byte(detailsStr.String), &details); err == nil {
				entry.Details = details
			}
		}

		result = append(result, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return result, nil
}
