// Package store persists alerts received by the alert API.
package store

import (
	"Go2NetGuard/internal/model"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store keeps alerts in a SQLite database. Only the newest keep alerts are
// retained.
type Store struct {
	db   *sql.DB
	keep int
}

// Open creates or opens the database at path. keep <= 0 disables pruning.
func Open(path string, keep int) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open alert db: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS alerts (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			timestamp TEXT NOT NULL,
			alert_type TEXT NOT NULL,
			severity INTEGER NOT NULL,
			body TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_alerts_severity ON alerts(severity);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create alert table: %w", err)
	}
	return &Store{db: db, keep: keep}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add stores an alert. Re-adding an id is a no-op.
func (s *Store) Add(ctx context.Context, a *model.Alert) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO alerts (id, timestamp, alert_type, severity, body)
		VALUES (?, ?, ?, ?, ?)
	`, a.ID, a.Timestamp, string(a.AlertType), int(a.Severity), string(body))
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	if s.keep > 0 {
		_, err = s.db.ExecContext(ctx, `
			DELETE FROM alerts WHERE seq <= (SELECT MAX(seq) FROM alerts) - ?
		`, s.keep)
		if err != nil {
			return fmt.Errorf("prune alerts: %w", err)
		}
	}
	return nil
}

// List returns up to limit alerts of at least minSeverity, newest first.
func (s *Store) List(ctx context.Context, limit int, minSeverity model.Severity) ([]*model.Alert, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT body FROM alerts WHERE severity >= ? ORDER BY seq DESC LIMIT ?
	`, int(minSeverity), limit)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []*model.Alert{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var a model.Alert
		if err := json.Unmarshal([]byte(body), &a); err != nil {
			return nil, fmt.Errorf("decode alert: %w", err)
		}
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}

// Clear removes every stored alert and returns how many there were.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alerts`)
	if err != nil {
		return 0, fmt.Errorf("clear alerts: %w", err)
	}
	return res.RowsAffected()
}

// Summary counts stored alerts by severity and type.
func (s *Store) Summary(ctx context.Context) (*model.AlertSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT severity, alert_type, COUNT(*) FROM alerts GROUP BY severity, alert_type
	`)
	if err != nil {
		return nil, fmt.Errorf("summarize alerts: %w", err)
	}
	defer rows.Close()

	summary := NewSummary()
	for rows.Next() {
		var sev, n int
		var typ string
		if err := rows.Scan(&sev, &typ, &n); err != nil {
			return nil, err
		}
		summary.Total += n
		summary.BySeverity[model.Severity(sev).String()] += n
		summary.ByType[typ] += n
	}
	return summary, rows.Err()
}

// NewSummary returns an empty summary with every severity and type present.
func NewSummary() *model.AlertSummary {
	return &model.AlertSummary{
		BySeverity: map[string]int{"low": 0, "medium": 0, "high": 0},
		ByType:     map[string]int{string(model.ThreatSignature): 0, string(model.ThreatAnomaly): 0},
	}
}
