package sink

import (
	"Go2NetGuard/internal/model"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
)

const createPostgresAlerts = `
CREATE TABLE IF NOT EXISTS ids_alerts (
	id              UUID PRIMARY KEY,
	created_at      TIMESTAMPTZ NOT NULL,
	alert_type      TEXT NOT NULL,
	attack_name     TEXT,
	severity        TEXT NOT NULL,
	mitre_technique TEXT,
	anomaly_score   DOUBLE PRECISION,
	src_ip          INET NOT NULL,
	src_port        INTEGER NOT NULL,
	dst_ip          INET NOT NULL,
	dst_port        INTEGER NOT NULL,
	traffic         JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ids_alerts_created_at ON ids_alerts (created_at);
CREATE INDEX IF NOT EXISTS idx_ids_alerts_severity ON ids_alerts (severity);
`

const insertPostgresAlert = `
INSERT INTO ids_alerts (id, created_at, alert_type, attack_name, severity, mitre_technique,
	anomaly_score, src_ip, src_port, dst_ip, dst_port, traffic)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (id) DO NOTHING`

// PostgresSink batches alerts into PostgreSQL.
type PostgresSink struct {
	*batchWriter
	db *sql.DB
}

// NewPostgresSink opens the database, ensures the schema and starts the
// writer loop.
func NewPostgresSink(name, dsn string, queueSize int) (*PostgresSink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(createPostgresAlerts); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create alert table: %w", err)
	}
	log.Printf("Connected to PostgreSQL database")

	s := &PostgresSink{db: db}
	s.batchWriter = newBatchWriter(name, queueSize, s.writeBatch)
	s.start()
	return s, nil
}

func (s *PostgresSink) writeBatch(alerts []*model.Alert) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, insertPostgresAlert)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, a := range alerts {
		traffic, err := json.Marshal(a.Traffic)
		if err != nil {
			tx.Rollback()
			return err
		}
		_, err = stmt.ExecContext(ctx,
			a.ID, a.Timestamp, string(a.AlertType), a.AttackName, a.Severity.String(), a.MitreTechnique,
			a.AnomalyScore, a.Source.IP, a.Source.Port, a.Destination.IP, a.Destination.Port, string(traffic))
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert alert %s: %w", a.ID, err)
		}
	}
	return tx.Commit()
}

// Close flushes pending alerts and closes the database.
func (s *PostgresSink) Close() error {
	s.stop()
	return s.db.Close()
}
