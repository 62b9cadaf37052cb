package sink

import (
	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/model"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClickHouseTable is the table alerts are written to and queried from.
const ClickHouseTable = "ids_alerts"

const createAlertsTable = `
CREATE TABLE IF NOT EXISTS ids_alerts (
    Timestamp      DateTime64(3),
    ID             String,
    AlertType      LowCardinality(String),
    AttackName     Nullable(String),
    Severity       LowCardinality(String),
    MitreTechnique Nullable(String),
    AnomalyScore   Nullable(Float64),
    SrcIP          String,
    SrcPort        UInt16,
    DstIP          String,
    DstPort        UInt16,
    PacketSize     UInt32,
    PacketRate     Float64,
    ByteRate       Float64,
    TCPFlags       String,
    FlowDuration   Nullable(Float64)
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (Severity, Timestamp);
`

// ClickHouseSink batches alerts into the ids_alerts table.
type ClickHouseSink struct {
	*batchWriter
	conn driver.Conn
}

// NewClickHouseSink connects, ensures the table exists and starts the
// writer loop.
func NewClickHouseSink(name string, cfg config.ClickHouseConfig, queueSize int) (*ClickHouseSink, error) {
	conn, err := ConnectClickHouse(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	if err := conn.Exec(context.Background(), createAlertsTable); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	log.Println("Successfully connected to ClickHouse and ensured alert table exists.")

	s := &ClickHouseSink{conn: conn}
	s.batchWriter = newBatchWriter(name, queueSize, s.writeBatch)
	s.start()
	return s, nil
}

// ConnectClickHouse opens and pings a ClickHouse connection.
func ConnectClickHouse(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

func (s *ClickHouseSink) writeBatch(alerts []*model.Alert) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO "+ClickHouseTable)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	for _, a := range alerts {
		ts, err := time.Parse(time.RFC3339Nano, a.Timestamp)
		if err != nil {
			ts = time.Now().UTC()
		}
		err = batch.Append(
			ts,
			a.ID,
			string(a.AlertType),
			a.AttackName,
			a.Severity.String(),
			a.MitreTechnique,
			a.AnomalyScore,
			a.Source.IP,
			uint16(a.Source.Port),
			a.Destination.IP,
			uint16(a.Destination.Port),
			uint32(a.Traffic.PacketSize),
			a.Traffic.PacketRate,
			a.Traffic.ByteRate,
			a.Traffic.TCPFlags,
			a.Traffic.FlowDuration,
		)
		if err != nil {
			batch.Abort()
			return fmt.Errorf("failed to append alert to batch: %w", err)
		}
	}
	return batch.Send()
}

// Close flushes pending alerts and closes the connection.
func (s *ClickHouseSink) Close() error {
	s.stop()
	return s.conn.Close()
}
