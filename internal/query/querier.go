package query

import (
	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/model"
	"Go2NetGuard/internal/sink"
	"Go2NetGuard/internal/store"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// Querier answers reporting queries over alerts stored in ClickHouse.
type Querier interface {
	Summary(ctx context.Context, since time.Time) (*model.AlertSummary, error)
	TopSources(ctx context.Context, since time.Time, limit int) ([]SourceCount, error)
}

// SourceCount is the number of alerts raised for one source address.
type SourceCount struct {
	SrcIP  string `json:"src_ip"`
	Alerts uint64 `json:"alerts"`
}

// clickhouseQuerier implements the Querier interface for ClickHouse.
type clickhouseQuerier struct {
	conn driver.Conn
}

// NewClickHouseQuerier creates a new querier for ClickHouse.
func NewClickHouseQuerier(cfg config.ClickHouseConfig) (Querier, error) {
	conn, err := sink.ConnectClickHouse(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	return &clickhouseQuerier{conn: conn}, nil
}

// whereSince returns the time filter and its arguments. A zero since
// matches everything.
func whereSince(since time.Time) (string, []any) {
	if since.IsZero() {
		return "", nil
	}
	return " WHERE Timestamp >= ?", []any{since}
}

// SummaryQuery builds the grouping query used by Summary.
func SummaryQuery(since time.Time) (string, []any) {
	where, args := whereSince(since)
	var b strings.Builder
	b.WriteString("SELECT Severity, AlertType, count() AS Alerts FROM ")
	b.WriteString(sink.ClickHouseTable)
	b.WriteString(where)
	b.WriteString(" GROUP BY Severity, AlertType")
	return b.String(), args
}

// Summary counts alerts by severity and type.
func (q *clickhouseQuerier) Summary(ctx context.Context, since time.Time) (*model.AlertSummary, error) {
	query, args := SummaryQuery(since)
	rows, err := q.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute summary query: %w", err)
	}
	defer rows.Close()

	summary := store.NewSummary()
	for rows.Next() {
		var severity, alertType string
		var n uint64
		if err := rows.Scan(&severity, &alertType, &n); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		summary.Total += int(n)
		summary.BySeverity[severity] += int(n)
		summary.ByType[alertType] += int(n)
	}
	return summary, rows.Err()
}

// TopSourcesQuery builds the query used by TopSources.
func TopSourcesQuery(since time.Time, limit int) (string, []any) {
	where, args := whereSince(since)
	query := fmt.Sprintf("SELECT SrcIP, count() AS Alerts FROM %s%s GROUP BY SrcIP ORDER BY Alerts DESC LIMIT ?",
		sink.ClickHouseTable, where)
	return query, append(args, limit)
}

// TopSources returns the sources with the most alerts.
func (q *clickhouseQuerier) TopSources(ctx context.Context, since time.Time, limit int) ([]SourceCount, error) {
	if limit <= 0 {
		limit = 10
	}
	query, args := TopSourcesQuery(since, limit)
	rows, err := q.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute top sources query: %w", err)
	}
	defer rows.Close()

	var result []SourceCount
	for rows.Next() {
		var sc SourceCount
		if err := rows.Scan(&sc.SrcIP, &sc.Alerts); err != nil {
			return nil, fmt.Errorf("failed to scan top sources row: %w", err)
		}
		result = append(result, sc)
	}
	return result, rows.Err()
}
