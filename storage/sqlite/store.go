// Package sqlite provides a SQLite-backed telemetry time series.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/OlexDemOn/IoT-app/data-simulator/events"
	"github.com/OlexDemOn/IoT-app/data-simulator/storage"
	"github.com/OlexDemOn/IoT-app/data-simulator/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

var _ storage.TimeSeries = (*Store)(nil)

// Store persists telemetry records in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite telemetry store and creates the schema if needed.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Append inserts one telemetry record.
func (s *Store) Append(ctx context.Context, rec events.TelemetryRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if rec.Machine == "" || rec.Topic == "" {
		return fmt.Errorf("machine and topic are required")
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO machine_data (machine_name, topic, value, unit, timestamp)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.Machine,
		rec.Topic,
		rec.Value,
		rec.Unit,
		toMillis(ts),
	)
	if err != nil {
		return fmt.Errorf("insert machine data: %w", err)
	}
	return nil
}

// Query returns the records of machine since the given instant, oldest first.
func (s *Store) Query(ctx context.Context, machine string, since time.Time) ([]events.TelemetryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT topic, value, unit, timestamp
		   FROM machine_data
		  WHERE machine_name = ? AND timestamp >= ?
		  ORDER BY timestamp ASC, id ASC`,
		machine,
		toMillis(since),
	)
	if err != nil {
		return nil, fmt.Errorf("query machine data: %w", err)
	}
	defer rows.Close()

	records := []events.TelemetryRecord{}
	for rows.Next() {
		var (
			rec   events.TelemetryRecord
			value sql.NullFloat64
			ts    int64
		)
		if err := rows.Scan(&rec.Topic, &value, &rec.Unit, &ts); err != nil {
			return nil, fmt.Errorf("scan machine data: %w", err)
		}
		rec.Machine = machine
		rec.Value = value.Float64
		rec.Timestamp = fromMillis(ts)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate machine data: %w", err)
	}
	return records, nil
}
