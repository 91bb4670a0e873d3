// Package storage defines the durable time series of telemetry records.
package storage

import (
	"context"
	"time"

	"github.com/OlexDemOn/IoT-app/data-simulator/events"
)

// TimeSeries is an append-only store of telemetry records.
type TimeSeries interface {
	// Append persists one record. Records are immutable once written.
	Append(ctx context.Context, rec events.TelemetryRecord) error
	// Query returns the records of machine with timestamp >= since, ordered
	// by ascending timestamp.
	Query(ctx context.Context, machine string, since time.Time) ([]events.TelemetryRecord, error)
}
