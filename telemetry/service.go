// Package telemetry answers queries over live and historical machine data
// and generates past data on demand.
package telemetry

import (
	"context"
	"fmt"
	"math"
	"time"
	"unicode"

	"github.com/OlexDemOn/IoT-app/data-simulator/config"
	"github.com/OlexDemOn/IoT-app/data-simulator/errors"
	"github.com/OlexDemOn/IoT-app/data-simulator/events"
	"github.com/OlexDemOn/IoT-app/data-simulator/ingest"
	"github.com/OlexDemOn/IoT-app/data-simulator/metric"
	"github.com/OlexDemOn/IoT-app/data-simulator/simulator"
	"github.com/OlexDemOn/IoT-app/data-simulator/snapshot"
	"github.com/OlexDemOn/IoT-app/data-simulator/storage"
	"github.com/rs/zerolog/log"
)

const (
	component = "telemetry"

	// DefaultLookbackMinutes of a history query without explicit lookback
	DefaultLookbackMinutes = 5
	// DefaultIntervalSeconds between generated past data points
	DefaultIntervalSeconds = 60
	// MaxBackfillPoints bounds the time points of one backfill request
	MaxBackfillPoints = 100_000
	// MaxLookbackMinutes bounds history queries to ten years
	MaxLookbackMinutes = 10 * 365 * 24 * 60
	// MaxIntervalSeconds is the largest interval representable as a time.Duration
	MaxIntervalSeconds = math.MaxInt64 / int64(time.Second)
)

// TopicHistory of one topic, ordered by ascending timestamp
type TopicHistory struct {
	Timestamps []time.Time `json:"timestamps"`
	Values     []float64   `json:"values"`
	Unit       string      `json:"unit"`
}

// Service wires the snapshot, the time series, the simulator and the
// ingestion pipeline together for the query API.
type Service struct {
	registry     *config.Registry
	snapshot     *snapshot.Store
	store        storage.TimeSeries
	engine       *simulator.Engine
	pipeline     *ingest.Pipeline
	metrics      *metric.Metrics
	queryTimeout time.Duration
	now          func() time.Time
}

func NewService(
	registry *config.Registry,
	snap *snapshot.Store,
	store storage.TimeSeries,
	engine *simulator.Engine,
	pipeline *ingest.Pipeline,
	metrics *metric.Metrics,
	queryTimeout time.Duration,
) *Service {
	return &Service{
		registry:     registry,
		snapshot:     snap,
		store:        store,
		engine:       engine,
		pipeline:     pipeline,
		metrics:      metrics,
		queryTimeout: queryTimeout,
		now:          time.Now,
	}
}

// ListMachines returns every machine with the last known value of each
// parameter; parameters without data have a null value.
func (s *Service) ListMachines() []snapshot.MachineView {
	return s.snapshot.List()
}

// ValidMachineName accepts non-empty names made of letters and digits only.
func ValidMachineName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// MachineHistory returns the stored values of a machine from the last
// lookbackMinutes, grouped by topic. An unknown machine yields an empty
// result.
func (s *Service) MachineHistory(ctx context.Context, machine string, lookbackMinutes int) (map[string]*TopicHistory, error) {
	if !ValidMachineName(machine) {
		return nil, errors.Invalid(component, "MachineHistory", "Invalid machine name")
	}
	if lookbackMinutes <= 0 || lookbackMinutes > MaxLookbackMinutes {
		return nil, errors.Invalid(component, "MachineHistory", "Invalid lookback_minutes value")
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	since := s.now().UTC().Add(-time.Duration(lookbackMinutes) * time.Minute)
	records, err := s.store.Query(ctx, machine, since)
	if err != nil {
		log.Error().Msgf("Error fetching machine data: %s", err)
		return nil, errors.WrapTransient(err, component, "MachineHistory", "query machine data")
	}

	result := map[string]*TopicHistory{}
	for _, rec := range records {
		h, ok := result[rec.Topic]
		if !ok {
			h = &TopicHistory{Timestamps: []time.Time{}, Values: []float64{}, Unit: rec.Unit}
			result[rec.Topic] = h
		}
		h.Timestamps = append(h.Timestamps, rec.Timestamp)
		h.Values = append(h.Values, rec.Value)
	}
	return result, nil
}

// GeneratePastData simulates machine from start through end (inclusive) in
// steps of intervalSeconds and ingests every value with its synthetic
// timestamp. It runs synchronously and returns all generated records.
func (s *Service) GeneratePastData(ctx context.Context, machine string, start, end time.Time, intervalSeconds int) ([]events.TelemetryRecord, error) {
	if machine == "" {
		return nil, errors.Invalid(component, "GeneratePastData", "Missing required parameters")
	}
	if !start.Before(end) {
		return nil, errors.Invalid(component, "GeneratePastData", "Start date must be before end date")
	}
	if intervalSeconds <= 0 {
		return nil, errors.Invalid(component, "GeneratePastData", "interval_seconds must be positive")
	}
	if int64(intervalSeconds) > MaxIntervalSeconds {
		return nil, errors.Invalid(component, "GeneratePastData",
			fmt.Sprintf("interval_seconds must be at most %d", MaxIntervalSeconds))
	}
	def, ok := s.registry.Machine(machine)
	if !ok {
		return nil, &errors.ClassifiedError{
			Class:     errors.ErrorInvalid,
			Err:       errors.ErrUnknownMachine,
			Message:   fmt.Sprintf("Unknown machine '%s'", machine),
			Component: component,
			Operation: "GeneratePastData",
		}
	}
	interval := time.Duration(intervalSeconds) * time.Second
	if points := end.Sub(start)/interval + 1; points > MaxBackfillPoints {
		return nil, errors.Invalid(component, "GeneratePastData",
			fmt.Sprintf("Requested range has %d points, at most %d are allowed", points, MaxBackfillPoints))
	}

	generated := []events.TelemetryRecord{}
	for ts := start; !ts.After(end); ts = ts.Add(interval) {
		if err := ctx.Err(); err != nil {
			return nil, errors.WrapTransient(err, component, "GeneratePastData", "generate past data")
		}
		values := s.engine.Next(machine)
		for _, spec := range def.Parameters {
			value, ok := values[spec.Parameter]
			if !ok {
				continue
			}
			rec, err := s.pipeline.Ingest(ctx, machine, spec.Topic, events.Numeric(value), spec.Unit, ts)
			if err != nil {
				log.Error().Msgf("Skipping generated value of '%s' on '%s': %s", spec.Parameter, spec.Topic, err)
				continue
			}
			rec.Parameter = spec.Parameter
			generated = append(generated, rec)
		}
	}
	s.metrics.BackfillRecords.WithLabelValues(machine).Add(float64(len(generated)))
	log.Info().Msgf("Generated past data for %s from %s to %s", machine, start, end)
	return generated, nil
}
