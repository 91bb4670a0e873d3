// Package ingest is the single write path into the snapshot and the time
// series, shared by broker deliveries and backfills.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/OlexDemOn/IoT-app/data-simulator/config"
	"github.com/OlexDemOn/IoT-app/data-simulator/errors"
	"github.com/OlexDemOn/IoT-app/data-simulator/events"
	"github.com/OlexDemOn/IoT-app/data-simulator/metric"
	"github.com/OlexDemOn/IoT-app/data-simulator/snapshot"
	"github.com/OlexDemOn/IoT-app/data-simulator/storage"
	"github.com/rs/zerolog/log"
)

// Pipeline updates the snapshot first and then appends to the time series.
// The snapshot may run ahead of the store: a failed or slow write is logged
// and never rolls the snapshot back.
type Pipeline struct {
	registry     *config.Registry
	snapshot     *snapshot.Store
	store        storage.TimeSeries
	metrics      *metric.Metrics
	writeTimeout time.Duration
	// unit of every configured topic
	units map[string]string
}

func NewPipeline(registry *config.Registry, snap *snapshot.Store, store storage.TimeSeries, metrics *metric.Metrics, writeTimeout time.Duration) *Pipeline {
	return &Pipeline{
		registry:     registry,
		snapshot:     snap,
		store:        store,
		metrics:      metrics,
		writeTimeout: writeTimeout,
		units:        registry.TopicUnits(),
	}
}

// Ingest records one value of machine/topic at ts. Null or empty values are
// stored as 0.0. The returned record is what was (or would have been)
// persisted; an error means the value was not accepted at all.
func (p *Pipeline) Ingest(ctx context.Context, machine, topic string, value events.Value, unit string, ts time.Time) (events.TelemetryRecord, error) {
	if !p.registry.HasTopic(machine, topic) {
		return events.TelemetryRecord{}, fmt.Errorf("%w: '%s' is not configured for machine '%s'", errors.ErrInvalidTopic, topic, machine)
	}
	if value.Empty() {
		log.Warn().Msgf("Empty value detected for topic '%s' in machine '%s'. Using default value 0.0.", topic, machine)
		value = events.Numeric(0)
	}

	if err := p.snapshot.Set(machine, topic, value, unit); err != nil {
		return events.TelemetryRecord{}, err
	}
	p.metrics.RecordsIngested.WithLabelValues(machine).Inc()

	rec := events.TelemetryRecord{
		Machine:   machine,
		Topic:     topic,
		Unit:      unit,
		Timestamp: ts.UTC(),
	}
	f, ok := value.Float()
	if !ok {
		log.Warn().Msgf("Non-numeric value '%s' on topic '%s' kept in snapshot only", value, topic)
		return rec, nil
	}
	rec.Value = f
	p.persist(ctx, rec)
	return rec, nil
}

func (p *Pipeline) persist(ctx context.Context, rec events.TelemetryRecord) {
	ctx, cancel := context.WithTimeout(ctx, p.writeTimeout)
	defer cancel()

	start := time.Now()
	err := p.store.Append(ctx, rec)
	p.metrics.StoreWriteTime.Observe(time.Since(start).Seconds())
	if err != nil {
		p.metrics.StoreErrors.WithLabelValues(rec.Machine).Inc()
		log.Error().Msgf("Database error for '%s' on '%s': %s", rec.Machine, rec.Topic, err)
	}
}

// Handle resolves the machine owning the topic of a broker message and
// ingests it with the time it was received. Unmapped topics are dropped.
func (p *Pipeline) Handle(ctx context.Context, msg events.Message) {
	machine, _, ok := p.registry.ResolveTopic(msg.Topic)
	if !ok {
		p.metrics.MessagesDropped.WithLabelValues("unmapped").Inc()
		log.Warn().Msgf("Dropping message on unmapped topic '%s'", msg.Topic)
		return
	}
	ts := msg.ReceivedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	if _, err := p.Ingest(ctx, machine, msg.Topic, msg.Value, p.units[msg.Topic], ts); err != nil {
		log.Error().Msgf("Failed to ingest message on '%s': %s", msg.Topic, err)
	}
}

// Run drains the message queue until it is closed or ctx is done. It is the
// only consumer of the queue, so messages of a topic are applied in the
// order they were delivered.
func (p *Pipeline) Run(ctx context.Context, messages <-chan events.Message) {
	log.Info().Msg("Ingestion pipeline started")
	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				log.Info().Msg("Message queue closed, ingestion pipeline stopped")
				return
			}
			p.Handle(ctx, msg)
		case <-ctx.Done():
			log.Info().Msg("Ingestion pipeline stopped")
			return
		}
	}
}
