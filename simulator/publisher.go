package simulator

import (
	"context"
	"sync"
	"time"

	"github.com/OlexDemOn/IoT-app/data-simulator/config"
	"github.com/rs/zerolog/log"
)

// Publisher sends one value to a topic. Implementations log their own
// failures; a failing machine must not block the others.
type Publisher interface {
	Publish(ctx context.Context, machine, topic string, value float64)
}

// Loop draws new values for every machine and publishes them each interval.
type Loop struct {
	registry  *config.Registry
	engine    *Engine
	publisher Publisher
	interval  time.Duration
}

func NewLoop(registry *config.Registry, engine *Engine, publisher Publisher, interval time.Duration) *Loop {
	return &Loop{
		registry:  registry,
		engine:    engine,
		publisher: publisher,
		interval:  interval,
	}
}

// Run publishes one cycle immediately and then once per interval until ctx
// is done.
func (l *Loop) Run(ctx context.Context) {
	t := time.NewTicker(l.interval)
	defer t.Stop()
	log.Info().Msgf("Publish loop started with interval %s", l.interval)
	for {
		l.Cycle(ctx)
		select {
		case <-t.C:
		case <-ctx.Done():
			log.Info().Msg("Publish loop stopped")
			return
		}
	}
}

// Cycle publishes one set of values for all machines. Machines publish in
// parallel so a slow connection only delays its own values.
func (l *Loop) Cycle(ctx context.Context) {
	var wg sync.WaitGroup
	for _, m := range l.registry.Machines() {
		wg.Add(1)
		go func(m config.MachineDefinition) {
			defer wg.Done()
			l.publishMachine(ctx, m)
		}(m)
	}
	wg.Wait()
}

func (l *Loop) publishMachine(ctx context.Context, m config.MachineDefinition) {
	values := l.engine.Next(m.Name)
	if len(values) == 0 {
		return
	}
	for _, spec := range m.Parameters {
		value, ok := values[spec.Parameter]
		if !ok {
			continue
		}
		l.publisher.Publish(ctx, m.Name, spec.Topic, value)
	}
}
