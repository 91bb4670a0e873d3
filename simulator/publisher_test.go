package simulator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/OlexDemOn/IoT-app/data-simulator/config"
	"github.com/stretchr/testify/assert"
)

type published struct {
	machine, topic string
	value          float64
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *recordingPublisher) Publish(_ context.Context, machine, topic string, value float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{machine, topic, value})
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs)
}

func TestCyclePublishesEverySimulatedParameter(t *testing.T) {
	// arrange
	registry := config.NewRegistry(config.Default())
	pub := &recordingPublisher{}
	loop := NewLoop(registry, NewEngine(registry, WithPerturbation(func() float64 { return 0 })), pub, time.Hour)

	// act
	loop.Cycle(context.Background())

	// assert
	// 4 + 4 + 4 + 3 parameters
	assert.Len(t, pub.msgs, 15)
	assert.Contains(t, pub.msgs, published{"DrillingMachine", "ZG/drilling/PLC/1/speed", 3100})
}

// stallingPublisher never completes publishes of one machine before ctx ends
type stallingPublisher struct {
	recordingPublisher
	stalled string
}

func (p *stallingPublisher) Publish(ctx context.Context, machine, topic string, value float64) {
	if machine == p.stalled {
		<-ctx.Done()
		return
	}
	p.recordingPublisher.Publish(ctx, machine, topic, value)
}

func TestCycleStalledMachineDoesNotBlockOthers(t *testing.T) {
	// arrange
	registry := config.NewRegistry(config.Default())
	pub := &stallingPublisher{stalled: "DrillingMachine"}
	loop := NewLoop(registry, NewEngine(registry), pub, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// act
	done := make(chan struct{})
	go func() {
		loop.Cycle(ctx)
		close(done)
	}()

	// assert
	assert.Eventually(t, func() bool { return pub.count() == 11 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cycle did not return")
	}
}

func TestCycleSkipsUnsimulatedParameters(t *testing.T) {
	pub := &recordingPublisher{}
	registry := drillingOnly()
	loop := NewLoop(registry, NewEngine(registry), pub, time.Hour)

	loop.Cycle(context.Background())

	assert.Len(t, pub.msgs, 1)
	assert.Equal(t, "ZG/drilling/PLC/1/speed", pub.msgs[0].topic)
}

func TestRunStopsOnCancel(t *testing.T) {
	registry := drillingOnly()
	pub := &recordingPublisher{}
	loop := NewLoop(registry, NewEngine(registry), pub, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return pub.count() >= 3 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish loop did not stop")
	}
}
