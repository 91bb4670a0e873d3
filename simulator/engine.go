// Package simulator generates smooth, bounded machine readings and publishes
// them periodically.
package simulator

import (
	"math"
	"math/rand"
	"sync"

	"github.com/OlexDemOn/IoT-app/data-simulator/config"
	"github.com/rs/zerolog/log"
)

const (
	// length of the smoothing window
	HistorySize = 5
	// maximal relative change of a value per step
	MaxRelativeChange = 0.07
)

// Perturbation returns a relative change in [-MaxRelativeChange, MaxRelativeChange].
type Perturbation func() float64

func uniformPerturbation() float64 {
	return (rand.Float64()*2 - 1) * MaxRelativeChange
}

type parameterState struct {
	current float64
	history []float64
}

type machineState struct {
	// serializes the live publish loop and backfills of the same machine type
	mu     sync.Mutex
	params map[string]*parameterState
}

// Engine keeps the simulation state per (machine type, parameter).
//
// The raw trajectory (current) advances by the clamped candidate while the
// emitted value is the smoothed history. The two drift apart over time; that
// lag is part of the observable output and is kept on purpose.
type Engine struct {
	registry *config.Registry
	perturb  Perturbation

	mu       sync.Mutex
	machines map[string]*machineState
}

type Option func(*Engine)

// WithPerturbation replaces the uniform random source.
func WithPerturbation(p Perturbation) Option {
	return func(e *Engine) { e.perturb = p }
}

func NewEngine(registry *config.Registry, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		perturb:  uniformPerturbation,
		machines: map[string]*machineState{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) machine(machineType string) *machineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	ms, ok := e.machines[machineType]
	if !ok {
		ms = &machineState{params: map[string]*parameterState{}}
		e.machines[machineType] = ms
	}
	return ms
}

// Next advances every simulated parameter of machineType by one step and
// returns parameter -> emitted value. An empty map means there is nothing to
// publish this cycle.
func (e *Engine) Next(machineType string) map[string]float64 {
	def, known := e.registry.Machine(machineType)
	ranges, ok := e.registry.Ranges(machineType)
	if !known || !ok {
		log.Warn().Msgf("Machine type '%s' is not defined in the parameter ranges. Skipping.", machineType)
		return map[string]float64{}
	}

	ms := e.machine(machineType)
	ms.mu.Lock()
	defer ms.mu.Unlock()

	values := make(map[string]float64, len(def.Parameters))
	for _, spec := range def.Parameters {
		rng, ok := ranges[spec.Parameter]
		if !ok {
			log.Debug().Msgf("Parameter '%s' of '%s' has no range, not simulated", spec.Parameter, machineType)
			continue
		}
		ps, ok := ms.params[spec.Parameter]
		if !ok {
			ps = seed(rng, def.StartingValues, spec.Parameter)
			ms.params[spec.Parameter] = ps
		}
		values[spec.Parameter] = e.step(ps, rng)
	}
	return values
}

func seed(rng config.Range, starting map[string]float64, parameter string) *parameterState {
	start, ok := starting[parameter]
	if !ok {
		start = rng.Midpoint()
	}
	start = rng.Clamp(start)
	history := make([]float64, HistorySize)
	for i := range history {
		history[i] = start
	}
	return &parameterState{current: start, history: history}
}

func (e *Engine) step(ps *parameterState, rng config.Range) float64 {
	current := rng.Clamp(ps.current)
	delta := e.perturb() * current
	candidate := rng.Clamp(current + delta)

	if len(ps.history) < HistorySize {
		ps.history = append(ps.history, candidate)
	} else {
		copy(ps.history, ps.history[1:])
		ps.history[HistorySize-1] = candidate
	}
	ps.current = candidate

	smoothed, ok := WeightedAverage(ps.history)
	if !ok {
		return rng.Midpoint()
	}
	return rng.Clamp(Round2(smoothed))
}

// WeightedAverage of a window with weights rising linearly from 1 (oldest)
// to 2 (newest): w_i = 1 + i/(n-1). A single entry has weight 1. Non-finite
// entries are ignored; ok is false when nothing is left.
func WeightedAverage(history []float64) (avg float64, ok bool) {
	valid := make([]float64, 0, len(history))
	for _, h := range history {
		if !math.IsNaN(h) && !math.IsInf(h, 0) {
			valid = append(valid, h)
		}
	}
	n := len(valid)
	if n == 0 {
		return 0, false
	}
	if n == 1 {
		return valid[0], true
	}
	var sum, weights float64
	for i, v := range valid {
		w := 1 + float64(i)/float64(n-1)
		sum += w * v
		weights += w
	}
	return sum / weights, true
}

// Round2 rounds half away from zero to 2 decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
