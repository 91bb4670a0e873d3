// Package snapshot holds the last known value of every machine topic.
package snapshot

import (
	"fmt"
	"sync"

	"github.com/OlexDemOn/IoT-app/data-simulator/config"
	"github.com/OlexDemOn/IoT-app/data-simulator/events"
)

// Entry of one topic; a null Value means nothing has been received yet
type Entry struct {
	Value events.Value `json:"value"`
	Unit  string       `json:"unit"`
}

// ParameterView is one row of the live machine listing
type ParameterView struct {
	Parameter string       `json:"parameter"`
	Value     events.Value `json:"value"`
	Unit      string       `json:"unit"`
}

// MachineView is one machine of the live listing
type MachineView struct {
	Name       string          `json:"name"`
	Parameters []ParameterView `json:"parameters"`
}

// Store is the single shared, lock-guarded view of the last value per
// machine and topic. Only configured topics ever appear as keys.
type Store struct {
	registry *config.Registry

	mu      sync.RWMutex
	entries map[string]map[string]Entry
}

// New creates a store with a null entry for every configured topic.
func New(registry *config.Registry) *Store {
	s := &Store{
		registry: registry,
		entries:  map[string]map[string]Entry{},
	}
	for _, m := range registry.Machines() {
		topics := make(map[string]Entry, len(m.Parameters))
		for _, p := range m.Parameters {
			topics[p.Topic] = Entry{Unit: p.Unit}
		}
		s.entries[m.Name] = topics
	}
	return s
}

// Set replaces the entry of a topic. Unknown machine/topic pairs are
// rejected so the store never grows beyond the configuration.
func (s *Store) Set(machine, topic string, value events.Value, unit string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	topics, ok := s.entries[machine]
	if !ok {
		return fmt.Errorf("machine %q not in snapshot", machine)
	}
	if _, ok := topics[topic]; !ok {
		return fmt.Errorf("topic %q not configured for machine %q", topic, machine)
	}
	topics[topic] = Entry{Value: value, Unit: unit}
	return nil
}

// Get returns the entry of a topic.
func (s *Store) Get(machine, topic string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[machine][topic]
	return e, ok
}

// List returns every machine with the current value of its parameters, in
// configuration order. The whole listing is read under one lock so it never
// mixes states from different points in time.
func (s *Store) List() []MachineView {
	machines := s.registry.Machines()
	result := make([]MachineView, 0, len(machines))

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range machines {
		view := MachineView{Name: m.Name, Parameters: []ParameterView{}}
		topics := s.entries[m.Name]
		for _, p := range m.Parameters {
			e, ok := topics[p.Topic]
			if !ok {
				continue
			}
			view.Parameters = append(view.Parameters, ParameterView{
				Parameter: p.Parameter,
				Value:     e.Value,
				Unit:      e.Unit,
			})
		}
		result = append(result, view)
	}
	return result
}
