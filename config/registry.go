package config

import (
	"maps"
	"slices"

	"github.com/rs/zerolog/log"
)

// Registry is the read-only view of the machine configuration used while the
// simulator runs. Build a new one to apply configuration changes.
type Registry struct {
	machines   []MachineDefinition
	byName     map[string]int
	ranges     map[string]map[string]Range
	topicUnits map[string]string
}

// NewRegistry validates the document and builds the lookup tables.
// Malformed entries are logged and skipped; the rest of the fleet is kept.
func NewRegistry(doc *Document) *Registry {
	r := &Registry{
		byName:     map[string]int{},
		ranges:     map[string]map[string]Range{},
		topicUnits: map[string]string{},
	}
	for _, m := range doc.Machines {
		if m.Name == "" {
			log.Error().Msg("Skipping machine definition without a name")
			continue
		}
		if _, dup := r.byName[m.Name]; dup {
			log.Error().Msgf("Skipping duplicate machine definition '%s'", m.Name)
			continue
		}

		def := MachineDefinition{Name: m.Name, ID: m.ID, StartingValues: maps.Clone(m.StartingValues)}
		ranges := map[string]Range{}
		topics := map[string]bool{}
		for _, p := range m.Parameters {
			if p.Parameter == "" || p.Topic == "" {
				log.Error().Msgf("Skipping parameter without name or topic in machine '%s'", m.Name)
				continue
			}
			if topics[p.Topic] {
				log.Error().Msgf("Skipping parameter '%s' of machine '%s': topic '%s' already used", p.Parameter, m.Name, p.Topic)
				continue
			}
			topics[p.Topic] = true
			def.Parameters = append(def.Parameters, p)
			if _, seen := r.topicUnits[p.Topic]; !seen {
				r.topicUnits[p.Topic] = p.Unit
			}

			rng, ok := doc.Parameters[p.Parameter]
			if p.Range != nil {
				rng, ok = *p.Range, true
			}
			switch {
			case !ok:
				log.Warn().Msgf("Parameter '%s' of machine '%s' has no range and will not be simulated", p.Parameter, m.Name)
			case !rng.Valid():
				log.Warn().Msgf("Parameter '%s' of machine '%s' has an inverted range %v and will not be simulated", p.Parameter, m.Name, rng)
			default:
				ranges[p.Parameter] = rng
			}
		}

		r.byName[m.Name] = len(r.machines)
		r.machines = append(r.machines, def)
		r.ranges[m.Name] = ranges
	}
	return r
}

// Machines returns all machine definitions in configuration order.
func (r *Registry) Machines() []MachineDefinition {
	return slices.Clone(r.machines)
}

// Machine looks up a machine definition by name.
func (r *Registry) Machine(name string) (MachineDefinition, bool) {
	i, ok := r.byName[name]
	if !ok {
		return MachineDefinition{}, false
	}
	return r.machines[i], true
}

// Ranges returns the parameter range table of a machine type. The second
// result is false when the machine type is not in the table.
func (r *Registry) Ranges(machine string) (map[string]Range, bool) {
	ranges, ok := r.ranges[machine]
	return ranges, ok
}

// ResolveTopic finds the machine and parameter that own a topic. Topics are
// expected to be unique across the fleet; the first match wins.
func (r *Registry) ResolveTopic(topic string) (string, ParameterSpec, bool) {
	for _, m := range r.machines {
		for _, p := range m.Parameters {
			if p.Topic == topic {
				return m.Name, p, true
			}
		}
	}
	return "", ParameterSpec{}, false
}

// HasTopic reports whether machine defines topic.
func (r *Registry) HasTopic(machine, topic string) bool {
	m, ok := r.Machine(machine)
	if !ok {
		return false
	}
	return slices.ContainsFunc(m.Parameters, func(p ParameterSpec) bool { return p.Topic == topic })
}

// TopicUnits maps every configured topic to its unit.
func (r *Registry) TopicUnits() map[string]string {
	return maps.Clone(r.topicUnits)
}
