package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"

	"github.com/OlexDemOn/IoT-app/data-simulator/errors"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// CurrentVersion of the machine document format
const CurrentVersion = 1

// Range of a simulated parameter, written as `[low, high]`
type Range struct {
	Low  float64 `mapstructure:"low"`
	High float64 `mapstructure:"high"`
}

func (r Range) Valid() bool { return r.Low <= r.High }

func (r Range) Midpoint() float64 { return (r.Low + r.High) / 2 }

// Clamp limits v to [Low, High].
func (r Range) Clamp(v float64) float64 {
	return max(r.Low, min(v, r.High))
}

func (r Range) MarshalYAML() (any, error) {
	return []float64{r.Low, r.High}, nil
}

// ParameterSpec is one measurable quantity of a machine
type ParameterSpec struct {
	Parameter string `mapstructure:"parameter" yaml:"parameter"`
	Topic     string `mapstructure:"topic" yaml:"topic"`
	Unit      string `mapstructure:"unit" yaml:"unit"`
	// overrides the global range of Parameter for this machine
	Range *Range `mapstructure:"range" yaml:"range,omitempty"`
}

// MachineDefinition of one simulated machine
type MachineDefinition struct {
	Name       string          `mapstructure:"name" yaml:"name"`
	ID         int             `mapstructure:"id" yaml:"id"`
	Parameters []ParameterSpec `mapstructure:"parameters" yaml:"parameters"`
	// initial simulator values, parameter -> value
	StartingValues map[string]float64 `mapstructure:"starting_values" yaml:"starting_values,omitempty"`
}

// Document is the versioned, persisted machine configuration.
//
// example:
//
//	version: 1
//	parameters:
//	  DrillingSpeed: [200, 6000]
//	machines:
//	  - name: DrillingMachine
//	    id: 1
//	    parameters:
//	      - {parameter: DrillingSpeed, topic: ZG/drilling/PLC/1/speed, unit: rpm}
type Document struct {
	Version    int                 `mapstructure:"version" yaml:"version"`
	Parameters map[string]Range    `mapstructure:"parameters" yaml:"parameters"`
	Machines   []MachineDefinition `mapstructure:"machines" yaml:"machines"`
}

// rangeHook decodes `[low, high]` sequences into a Range.
func rangeHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(Range{}) || from.Kind() != reflect.Slice {
		return data, nil
	}
	items, ok := data.([]any)
	if !ok || len(items) != 2 {
		return nil, fmt.Errorf("range must be a [low, high] pair, got %v", data)
	}
	var bounds [2]float64
	for i, item := range items {
		switch n := item.(type) {
		case int:
			bounds[i] = float64(n)
		case int64:
			bounds[i] = float64(n)
		case float64:
			bounds[i] = n
		default:
			return nil, fmt.Errorf("range bound %v is not a number", item)
		}
	}
	return Range{Low: bounds[0], High: bounds[1]}, nil
}

// Decode converts a generic map (from YAML or JSON) into a Document.
func Decode(raw map[string]any) (*Document, error) {
	var doc Document
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       rangeHook,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &doc,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("%w: decode machine document: %w", errors.ErrInvalidConfig, err)
	}
	if doc.Version == 0 {
		doc.Version = CurrentVersion
	}
	if doc.Version != CurrentVersion {
		return nil, fmt.Errorf("%w: unsupported machine document version %d", errors.ErrInvalidConfig, doc.Version)
	}
	if doc.Parameters == nil {
		doc.Parameters = map[string]Range{}
	}
	return &doc, nil
}

// Load reads a machine document. JSON files are accepted too since JSON is
// valid YAML.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read machine document: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parse machine document %s: %w", errors.ErrInvalidConfig, path, err)
	}
	return Decode(raw)
}

// Save writes the document to path, replacing the previous file atomically.
func (d *Document) Save(path string) error {
	d.Version = CurrentVersion
	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode machine document: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".machines-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace machine document: %w", err)
	}
	return nil
}

func (d *Document) machineIndex(name string) int {
	return slices.IndexFunc(d.Machines, func(m MachineDefinition) bool { return m.Name == name })
}

// TopicFor derives the topic of a parameter: ZG/<first 3 letters of machine>/<id>/<PARAMETER>.
func TopicFor(machine string, id int, parameter string) string {
	prefix := []rune(machine)
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	return fmt.Sprintf("ZG/%s/%d/%s", strings.ToUpper(string(prefix)), id, strings.ToUpper(parameter))
}

// AddMachine appends a machine with the next free id and generated topics.
func (d *Document) AddMachine(name string, params []ParameterSpec) (MachineDefinition, error) {
	if strings.TrimSpace(name) == "" {
		return MachineDefinition{}, fmt.Errorf("%w: machine name is required", errors.ErrInvalidConfig)
	}
	if d.machineIndex(name) >= 0 {
		return MachineDefinition{}, fmt.Errorf("%w: machine %q already exists", errors.ErrInvalidConfig, name)
	}
	id := 0
	for _, m := range d.Machines {
		id = max(id, m.ID)
	}
	id++
	m := MachineDefinition{Name: name, ID: id}
	for _, p := range params {
		p.Topic = TopicFor(name, id, p.Parameter)
		m.Parameters = append(m.Parameters, p)
	}
	d.Machines = append(d.Machines, m)
	return m, nil
}

// RemoveMachine deletes a machine; it reports whether it existed.
func (d *Document) RemoveMachine(name string) bool {
	i := d.machineIndex(name)
	if i < 0 {
		return false
	}
	d.Machines = slices.Delete(d.Machines, i, i+1)
	return true
}

// AddParameter defines a global parameter range. An existing range is kept.
func (d *Document) AddParameter(name string, r Range) error {
	if !r.Valid() {
		return fmt.Errorf("%w: range of %q: low %v above high %v", errors.ErrInvalidConfig, name, r.Low, r.High)
	}
	if d.Parameters == nil {
		d.Parameters = map[string]Range{}
	}
	if _, ok := d.Parameters[name]; !ok {
		d.Parameters[name] = r
	}
	return nil
}

// AddParameterToMachine attaches a global parameter to a machine.
func (d *Document) AddParameterToMachine(machine, parameter, unit string) error {
	i := d.machineIndex(machine)
	if i < 0 {
		return fmt.Errorf("%w: %q", errors.ErrUnknownMachine, machine)
	}
	if _, ok := d.Parameters[parameter]; !ok {
		return fmt.Errorf("%w: %q", errors.ErrMissingRange, parameter)
	}
	m := &d.Machines[i]
	if slices.ContainsFunc(m.Parameters, func(p ParameterSpec) bool { return p.Parameter == parameter }) {
		return nil
	}
	m.Parameters = append(m.Parameters, ParameterSpec{
		Parameter: parameter,
		Topic:     TopicFor(m.Name, m.ID, parameter),
		Unit:      unit,
	})
	return nil
}

// RemoveParameter drops a parameter from the global table and every machine.
func (d *Document) RemoveParameter(name string) {
	delete(d.Parameters, name)
	for i := range d.Machines {
		d.Machines[i].Parameters = slices.DeleteFunc(d.Machines[i].Parameters, func(p ParameterSpec) bool {
			return p.Parameter == name
		})
		delete(d.Machines[i].StartingValues, name)
	}
}
