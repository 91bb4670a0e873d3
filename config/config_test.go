package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/OlexDemOn/IoT-app/data-simulator/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadYAML(t *testing.T) {
	// arrange
	path := filepath.Join(t.TempDir(), "machines.yaml")
	data := `
version: 1
parameters:
  DrillingSpeed: [200, 6000]
  Torque: [2.5, 40]
machines:
  - name: DrillingMachine
    id: 1
    starting_values:
      DrillingSpeed: 3100
    parameters:
      - {parameter: DrillingSpeed, topic: ZG/drilling/PLC/1/speed, unit: rpm}
      - {parameter: Torque, topic: ZG/drilling/PLC/1/torque, unit: kNm, range: [5, 10]}
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	// act
	doc, err := Load(path)

	// assert
	require.NoError(t, err)
	assert.Equal(t, Range{200, 6000}, doc.Parameters["DrillingSpeed"])
	assert.Equal(t, Range{2.5, 40}, doc.Parameters["Torque"])
	require.Len(t, doc.Machines, 1)
	m := doc.Machines[0]
	assert.Equal(t, "DrillingMachine", m.Name)
	assert.Equal(t, 3100.0, m.StartingValues["DrillingSpeed"])
	require.Len(t, m.Parameters, 2)
	require.NotNil(t, m.Parameters[1].Range)
	assert.Equal(t, Range{5, 10}, *m.Parameters[1].Range)
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "machines.json")
	data := `{"parameters": {"Power": [15, 50]}, "machines": [{"name": "SolderingMachine", "id": 2,
		"parameters": [{"parameter": "Power", "topic": "ZG/soldering/PLC/2/power", "unit": "W"}]}]}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	doc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, doc.Version)
	assert.Equal(t, Range{15, 50}, doc.Parameters["Power"])
}

func TestLoadRejectsUnknownVersion(t *testing.T) {
	_, err := Decode(map[string]any{"version": 7})
	assert.ErrorContains(t, err, "unsupported machine document version 7")
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestLoadRejectsBadRange(t *testing.T) {
	_, err := Decode(map[string]any{"parameters": map[string]any{"Torque": []any{1}}})
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestSaveRoundTrip(t *testing.T) {
	// arrange
	path := filepath.Join(t.TempDir(), "machines.yaml")
	doc := Default()
	_, err := doc.AddMachine("PaintingMachine", []ParameterSpec{{Parameter: "Pressure", Unit: "Pa"}})
	require.NoError(t, err)

	// act
	require.NoError(t, doc.Save(path))
	loaded, err := Load(path)

	// assert
	require.NoError(t, err)
	assert.Equal(t, doc.Parameters, loaded.Parameters)
	require.Len(t, loaded.Machines, 5)
	assert.Equal(t, "ZG/PAI/5/PRESSURE", loaded.Machines[4].Parameters[0].Topic)
}

func TestDocumentEditing(t *testing.T) {
	doc := Default()

	require.NoError(t, doc.AddParameter("Vibration", Range{0, 5}))
	require.NoError(t, doc.AddParameterToMachine("AssemblyMachine", "Vibration", "mm/s"))
	m := doc.Machines[3]
	assert.Equal(t, "ZG/ASS/4/VIBRATION", m.Parameters[len(m.Parameters)-1].Topic)
	assert.ErrorIs(t, doc.AddParameterToMachine("AssemblyMachine", "Unknown", ""), errors.ErrMissingRange)
	assert.ErrorIs(t, doc.AddParameterToMachine("PaintingMachine", "Vibration", ""), errors.ErrUnknownMachine)
	assert.ErrorIs(t, doc.AddParameter("Broken", Range{5, 1}), errors.ErrInvalidConfig)

	doc.RemoveParameter("BeltSpeed")
	for _, m := range doc.Machines {
		for _, p := range m.Parameters {
			assert.NotEqual(t, "BeltSpeed", p.Parameter)
		}
	}
	_, ok := doc.Parameters["BeltSpeed"]
	assert.False(t, ok)

	assert.True(t, doc.RemoveMachine("WeldingMachine"))
	assert.False(t, doc.RemoveMachine("WeldingMachine"))
	_, err := doc.AddMachine("DrillingMachine", nil)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestTopicFor(t *testing.T) {
	assert.Equal(t, "ZG/DRI/1/SPEED", TopicFor("DrillingMachine", 1, "Speed"))
	assert.Equal(t, "ZG/XY/2/POWER", TopicFor("xy", 2, "power"))
	assert.Equal(t, "ZG/ÖLP/3/DRUCK", TopicFor("Ölpumpe", 3, "Druck"))
	assert.Equal(t, "ZG/冷却机/4/FLOW", TopicFor("冷却机组", 4, "flow"))
}

func TestRegistry(t *testing.T) {
	// arrange
	doc := Default()
	doc.Machines[0].Parameters = append(doc.Machines[0].Parameters,
		ParameterSpec{Parameter: "Humidity", Topic: "ZG/drilling/PLC/1/humidity", Unit: "%"},
		ParameterSpec{Parameter: "Torque", Topic: "ZG/drilling/PLC/1/torque", Unit: "kNm"},
	)

	// act
	r := NewRegistry(doc)

	// assert
	machines := r.Machines()
	require.Len(t, machines, 4)
	assert.Equal(t, "DrillingMachine", machines[0].Name)
	// duplicate topic is dropped, parameter without range is kept but not simulated
	assert.Len(t, machines[0].Parameters, 5)
	ranges, ok := r.Ranges("DrillingMachine")
	require.True(t, ok)
	assert.Len(t, ranges, 4)
	assert.NotContains(t, ranges, "Humidity")

	_, ok = r.Ranges("Unknown")
	assert.False(t, ok)

	machine, spec, ok := r.ResolveTopic("ZG/welding/PLC/3/gas_flow")
	require.True(t, ok)
	assert.Equal(t, "WeldingMachine", machine)
	assert.Equal(t, "GasFlow", spec.Parameter)
	_, _, ok = r.ResolveTopic("ZG/unknown")
	assert.False(t, ok)

	assert.True(t, r.HasTopic("DrillingMachine", "ZG/drilling/PLC/1/speed"))
	assert.False(t, r.HasTopic("SolderingMachine", "ZG/drilling/PLC/1/speed"))
	assert.Equal(t, "L/min", r.TopicUnits()["ZG/welding/PLC/3/gas_flow"])
}

func TestParseSettings(t *testing.T) {
	t.Setenv("MQTT_SERVER_URL", "mqtt://broker:1883")
	t.Setenv("PUBLISH_INTERVAL", "2s")

	s, err := ParseSettings()
	require.NoError(t, err)
	assert.Equal(t, "mqtt://broker:1883", s.Broker.ServerURL)
	assert.Equal(t, uint16(60), s.Broker.KeepAlive)
	assert.Equal(t, 5, s.DBConnectAttempts)
	assert.Equal(t, "2s", s.PublishInterval.String())

	t.Setenv("MQTT_QOS", "3")
	_, err = ParseSettings()
	assert.Error(t, err)
}
