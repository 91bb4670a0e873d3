package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/OlexDemOn/IoT-app/data-simulator/errors"
	"github.com/OlexDemOn/IoT-app/data-simulator/events"
	"github.com/OlexDemOn/IoT-app/data-simulator/metric"
	"github.com/OlexDemOn/IoT-app/data-simulator/snapshot"
	"github.com/OlexDemOn/IoT-app/data-simulator/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	machines []snapshot.MachineView
	history  map[string]*telemetry.TopicHistory
	records  []events.TelemetryRecord
	err      error

	lookback int
	start    time.Time
	end      time.Time
	interval int
}

func (f *fakeService) ListMachines() []snapshot.MachineView { return f.machines }

func (f *fakeService) MachineHistory(_ context.Context, _ string, lookback int) (map[string]*telemetry.TopicHistory, error) {
	f.lookback = lookback
	return f.history, f.err
}

func (f *fakeService) GeneratePastData(_ context.Context, _ string, start, end time.Time, interval int) ([]events.TelemetryRecord, error) {
	f.start, f.end, f.interval = start, end, interval
	return f.records, f.err
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestIndex(t *testing.T) {
	h := New(":0", &fakeService{}, nil).Handler()

	rec := do(t, h, http.MethodGet, "/", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to the API!", rec.Body.String())
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/unknown", "").Code)
}

func TestMachines(t *testing.T) {
	service := &fakeService{machines: []snapshot.MachineView{{
		Name: "DrillingMachine",
		Parameters: []snapshot.ParameterView{
			{Parameter: "ZG/drilling/PLC/1/speed", Value: events.Numeric(3141.33), Unit: "rpm"},
			{Parameter: "ZG/drilling/PLC/1/torque", Unit: "Nm"},
		},
	}}}
	h := New(":0", service, nil).Handler()

	rec := do(t, h, http.MethodGet, "/machines", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"name":"DrillingMachine","parameters":[
		{"parameter":"ZG/drilling/PLC/1/speed","value":3141.33,"unit":"rpm"},
		{"parameter":"ZG/drilling/PLC/1/torque","value":null,"unit":"Nm"}]}]`, rec.Body.String())
}

func TestMachineData(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	service := &fakeService{history: map[string]*telemetry.TopicHistory{
		"ZG/drilling/PLC/1/speed": {Timestamps: []time.Time{ts}, Values: []float64{3100}, Unit: "rpm"},
	}}
	h := New(":0", service, nil).Handler()

	rec := do(t, h, http.MethodGet, "/machine-data?machine_name=DrillingMachine", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, telemetry.DefaultLookbackMinutes, service.lookback)
	assert.JSONEq(t, `{"ZG/drilling/PLC/1/speed":{"timestamps":["2024-03-01T10:00:00Z"],"values":[3100],"unit":"rpm"}}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/machine-data?machine_name=DrillingMachine&lookback_minutes=30", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 30, service.lookback)
}

func TestMachineDataValidation(t *testing.T) {
	h := New(":0", &fakeService{}, nil).Handler()

	tests := []struct {
		query   string
		message string
	}{
		{"", "Invalid machine name"},
		{"machine_name=Drilling%20Machine", "Invalid machine name"},
		{"machine_name=x;drop", "Invalid machine name"},
		{"machine_name=DrillingMachine&lookback_minutes=0", "Invalid lookback_minutes value"},
		{"machine_name=DrillingMachine&lookback_minutes=-1", "Invalid lookback_minutes value"},
		{"machine_name=DrillingMachine&lookback_minutes=five", "Invalid lookback_minutes value"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, "/machine-data?"+tt.query, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.message, errorMessage(t, rec))
		})
	}
}

func TestMachineDataStoreFailure(t *testing.T) {
	service := &fakeService{err: errors.WrapTransient(fmt.Errorf("database is locked"), "telemetry", "MachineHistory", "query machine data")}
	h := New(":0", service, nil).Handler()

	rec := do(t, h, http.MethodGet, "/machine-data?machine_name=DrillingMachine", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Error fetching machine data", errorMessage(t, rec))
}

func TestGeneratePastData(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	service := &fakeService{records: []events.TelemetryRecord{{
		Machine: "DrillingMachine", Topic: "ZG/drilling/PLC/1/speed", Parameter: "DrillingSpeed",
		Value: 3100, Unit: "rpm", Timestamp: ts,
	}}}
	h := New(":0", service, nil).Handler()

	rec := do(t, h, http.MethodPost, "/generate-past-data",
		`{"machine_name":"DrillingMachine","start_date":"2024-03-01T10:00:00","end_date":"2024-03-01T12:00:00+02:00"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ts, service.start)
	assert.Equal(t, ts, service.end)
	assert.Equal(t, telemetry.DefaultIntervalSeconds, service.interval)
	var body struct {
		Message       string                   `json:"message"`
		GeneratedData []events.TelemetryRecord `json:"generated_data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Data generation complete", body.Message)
	require.Len(t, body.GeneratedData, 1)
	assert.Equal(t, "DrillingSpeed", body.GeneratedData[0].Parameter)

	rec = do(t, h, http.MethodPost, "/generate-past-data",
		`{"machine_name":"DrillingMachine","start_date":"2024-03-01","end_date":"2024-03-02","interval_seconds":600}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 600, service.interval)
}

func TestGeneratePastDataValidation(t *testing.T) {
	h := New(":0", &fakeService{}, nil).Handler()

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"not json", `{`, "Invalid JSON body"},
		{"missing machine", `{"start_date":"2024-03-01","end_date":"2024-03-02"}`, "Missing required parameters"},
		{"missing end", `{"machine_name":"DrillingMachine","start_date":"2024-03-01"}`, "Missing required parameters"},
		{"bad date", `{"machine_name":"DrillingMachine","start_date":"yesterday","end_date":"2024-03-02"}`, "Invalid date format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/generate-past-data", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.message, errorMessage(t, rec))
		})
	}
}

func TestGeneratePastDataServiceErrors(t *testing.T) {
	body := `{"machine_name":"DrillingMachine","start_date":"2024-03-01T10:00:00Z","end_date":"2024-03-01T10:00:00Z"}`

	service := &fakeService{err: errors.Invalid("telemetry", "GeneratePastData", "Start date must be before end date")}
	rec := do(t, New(":0", service, nil).Handler(), http.MethodPost, "/generate-past-data", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Start date must be before end date", errorMessage(t, rec))

	service = &fakeService{err: fmt.Errorf("boom")}
	rec = do(t, New(":0", service, nil).Handler(), http.MethodPost, "/generate-past-data", body)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Error generating past data", errorMessage(t, rec))
}

func TestMethodNotAllowed(t *testing.T) {
	h := New(":0", &fakeService{}, nil).Handler()
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/generate-past-data", "").Code)
}

func TestMetricsRoute(t *testing.T) {
	metrics := metric.New()
	metrics.RecordsIngested.WithLabelValues("DrillingMachine").Inc()

	with := New(":0", &fakeService{}, metrics.Handler()).Handler()
	rec := do(t, with, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "simulator_ingest_records_total")

	without := New(":0", &fakeService{}, nil).Handler()
	assert.Equal(t, http.StatusNotFound, do(t, without, http.MethodGet, "/metrics", "").Code)
}

func TestParseISOTime(t *testing.T) {
	want := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, value := range []string{
		"2024-03-01T10:00:00Z",
		"2024-03-01T10:00:00",
		"2024-03-01T10:00",
		"2024-03-01T11:00:00+01:00",
		"2024-03-01 10:00:00",
		" 2024-03-01T10:00:00.000 ",
	} {
		got, err := ParseISOTime(value)
		require.NoError(t, err, value)
		assert.True(t, want.Equal(got), value)
	}

	day, err := ParseISOTime("2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), day)

	_, err = ParseISOTime("01/03/2024")
	assert.Error(t, err)
}
