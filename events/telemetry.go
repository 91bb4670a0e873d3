package events

import "time"

// Message received from the broker
type Message struct {
	Topic string
	Value Value
	// wall-clock time the gateway received the payload
	ReceivedAt time.Time
}

// Telemetry record as persisted in the time series store
//
// example:
// `{"machine_name": "DrillingMachine", "topic": "ZG/drilling/PLC/1/speed", "parameter": "DrillingSpeed", "value": 3141.33, "unit": "rpm", "timestamp": "2024-01-01T00:00:00Z"}`
type TelemetryRecord struct {
	Machine string `json:"machine_name"`
	Topic   string `json:"topic"`
	// only known for records produced by the simulator
	Parameter string    `json:"parameter,omitempty"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Timestamp time.Time `json:"timestamp"`
}
