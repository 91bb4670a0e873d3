package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// MQTT broker configuration
type Broker struct {
	ServerURL string `env:"SERVER_URL" envDefault:"mqtt://localhost:1883"` // MQTT server URL
	Username  string `env:"USERNAME"`                                      // MQTT Username to use when connecting to server
	Password  string `env:"PASSWORD"`                                      // MQTT Password to use when connecting to server

	KeepAlive uint16 `env:"KEEP_ALIVE" envDefault:"60"` // seconds between keepalive packets
	QoS       byte   `env:"QOS" envDefault:"0"`
	// capacity of the inbound message queue shared by all machine connections
	InboundBuffer int `env:"INBOUND_BUFFER" envDefault:"256"`
}

// Settings of the simulator process, read from the environment
type Settings struct {
	HTTPAddr   string `env:"HTTP_ADDR" envDefault:":5000"`
	ConfigPath string `env:"CONFIG_PATH" envDefault:"machines.yaml"`

	DBPath            string        `env:"DB_PATH" envDefault:"telemetry.db"`
	DBConnectAttempts int           `env:"DB_CONNECT_ATTEMPTS" envDefault:"5"`
	DBConnectBackoff  time.Duration `env:"DB_CONNECT_BACKOFF" envDefault:"5s"`
	StoreWriteTimeout time.Duration `env:"STORE_WRITE_TIMEOUT" envDefault:"5s"`
	QueryTimeout      time.Duration `env:"QUERY_TIMEOUT" envDefault:"10s"`

	PublishInterval time.Duration `env:"PUBLISH_INTERVAL" envDefault:"15s"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"debug"`
	LogFile  string `env:"LOG_FILE" envDefault:"app.log"`

	Broker Broker `envPrefix:"MQTT_"`
}

// ParseSettings loads settings from environment variables.
func ParseSettings() (Settings, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return s, fmt.Errorf("parse env: %w", err)
	}
	if err := s.validate(); err != nil {
		return s, err
	}
	return s, nil
}

func (s Settings) validate() error {
	if s.DBConnectAttempts <= 0 {
		return fmt.Errorf("DB_CONNECT_ATTEMPTS must be positive, got %d", s.DBConnectAttempts)
	}
	if s.PublishInterval <= 0 {
		return fmt.Errorf("PUBLISH_INTERVAL must be positive, got %s", s.PublishInterval)
	}
	if s.Broker.QoS > 2 {
		return fmt.Errorf("MQTT_QOS must be 0, 1 or 2, got %d", s.Broker.QoS)
	}
	if s.Broker.InboundBuffer <= 0 {
		return fmt.Errorf("MQTT_INBOUND_BUFFER must be positive, got %d", s.Broker.InboundBuffer)
	}
	return nil
}
