// Package mqtt connects every simulated machine to the MQTT broker, publishes
// its values and forwards received payloads to a bounded queue.
package mqtt

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/OlexDemOn/IoT-app/data-simulator/config"
	"github.com/OlexDemOn/IoT-app/data-simulator/events"
	"github.com/OlexDemOn/IoT-app/data-simulator/metric"
	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/rs/zerolog/log"
)

const publishTimeout = 5 * time.Second

// connection is the part of *autopaho.ConnectionManager used by the gateway
type connection interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
	AwaitConnection(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

type dialFunc func(ctx context.Context, cfg autopaho.ClientConfig) (connection, error)

func dialAutopaho(ctx context.Context, cfg autopaho.ClientConfig) (connection, error) {
	return autopaho.NewConnection(ctx, cfg)
}

// Gateway owns one broker connection per machine, named after the machine.
type Gateway struct {
	config   config.Broker
	registry *config.Registry
	metrics  *metric.Metrics
	dial     dialFunc

	mu          sync.RWMutex
	connections map[string]connection
	connected   map[string]bool

	// queue of received messages, drained by the ingestion pipeline
	messages chan events.Message
}

func NewGateway(cfg config.Broker, registry *config.Registry, metrics *metric.Metrics) *Gateway {
	buffer := cfg.InboundBuffer
	if buffer <= 0 {
		buffer = 256
	}
	return &Gateway{
		config:      cfg,
		registry:    registry,
		metrics:     metrics,
		dial:        dialAutopaho,
		connections: map[string]connection{},
		connected:   map[string]bool{},
		messages:    make(chan events.Message, buffer),
	}
}

// Messages returns the queue of received messages.
func (g *Gateway) Messages() <-chan events.Message {
	return g.messages
}

// Subscriptions returns the valid topics of a machine. Invalid topics are
// logged and left out.
func (g *Gateway) Subscriptions(machine config.MachineDefinition) []paho.SubscribeOptions {
	var subscriptions []paho.SubscribeOptions
	for _, p := range machine.Parameters {
		if !ValidTopic(p.Topic) {
			log.Warn().Msgf("Skipping invalid MQTT topic: '%s' for machine: '%s'", p.Topic, machine.Name)
			continue
		}
		subscriptions = append(subscriptions, paho.SubscribeOptions{
			Topic: p.Topic,
			QoS:   g.config.QoS,
		})
	}
	return subscriptions
}

// Connect opens a connection for every machine. Connections come up in the
// background; subscriptions are (re)made every time a connection comes up.
func (g *Gateway) Connect(ctx context.Context) error {
	parsedURL, err := url.Parse(g.config.ServerURL)
	if err != nil {
		return fmt.Errorf("failed to parse server URL (%s): %w", g.config.ServerURL, err)
	}

	for _, machine := range g.registry.Machines() {
		conn, err := g.dial(ctx, g.clientConfig(parsedURL, machine))
		if err != nil {
			return fmt.Errorf("failed to create MQTT connection for %s: %w", machine.Name, err)
		}
		g.mu.Lock()
		g.connections[machine.Name] = conn
		g.mu.Unlock()
		log.Info().Msgf("Client for %s started", machine.Name)
	}
	return nil
}

func (g *Gateway) clientConfig(server *url.URL, machine config.MachineDefinition) autopaho.ClientConfig {
	name := machine.Name
	subscriptions := g.Subscriptions(machine)

	cliCfg := autopaho.ClientConfig{
		BrokerUrls:                    []*url.URL{server},
		KeepAlive:                     g.config.KeepAlive,
		CleanStartOnInitialConnection: true,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, connAck *paho.Connack) {
			log.Info().Msgf("MQTT connection up for %s", name)
			g.setConnected(name, true)
			if len(subscriptions) == 0 {
				return
			}
			if _, err := cm.Subscribe(context.Background(), &paho.Subscribe{
				Subscriptions: subscriptions,
			}); err != nil {
				log.Error().Msgf("Failed to subscribe topics of %s: %s", name, err)
				return
			}
			log.Info().Msgf("Subscribed %d topics for %s", len(subscriptions), name)
		},

		OnConnectError: func(err error) {
			g.setConnected(name, false)
			log.Error().Msgf("Error whilst attempting connection for %s: %s", name, err)
		},

		ClientConfig: paho.ClientConfig{
			ClientID: name,
			Router:   paho.NewStandardRouterWithDefault(func(msg *paho.Publish) { g.deliver(name, msg) }),
			OnClientError: func(err error) {
				g.setConnected(name, false)
				log.Error().Msgf("Client error for %s: %s", name, err)
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				g.setConnected(name, false)
				if d.Properties != nil {
					log.Error().Msgf("Server requested disconnect of %s: %s", name, d.Properties.ReasonString)
				} else {
					log.Error().Msgf("Server requested disconnect of %s with reason code: %d", name, d.ReasonCode)
				}
			},
		},
	}

	if g.config.Username != "" {
		cliCfg.ConnectUsername = g.config.Username
		cliCfg.ConnectPassword = []byte(g.config.Password)
	}
	return cliCfg
}

func (g *Gateway) setConnected(machine string, up bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected[machine] = up
}

// Connected reports whether the connection of machine is up.
func (g *Gateway) Connected(machine string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.connected[machine]
}

// AwaitConnection blocks until every machine connection is up or ctx ends.
func (g *Gateway) AwaitConnection(ctx context.Context) error {
	g.mu.RLock()
	conns := make(map[string]connection, len(g.connections))
	for name, conn := range g.connections {
		conns[name] = conn
	}
	g.mu.RUnlock()

	for name, conn := range conns {
		log.Info().Msgf("Waiting for MQTT connection of %s ...", name)
		if err := conn.AwaitConnection(ctx); err != nil {
			return fmt.Errorf("connection of %s: %w", name, err)
		}
	}
	return nil
}

// deliver is the router handler of every connection. It runs on the paho
// network goroutine and therefore never blocks: a full queue drops the
// message.
func (g *Gateway) deliver(machine string, msg *paho.Publish) {
	g.metrics.MessagesReceived.WithLabelValues(machine).Inc()
	m := events.Message{
		Topic:      msg.Topic,
		Value:      events.ParsePayload(msg.Payload),
		ReceivedAt: time.Now().UTC(),
	}
	select {
	case g.messages <- m:
		log.Debug().Msgf("Queued message on '%s': %s", m.Topic, m.Value)
	default:
		g.metrics.MessagesDropped.WithLabelValues("queue_full").Inc()
		log.Warn().Msgf("Inbound queue full, dropping message on '%s'", m.Topic)
	}
}

// Publish sends a value on the connection of machine. Failures are logged
// and never returned. A machine whose connection is down is skipped instead
// of waiting for it to come back.
func (g *Gateway) Publish(ctx context.Context, machine, topic string, value float64) {
	g.mu.RLock()
	conn, ok := g.connections[machine]
	g.mu.RUnlock()
	if !ok {
		g.metrics.PublishErrors.WithLabelValues(machine).Inc()
		log.Error().Msgf("No MQTT connection for machine '%s'", machine)
		return
	}
	if !g.Connected(machine) {
		g.metrics.PublishErrors.WithLabelValues(machine).Inc()
		log.Warn().Msgf("MQTT connection of '%s' is down, skipping value for topic '%s'", machine, topic)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	msg := &paho.Publish{
		QoS:     g.config.QoS,
		Topic:   topic,
		Payload: []byte(strconv.FormatFloat(value, 'f', -1, 64)),
	}
	if _, err := conn.Publish(ctx, msg); err != nil {
		g.metrics.PublishErrors.WithLabelValues(machine).Inc()
		log.Error().Msgf("Failed to publish to topic '%s' for machine '%s': %s", topic, machine, err)
		return
	}
	g.metrics.ValuesPublished.WithLabelValues(machine).Inc()
	log.Info().Msgf("Published to topic '%s' with value '%v' for machine '%s'", topic, value, machine)
}

// Disconnect closes every connection.
func (g *Gateway) Disconnect(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for name, conn := range g.connections {
		if err := conn.Disconnect(ctx); err != nil {
			log.Error().Msgf("Failed to disconnect %s: %s", name, err)
		}
		g.connected[name] = false
	}
	g.connections = map[string]connection{}
	log.Info().Msg("Disconnected from MQTT")
}
