package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	DefaultTopic   = "livecam/status"
	publishTimeout = 2 * time.Second
	eventQueue     = 8
	disconnectMs   = 250
)

// Publisher is the subset of mqtt.Client the notifier uses.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTConfig describes the broker connection of DialMQTT.
type MQTTConfig struct {
	Broker   string // host:port or a full tcp:// URL
	ClientID string
	Topic    string
	QoS      byte
}

// MQTT publishes lifecycle events as retained JSON messages, so a
// subscriber that connects later still sees the current server status.
// Lifecycle callbacks only queue the event; a single worker publishes them
// in call order. When the queue is full the oldest pending event is
// dropped.
type MQTT struct {
	log    *slog.Logger
	client Publisher
	topic  string
	qos    byte

	mu      sync.Mutex // guards closed and sends on events
	closed  bool
	events  chan Event
	done    chan struct{}
	sent    atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64

	disconnect func()
}

// NewMQTT wraps an already connected client. If topic is empty,
// DefaultTopic is used. If log is nil, slog.Default() is used.
func NewMQTT(client Publisher, topic string, qos byte, log *slog.Logger) *MQTT {
	if topic == "" {
		topic = DefaultTopic
	}
	if log == nil {
		log = slog.Default()
	}
	n := &MQTT{
		log:    log.With("component", "mqtt-notifier", "topic", topic),
		client: client,
		topic:  topic,
		qos:    qos,
		events: make(chan Event, eventQueue),
		done:   make(chan struct{}),
	}
	go n.run()
	return n
}

// DialMQTT connects to the broker and returns a notifier owning the
// connection. Close disconnects it.
func DialMQTT(ctx context.Context, cfg MQTTConfig, log *slog.Logger) (*MQTT, error) {
	if cfg.Broker == "" {
		return nil, errors.New("notify: mqtt broker is required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "livecam"
	}
	broker := cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	if log == nil {
		log = slog.Default()
	}
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost, will auto-reconnect", "component", "mqtt-notifier", "broker", broker, "error", err)
	})
	client := mqtt.NewClient(opts)

	tok := client.Connect()
	select {
	case <-tok.Done():
	case <-ctx.Done():
		client.Disconnect(0)
		return nil, fmt.Errorf("notify: mqtt connect %s: %w", broker, ctx.Err())
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("notify: mqtt connect %s: %w", broker, err)
	}

	n := NewMQTT(client, cfg.Topic, cfg.QoS, log)
	n.disconnect = func() { client.Disconnect(disconnectMs) }
	n.log.Info("mqtt connected", "broker", broker, "client_id", cfg.ClientID)
	return n, nil
}

func (n *MQTT) OnStarted(addr string) {
	ev := newEvent(EventStarted)
	ev.Addr = addr
	n.publish(ev)
}

func (n *MQTT) OnStopped() {
	n.publish(newEvent(EventStopped))
}

func (n *MQTT) OnBindError(err error) {
	ev := newEvent(EventBindError)
	ev.Error = err.Error()
	n.publish(ev)
}

// publish queues ev without waiting for the broker.
func (n *MQTT) publish(ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	for {
		select {
		case n.events <- ev:
			return
		default:
		}
		select {
		case stale := <-n.events:
			n.dropped.Add(1)
			n.log.Debug("mqtt queue full, dropping stale event", "event", stale.Type)
		default:
		}
	}
}

func (n *MQTT) run() {
	defer close(n.done)
	for ev := range n.events {
		n.send(ev)
	}
}

func (n *MQTT) send(ev Event) {
	payload := ev.Marshal()
	tok := n.client.Publish(n.topic, n.qos, true, payload)
	if !tok.WaitTimeout(publishTimeout) {
		n.failed.Add(1)
		n.log.Warn("mqtt publish timed out", "event", ev.Type)
		return
	}
	if err := tok.Error(); err != nil {
		n.failed.Add(1)
		n.log.Warn("mqtt publish failed", "event", ev.Type, "error", err)
		return
	}
	n.sent.Add(1)
	n.log.Debug("lifecycle event published", "event", ev.Type, "size", len(payload))
}

// Stats returns the number of published, failed and dropped messages.
func (n *MQTT) Stats() (sent, failed, dropped uint64) {
	return n.sent.Load(), n.failed.Load(), n.dropped.Load()
}

// Close publishes the events still queued, then disconnects a connection
// opened by DialMQTT. Events reported after Close are discarded.
func (n *MQTT) Close() {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.events)
	}
	n.mu.Unlock()
	<-n.done

	sent, failed, dropped := n.Stats()
	if n.disconnect != nil {
		n.disconnect()
		n.disconnect = nil
		n.log.Info("mqtt disconnected", "sent", sent, "failed", failed, "dropped", dropped)
	}
}
