package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sweeney/evm-controller/internal/logic"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	retryInterval  = 5 * time.Second
)

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string // empty: "evm-controller-" plus a random suffix
	FrameTopic string // empty: TopicFrame
	BufferSize int    // system events held while disconnected
}

// client is the subset of paho.Client the publisher uses.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	IsConnectionOpen() bool
	Disconnect(quiesce uint)
}

// RealPublisher publishes to an actual MQTT broker. System events
// published while the connection is down are buffered and replayed on
// reconnect, followed by the latest frame.
type RealPublisher struct {
	client client
	topic  string
	log    *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	pending   *ringBuffer
	lastFrame []byte
	connects  int
}

// NewRealPublisher creates a publisher for the given broker. If the broker
// is not reachable within the connect timeout the publisher is returned
// anyway and paho keeps retrying in the background.
func NewRealPublisher(o Options, log *zap.Logger) (*RealPublisher, error) {
	if o.Broker == "" {
		return nil, errors.New("no broker configured")
	}
	clientID := o.ClientID
	if clientID == "" {
		clientID = "evm-controller-" + uuid.NewString()[:8]
	}

	p := newPublisher(nil, o.FrameTopic, o.BufferSize, log)

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: p.now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(retryInterval).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) { p.onConnectionLost(err) })

	c := paho.NewClient(opts)
	p.client = c

	token := c.Connect()
	if !token.WaitTimeout(connectTimeout) {
		p.log.Warn("broker not reachable, retrying in background",
			zap.String("broker", o.Broker))
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	p.log.Info("connected", zap.String("broker", o.Broker), zap.String("client_id", clientID))
	return p, nil
}

func newPublisher(c client, topic string, bufferSize int, log *zap.Logger) *RealPublisher {
	if topic == "" {
		topic = TopicFrame
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RealPublisher{
		client:  c,
		topic:   topic,
		log:     log,
		now:     time.Now,
		pending: newRingBuffer(bufferSize, log),
	}
}

// PublishFrame sends a display frame, retained, at QoS 0.
// The frame is remembered and republished after a reconnect.
func (p *RealPublisher) PublishFrame(f logic.Frame) error {
	payload, err := FormatFramePayload(f, p.now())
	if err != nil {
		return fmt.Errorf("format frame payload: %w", err)
	}

	p.mu.Lock()
	p.lastFrame = payload
	p.mu.Unlock()

	if !p.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	return p.publish(bufferedMsg{topic: p.topic, payload: payload, retained: true})
}

// PublishSystem sends a system lifecycle event at QoS 1. While
// disconnected the event is buffered and nil is returned.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	msg := bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained}

	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.pending.push(msg)
		p.mu.Unlock()
		p.log.Debug("buffered system event", zap.String("event", event.Event))
		return nil
	}
	return p.publish(msg)
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second quiesce
	return nil
}

func (p *RealPublisher) publish(m bufferedMsg) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// onConnect runs on every (re)connect in a paho goroutine.
func (p *RealPublisher) onConnect() {
	p.mu.Lock()
	p.connects++
	reconnect := p.connects > 1
	replay := p.pending.drainAll()
	frame := p.lastFrame
	p.mu.Unlock()

	if reconnect {
		p.log.Info("reconnected", zap.Int("replay", len(replay)))
		payload, err := FormatSystemPayload(SystemEvent{Timestamp: p.now(), Event: "RECONNECTED"})
		if err == nil {
			replay = append(replay, bufferedMsg{topic: TopicSystem, payload: payload, qos: 1})
		}
	}
	if frame != nil {
		replay = append(replay, bufferedMsg{topic: p.topic, payload: frame, retained: true})
	}

	for _, m := range replay {
		if err := p.publish(m); err != nil {
			p.log.Warn("replay failed", zap.String("topic", m.topic), zap.Error(err))
		}
	}
}

func (p *RealPublisher) onConnectionLost(err error) {
	p.log.Warn("connection lost", zap.Error(err))
}
