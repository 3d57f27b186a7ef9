package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/telemetry-bridge/internal/logic"
)

// BufferSize is how many messages are kept while the broker is unreachable.
// At one report per second this covers ten minutes of outage.
const BufferSize = 600

const publishTimeout = 5 * time.Second

// client is the part of paho.Client the publisher uses.
type client interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and replayed on (re)connect.
type RealPublisher struct {
	client client
	now    func() time.Time

	// mu orders publishing: a message is either sent while mu is held or
	// queued in buffer, never both, and onConnect drains under mu.
	mu        sync.Mutex
	buffer    *outbox
	connected bool // a connection has been established at least once
	replaying bool // onConnect is sending the backlog; new messages queue behind it
}

// NewRealPublisher creates a publisher for the given broker and starts
// connecting in the background. It does not wait for the broker, so the
// simulation starts even when the broker is down.
func NewRealPublisher(broker, clientID string) *RealPublisher {
	p := &RealPublisher{
		now:    time.Now,
		buffer: newOutbox(BufferSize),
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(TopicSystem, willPayload(), 1, true).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	c := paho.NewClient(opts)
	p.client = c
	c.Connect()

	return p
}

// Publish sends a telemetry report to the MQTT broker.
func (p *RealPublisher) Publish(at time.Time, report logic.Report) error {
	payload, err := FormatPayload(at, report)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	return p.enqueue(bufferedMsg{topic: Topic, payload: payload, timeSec: report.TimeSec})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events
	return p.enqueue(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained, timeSec: -1})
}

// IsConnected reports whether the broker connection is currently up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns how many messages are waiting for the broker.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

func (p *RealPublisher) enqueue(msg bufferedMsg) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.replaying || !p.client.IsConnectionOpen() {
		p.buffer.push(msg)
		return nil
	}
	return p.send(msg)
}

func (p *RealPublisher) send(msg bufferedMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

// onConnect replays buffered messages in order. Messages published during
// the replay queue behind the backlog and go out in the same pass. After a
// reconnect it also announces RECONNECTED, noting anything lost to overflow.
func (p *RealPublisher) onConnect() {
	p.mu.Lock()
	reconnect := p.connected
	p.connected = true
	p.replaying = true
	first, last, hasReports := p.buffer.span()
	pending, lost := p.buffer.drainAll()
	p.mu.Unlock()

	switch {
	case reconnect && hasReports:
		log.Printf("mqtt: reconnected, replaying %d buffered messages (ticks %d-%d)", len(pending), first, last)
	case reconnect:
		log.Printf("mqtt: reconnected, replaying %d buffered messages", len(pending))
	default:
		log.Printf("mqtt: connected")
	}

	sent := 0
	for len(pending) > 0 {
		for i, msg := range pending {
			if err := p.send(msg); err != nil {
				log.Printf("mqtt: replay stopped after %d messages, requeueing %d: %v", sent, len(pending)-i, err)
				p.mu.Lock()
				p.buffer.requeue(pending[i:])
				p.buffer.lost.reports += lost.reports
				p.buffer.lost.events += lost.events
				p.replaying = false
				p.mu.Unlock()
				return
			}
			sent++
		}

		p.mu.Lock()
		var more evictions
		pending, more = p.buffer.drainAll()
		lost.reports += more.reports
		lost.events += more.events
		if len(pending) == 0 {
			p.replaying = false
		}
		p.mu.Unlock()
	}

	if !reconnect {
		return
	}
	event := SystemEvent{Timestamp: p.now(), Event: "RECONNECTED", Reason: lost.reason()}
	payload, _ := FormatSystemPayload(event)
	if err := p.send(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, timeSec: -1}); err != nil {
		log.Printf("mqtt: reconnect event: %v", err)
	}
}
