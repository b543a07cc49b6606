package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/restaurant-orders/utils"
)

// Envelope is one room-targeted event on the wire between instances.
type Envelope struct {
	Origin string          `json:"origin"`
	Rooms  []string        `json:"rooms"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
}

// LocalSink receives envelopes published by other instances.
type LocalSink interface {
	Emit(rooms []string, event string, data interface{})
}

// Relay mempublikasikan event ke fanout exchange supaya semua instance
// server mengirim event yang sama ke koneksi WebSocket masing-masing.
type Relay struct {
	url      string
	exchange string
	origin   string

	conn *amqp.Connection
	ch   *amqp.Channel
	mu   sync.Mutex
	log  *logrus.Entry
}

func NewRelay(url, exchange string) *Relay {
	return &Relay{
		url:      url,
		exchange: exchange,
		origin:   uuid.NewString(),
		log:      utils.Component("broker"),
	}
}

func (r *Relay) Origin() string { return r.origin }

// Connect dials the broker and declares the fanout exchange.
func (r *Relay) Connect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connectLocked()
}

func (r *Relay) connectLocked() error {
	conn, err := amqp.Dial(r.url)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(r.exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("declare exchange %s: %w", r.exchange, err)
	}
	r.conn = conn
	r.ch = ch
	r.log.WithField("exchange", r.exchange).Info("rabbitmq connected")
	return nil
}

func (r *Relay) IsAlive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn != nil && !r.conn.IsClosed() && r.ch != nil && !r.ch.IsClosed()
}

func (r *Relay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ch != nil && !r.ch.IsClosed() {
		if err := r.ch.Close(); err != nil {
			return fmt.Errorf("close rabbitmq channel: %w", err)
		}
	}
	if r.conn != nil && !r.conn.IsClosed() {
		if err := r.conn.Close(); err != nil {
			return fmt.Errorf("close rabbitmq connection: %w", err)
		}
	}
	return nil
}

// Emit implements the emission sink. Publishing errors are logged; local
// delivery already happened through the hub.
func (r *Relay) Emit(rooms []string, event string, data interface{}) {
	body, err := encode(r.origin, rooms, event, data)
	if err != nil {
		r.log.WithError(err).Error("encode envelope")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r.mu.Lock()
	ch := r.ch
	r.mu.Unlock()
	if ch == nil || ch.IsClosed() {
		r.log.WithField("event", event).Warn("rabbitmq channel closed, event not relayed")
		return
	}

	err = ch.PublishWithContext(ctx, r.exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		r.log.WithError(err).WithField("event", event).Error("publish event")
	}
}

// Consume binds an exclusive queue to the exchange and replays envelopes
// from other instances into local until ctx is done. It reconnects every
// 5 seconds while the broker is unreachable.
func (r *Relay) Consume(ctx context.Context, local LocalSink) error {
	for {
		err := r.consumeOnce(ctx, local)
		if ctx.Err() != nil {
			return nil
		}
		r.log.WithError(err).Warn("rabbitmq consumer stopped, reconnecting")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(5 * time.Second):
		}

		r.mu.Lock()
		if r.conn == nil || r.conn.IsClosed() {
			if err := r.connectLocked(); err != nil {
				r.log.WithError(err).Warn("rabbitmq failed to reconnect")
			}
		}
		r.mu.Unlock()
	}
}

func (r *Relay) consumeOnce(ctx context.Context, local LocalSink) error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil || conn.IsClosed() {
		return errors.New("not connected")
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", r.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	deliveries, err := ch.ConsumeWithContext(ctx, q.Name, "relay-"+r.origin[:8], true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	for d := range deliveries {
		r.handleDelivery(d.Body, local)
	}
	return errors.New("delivery channel closed")
}

func (r *Relay) handleDelivery(body []byte, local LocalSink) {
	env, err := decode(body)
	if err != nil {
		r.log.WithError(err).Warn("discarding malformed envelope")
		return
	}
	if env.Origin == r.origin {
		return
	}
	local.Emit(env.Rooms, env.Event, env.Data)
}

func encode(origin string, rooms []string, event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Origin: origin, Rooms: rooms, Event: event, Data: raw})
}

func decode(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	if env.Event == "" || len(env.Rooms) == 0 {
		return nil, errors.New("envelope without event or rooms")
	}
	return &env, nil
}
