package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/0xBADBAC0N/ghcrawler/internal/engine"
)

// AMQPSet binds Set to a RabbitMQ cluster. Each Priority is its own durable
// queue named "<prefix>-<priority>"; PushDelayed uses one shared delay
// queue, "<prefix>-delay", whose per-message TTL, combined with no consumer and
// dead-letter routing back to the normal queue, reproduces delayed
// visibility without the delayed-message-exchange plugin.
type AMQPSet struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	prefix string

	queueNames map[Priority]string
	delayName  string

	consumeFrom []Priority
}

// NewAMQPSet dials url, declares the durable priority/normal/soon/dead
// queues and the delay queue under prefix, and returns a ready Set.
func NewAMQPSet(url, prefix string) (*AMQPSet, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("queue: dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("queue: open channel: %w", err)
	}
	if err := ch.Qos(16, 0, false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("queue: set qos: %w", err)
	}

	s := &AMQPSet{
		conn:   conn,
		ch:     ch,
		prefix: prefix,
		queueNames: map[Priority]string{
			PriorityHigh:   prefix + "-priority",
			PriorityNormal: prefix + "-normal",
			PrioritySoon:   prefix + "-soon",
			PriorityDead:   prefix + "-dead",
		},
		delayName:   prefix + "-delay",
		consumeFrom: []Priority{PriorityHigh, PriorityNormal, PrioritySoon},
	}

	for _, name := range s.queueNames {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			conn.Close()
			return nil, fmt.Errorf("queue: declare %s: %w", name, err)
		}
	}
	if _, err := ch.QueueDeclare(s.delayName, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": s.queueNames[PriorityNormal],
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("queue: declare %s: %w", s.delayName, err)
	}

	return s, nil
}

type amqpEnvelope struct {
	Req engine.Queueable `json:"req"`
}

func (s *AMQPSet) Push(ctx context.Context, priority Priority, req *engine.Request) error {
	name, ok := s.queueNames[priority]
	if !ok {
		return fmt.Errorf("queue: unknown priority %q", priority)
	}
	body, err := json.Marshal(amqpEnvelope{Req: req.ToQueueable()})
	if err != nil {
		return fmt.Errorf("queue: marshal request: %w", err)
	}
	return s.ch.PublishWithContext(ctx, "", name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

func (s *AMQPSet) PushDelayed(ctx context.Context, req *engine.Request, delay time.Duration) error {
	body, err := json.Marshal(amqpEnvelope{Req: req.ToQueueable()})
	if err != nil {
		return fmt.Errorf("queue: marshal request: %w", err)
	}
	ms := delay.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	return s.ch.PublishWithContext(ctx, "", s.delayName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Expiration:   fmt.Sprintf("%d", ms),
		Body:         body,
	})
}

// Pop polls the priority queues in order with a non-blocking Get, since a
// Set must service many concurrent worker loops without dedicating a
// consumer goroutine per loop.
func (s *AMQPSet) Pop(ctx context.Context) (*Delivery, error) {
	for _, p := range s.consumeFrom {
		msg, ok, err := s.ch.Get(s.queueNames[p], false)
		if err != nil {
			return nil, fmt.Errorf("queue: get %s: %w", p, err)
		}
		if !ok {
			continue
		}
		var env amqpEnvelope
		if err := json.Unmarshal(msg.Body, &env); err != nil {
			log.Error().Err(err).Str("priority", string(p)).Msg("queue: dropping undecodable message")
			_ = msg.Ack(false)
			continue
		}
		req := engine.FromQueueable(env.Req)
		return &Delivery{Request: req, token: msg}, nil
	}
	return nil, fmt.Errorf("%w", ErrEmpty)
}

func (s *AMQPSet) Ack(ctx context.Context, d *Delivery) error {
	msg, ok := d.token.(amqp.Delivery)
	if !ok {
		return nil
	}
	return msg.Ack(false)
}

// Requeue pushes the queuable projection onto priority. It does not settle
// d's delivery tag; the caller acks (or abandons) the original delivery
// itself once it's done with it, matching MemorySet's contract.
func (s *AMQPSet) Requeue(ctx context.Context, d *Delivery, priority Priority) error {
	return s.Push(ctx, priority, d.Request)
}

// Dead pushes the queuable projection onto the dead-letter queue. Like
// Requeue, it leaves d's delivery tag unsettled for the caller to finish.
func (s *AMQPSet) Dead(ctx context.Context, d *Delivery, reason string) error {
	d.Request.SetMeta("deadLetterReason", reason)
	return s.Push(ctx, PriorityDead, d.Request)
}

func (s *AMQPSet) Abandon(ctx context.Context, d *Delivery) error {
	msg, ok := d.token.(amqp.Delivery)
	if !ok {
		return nil
	}
	return msg.Nack(false, true)
}

func (s *AMQPSet) Depths(ctx context.Context) (map[Priority]int, error) {
	out := map[Priority]int{}
	for p, name := range s.queueNames {
		q, err := s.ch.QueueInspect(name)
		if err != nil {
			return nil, fmt.Errorf("queue: inspect %s: %w", name, err)
		}
		out[p] = q.Messages
	}
	return out, nil
}

func (s *AMQPSet) Close() error {
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
