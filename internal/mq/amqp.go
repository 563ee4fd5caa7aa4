package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	exchangeName    = "kosmos.jobs"
	mainQueueName   = "kosmos.jobs.main"
	retryQueueName  = "kosmos.jobs.retry"
	deadQueueName   = "kosmos.jobs.dead"
	routingKey      = "job"
	retryTTLMillis  = int32(60_000) // fixed 60s retry delay
	headerAttempt   = "x-kosmos-attempt"
	headerKind      = "x-kosmos-kind"
	headerReason    = "x-kosmos-reason"
)

// AMQPQueue is a Queue backed by RabbitMQ. Retry delay is implemented
// with a dead-lettering "parking" queue that holds messages for a fixed
// TTL before routing them back to the main queue — RabbitMQ has no
// native per-message variable delay, but the retry policy here is
// always exactly 60s, so a static-TTL queue is sufficient.
type AMQPQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Dial connects to url, retrying the initial handshake with a bounded
// exponential backoff, and declares the exchange/queue topology.
func Dial(ctx context.Context, url string) (*AMQPQueue, error) {
	var conn *amqp.Connection

	op := func() error {
		c, err := amqp.Dial(url)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, fmt.Errorf("mq: dial %s: %w", url, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("mq: open channel: %w", err)
	}

	q := &AMQPQueue{conn: conn, ch: ch}
	if err := q.declareTopology(); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return q, nil
}

func (q *AMQPQueue) declareTopology() error {
	if err := q.ch.ExchangeDeclare(exchangeName, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("mq: declare exchange: %w", err)
	}

	if _, err := q.ch.QueueDeclare(mainQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("mq: declare main queue: %w", err)
	}
	if err := q.ch.QueueBind(mainQueueName, routingKey, exchangeName, false, nil); err != nil {
		return fmt.Errorf("mq: bind main queue: %w", err)
	}

	retryArgs := amqp.Table{
		"x-message-ttl":             retryTTLMillis,
		"x-dead-letter-exchange":    exchangeName,
		"x-dead-letter-routing-key": routingKey,
	}
	if _, err := q.ch.QueueDeclare(retryQueueName, true, false, false, false, retryArgs); err != nil {
		return fmt.Errorf("mq: declare retry queue: %w", err)
	}

	if _, err := q.ch.QueueDeclare(deadQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("mq: declare dead queue: %w", err)
	}

	return nil
}

// Publish implements Queue.
func (q *AMQPQueue) Publish(ctx context.Context, kind string, payload json.RawMessage, delay time.Duration) error {
	return q.publishAttempt(ctx, kind, payload, 0, delay)
}

func (q *AMQPQueue) publishAttempt(ctx context.Context, kind string, payload json.RawMessage, attempt int, delay time.Duration) error {
	target := exchangeName
	key := routingKey
	if delay > 0 {
		key = "" // retry queue is not bound to the exchange; publish directly
	}

	headers := amqp.Table{
		headerKind:    kind,
		headerAttempt: int32(attempt),
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         payload,
		Headers:      headers,
	}

	if delay > 0 {
		return q.ch.PublishWithContext(ctx, "", retryQueueName, false, false, msg)
	}
	return q.ch.PublishWithContext(ctx, target, key, false, false, msg)
}

// Consume implements Queue.
func (q *AMQPQueue) Consume(ctx context.Context) (<-chan Delivery, error) {
	deliveries, err := q.ch.ConsumeWithContext(ctx, mainQueueName, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("mq: consume: %w", err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				out <- toDelivery(d)
			}
		}
	}()
	return out, nil
}

func toDelivery(d amqp.Delivery) Delivery {
	kind, _ := d.Headers[headerKind].(string)
	attempt := 0
	if v, ok := d.Headers[headerAttempt].(int32); ok {
		attempt = int(v)
	}
	return Delivery{
		ID:      d.DeliveryTag.String(),
		Kind:    kind,
		Payload: d.Body,
		Attempt: attempt,
	}
}

// Ack implements Queue. ackTags maps a Delivery.ID back to its AMQP
// delivery tag; amqp091-go acks by tag, not by an opaque string ID, so
// the concrete delivery carries its tag encoded in ID via toDelivery's
// DeliveryTag.String() and is parsed back out here.
func (q *AMQPQueue) Ack(ctx context.Context, d Delivery) error {
	tag, err := parseTag(d.ID)
	if err != nil {
		return err
	}
	return q.ch.Ack(tag, false)
}

// Nack implements Queue: rejects the original delivery (it is not
// requeued in place) and republishes a new message onto the retry
// parking queue with an incremented attempt count.
func (q *AMQPQueue) Nack(ctx context.Context, d Delivery, delay time.Duration) error {
	tag, err := parseTag(d.ID)
	if err != nil {
		return err
	}
	if err := q.ch.Nack(tag, false, false); err != nil {
		return fmt.Errorf("mq: nack: %w", err)
	}
	return q.publishAttempt(ctx, d.Kind, d.Payload, d.Attempt+1, delay)
}

// DeadLetter implements Queue.
func (q *AMQPQueue) DeadLetter(ctx context.Context, d Delivery, reason string) error {
	tag, err := parseTag(d.ID)
	if err != nil {
		return err
	}
	if err := q.ch.Ack(tag, false); err != nil {
		return fmt.Errorf("mq: ack before dead-letter: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         d.Payload,
		Headers: amqp.Table{
			headerKind:    d.Kind,
			headerAttempt: int32(d.Attempt),
			headerReason:  reason,
		},
	}
	return q.ch.PublishWithContext(ctx, "", deadQueueName, false, false, msg)
}

// Ping implements Queue.
func (q *AMQPQueue) Ping(ctx context.Context) error {
	if q.conn == nil || q.conn.IsClosed() {
		return fmt.Errorf("mq: connection closed")
	}
	return nil
}

// Close implements Queue.
func (q *AMQPQueue) Close() error {
	if err := q.ch.Close(); err != nil {
		q.conn.Close()
		return fmt.Errorf("mq: close channel: %w", err)
	}
	return q.conn.Close()
}

func parseTag(id string) (uint64, error) {
	var tag uint64
	if _, err := fmt.Sscanf(id, "%d", &tag); err != nil {
		return 0, fmt.Errorf("mq: invalid delivery id %q: %w", id, err)
	}
	return tag, nil
}
