// Package mq abstracts the durable job queue (process_mo, deliver_mt,
// send_mt_status) behind a small interface, grounded on the
// MessageQueue interface used elsewhere in the example corpus for async
// job dispatch. The one implementation here is backed by RabbitMQ.
package mq

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNoMessage is returned by implementations that poll rather than push
// when nothing is available. The AMQP implementation never returns it
// (Consume blocks on a channel instead) but it is kept on the interface
// surface so a future polling-based implementation can reuse it.
var ErrNoMessage = errors.New("mq: no message available")

// Delivery is one job pulled off the queue.
type Delivery struct {
	ID      string
	Kind    string
	Payload json.RawMessage
	Attempt int
}

// Queue is the durable job queue this gateway's worker consumes from and
// its server/ingress publishes onto.
type Queue interface {
	// Publish enqueues a job of the given kind. A positive delay defers
	// visibility by that duration (used for the 60s retry backoff).
	Publish(ctx context.Context, kind string, payload json.RawMessage, delay time.Duration) error

	// Consume returns a channel of deliveries. The channel closes when
	// ctx is cancelled or the underlying connection is closed.
	Consume(ctx context.Context) (<-chan Delivery, error)

	// Ack marks a delivery as successfully processed.
	Ack(ctx context.Context, d Delivery) error

	// Nack requeues a delivery after delay, incrementing its attempt
	// count.
	Nack(ctx context.Context, d Delivery, delay time.Duration) error

	// DeadLetter moves a delivery to the dead-letter queue, used when a
	// job has exhausted its 24-hour retry bound.
	DeadLetter(ctx context.Context, d Delivery, reason string) error

	// Ping verifies connectivity to the broker.
	Ping(ctx context.Context) error

	// Close releases the connection.
	Close() error
}

// Job kinds published and consumed by this gateway.
const (
	KindProcessMO     = "process_mo"
	KindDeliverMT     = "deliver_mt"
	KindSendMTStatus  = "send_mt_status"
)
