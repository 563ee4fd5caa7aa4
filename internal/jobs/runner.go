package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rorsat-ltd/kosmos/internal/mq"
)

// Handler processes one job attempt and reports its outcome.
type Handler func(ctx context.Context, body json.RawMessage) Result

// Runner dispatches deliveries from a Queue to registered Handlers by
// job kind.
type Runner struct {
	queue    mq.Queue
	log      zerolog.Logger
	handlers map[string]Handler

	// OnResult, if set, is called once per dispatched delivery with its
	// job kind, the job body's "id" field (empty if absent or undecodable),
	// and its terminal outcome ("done", "retry", "failed", or
	// "dead_letter"). Used by the operations surface to maintain live
	// counters and stream events; nil is a valid no-op default.
	OnResult func(kind, id, outcome string)
}

// NewRunner builds a Runner backed by queue, logging through log.
func NewRunner(queue mq.Queue, log zerolog.Logger) *Runner {
	return &Runner{queue: queue, log: log, handlers: make(map[string]Handler)}
}

// Handle registers the handler for a job kind (mq.KindProcessMO,
// mq.KindDeliverMT, mq.KindSendMTStatus).
func (r *Runner) Handle(kind string, h Handler) {
	r.handlers[kind] = h
}

// Enqueue publishes a new job, wrapping body in a fresh Envelope.
func Enqueue(ctx context.Context, queue mq.Queue, kind string, body json.RawMessage) error {
	env := NewEnvelope(body)
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("jobs: marshal envelope: %w", err)
	}
	return queue.Publish(ctx, kind, payload, 0)
}

// Run consumes deliveries until ctx is cancelled, dispatching each to
// its registered handler and translating the Result into an ack,
// delayed requeue, or dead-letter.
func (r *Runner) Run(ctx context.Context) error {
	deliveries, err := r.queue.Consume(ctx)
	if err != nil {
		return fmt.Errorf("jobs: consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			r.dispatch(ctx, d)
		}
	}
}

func (r *Runner) dispatch(ctx context.Context, d mq.Delivery) {
	log := r.log.With().Str("kind", d.Kind).Int("attempt", d.Attempt).Logger()

	var env Envelope
	if err := json.Unmarshal(d.Payload, &env); err != nil {
		log.Error().Err(err).Msg("undecodable job envelope, dead-lettering")
		if err := r.queue.DeadLetter(ctx, d, "undecodable envelope"); err != nil {
			log.Error().Err(err).Msg("dead-letter failed")
		}
		r.notify(d.Kind, "", "dead_letter")
		return
	}

	id := extractID(env.Body)

	handler, ok := r.handlers[d.Kind]
	if !ok {
		log.Error().Msg("no handler registered for job kind, dead-lettering")
		if err := r.queue.DeadLetter(ctx, d, "unknown job kind"); err != nil {
			log.Error().Err(err).Msg("dead-letter failed")
		}
		r.notify(d.Kind, id, "dead_letter")
		return
	}

	result := handler(ctx, env.Body)

	switch result.kind {
	case resultDone:
		if err := r.queue.Ack(ctx, d); err != nil {
			log.Error().Err(err).Msg("ack failed")
		}
		r.notify(d.Kind, id, "done")

	case resultRetry:
		if time.Since(env.FirstEnqueued)+result.delay > RetryBound {
			log.Warn().Msg("retry bound exceeded, dead-lettering")
			if err := r.queue.DeadLetter(ctx, d, "retry bound exceeded"); err != nil {
				log.Error().Err(err).Msg("dead-letter failed")
			}
			r.notify(d.Kind, id, "dead_letter")
			return
		}
		if err := r.queue.Nack(ctx, d, result.delay); err != nil {
			log.Error().Err(err).Msg("nack failed")
		}
		r.notify(d.Kind, id, "retry")

	case resultRetryUnbounded:
		if err := r.queue.Nack(ctx, d, result.delay); err != nil {
			log.Error().Err(err).Msg("nack failed")
		}
		r.notify(d.Kind, id, "retry")

	case resultFail:
		log.Error().Err(result.err).Msg("job failed permanently, dead-lettering")
		if err := r.queue.DeadLetter(ctx, d, result.err.Error()); err != nil {
			log.Error().Err(err).Msg("dead-letter failed")
		}
		r.notify(d.Kind, id, "failed")
	}
}

func (r *Runner) notify(kind, id, outcome string) {
	if r.OnResult != nil {
		r.OnResult(kind, id, outcome)
	}
}

// extractID pulls the "id" field out of a job body for observability,
// returning "" if the body has none or isn't an object.
func extractID(body json.RawMessage) string {
	var v struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(v.ID, &s); err == nil {
		return s
	}
	return string(v.ID)
}
