// Package jobs runs the three durable job kinds (process_mo, deliver_mt,
// send_mt_status) against an mq.Queue, implementing the shared retry
// policy all three use: retry after a fixed 60s delay, and give up
// (dead-letter) once a job has been in flight longer than 24 hours
// since it was first enqueued.
package jobs

import (
	"encoding/json"
	"time"
)

// RetryDelay is the fixed backoff applied between job attempts.
const RetryDelay = 60 * time.Second

// RetryBound is the maximum time a job may remain unresolved before it
// is dead-lettered instead of retried again.
const RetryBound = 24 * time.Hour

// Envelope wraps a job's JSON body with the bookkeeping the retry
// policy needs. It round-trips unchanged through mq.Queue.Nack, so
// FirstEnqueued reflects the original publish time across every retry.
type Envelope struct {
	FirstEnqueued time.Time       `json:"first_enqueued"`
	Body          json.RawMessage `json:"body"`
}

// NewEnvelope wraps body for first publication.
func NewEnvelope(body json.RawMessage) Envelope {
	return Envelope{FirstEnqueued: time.Now().UTC(), Body: body}
}

// resultKind is the outcome a Handler reports for one attempt.
type resultKind int

const (
	resultDone resultKind = iota
	resultRetry
	resultRetryUnbounded
	resultFail
)

// Result is what a Handler returns after one attempt at a job.
type Result struct {
	kind  resultKind
	delay time.Duration
	err   error
}

// Done reports the job completed successfully; it will be acked.
func Done() Result {
	return Result{kind: resultDone}
}

// Retry reports a transient failure; the job is requeued after delay,
// unless doing so would exceed RetryBound, in which case it is
// dead-lettered instead.
func Retry(delay time.Duration) Result {
	return Result{kind: resultRetry, delay: delay}
}

// RetryUnbounded reports a transient failure that ignores RetryBound —
// used by send_mt_status, the one job kind exempt from the 24-hour
// give-up rule.
func RetryUnbounded(delay time.Duration) Result {
	return Result{kind: resultRetryUnbounded, delay: delay}
}

// Fail reports a permanent failure; the job is dead-lettered
// immediately with err as the reason.
func Fail(err error) Result {
	return Result{kind: resultFail, err: err}
}

// IsDone reports whether the result is Done().
func (r Result) IsDone() bool { return r.kind == resultDone }

// IsRetry reports whether the result is a bounded Retry(), returning
// its delay.
func (r Result) IsRetry() (time.Duration, bool) {
	return r.delay, r.kind == resultRetry
}

// IsRetryUnbounded reports whether the result is RetryUnbounded(),
// returning its delay.
func (r Result) IsRetryUnbounded() (time.Duration, bool) {
	return r.delay, r.kind == resultRetryUnbounded
}

// IsFail reports whether the result is Fail(), returning its error.
func (r Result) IsFail() (error, bool) {
	return r.err, r.kind == resultFail
}
