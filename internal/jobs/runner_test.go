package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rorsat-ltd/kosmos/internal/mq"
)

func TestRunner_DoneAcksJob(t *testing.T) {
	q := mq.NewMemoryQueue()
	defer q.Close()

	r := NewRunner(q, zerolog.Nop())
	var calls int32
	r.Handle(mq.KindProcessMO, func(ctx context.Context, body json.RawMessage) Result {
		atomic.AddInt32(&calls, 1)
		return Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, Enqueue(ctx, q, mq.KindProcessMO, json.RawMessage(`{"x":1}`)))

	go r.Run(ctx)
	<-ctx.Done()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRunner_RetryRedeliversAfterDelay(t *testing.T) {
	q := mq.NewMemoryQueue()
	defer q.Close()

	r := NewRunner(q, zerolog.Nop())
	var calls int32
	r.Handle(mq.KindDeliverMT, func(ctx context.Context, body json.RawMessage) Result {
		n := atomic.AddInt32(&calls, 1)
		if n < 2 {
			return Retry(30 * time.Millisecond)
		}
		return Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, Enqueue(ctx, q, mq.KindDeliverMT, json.RawMessage(`{}`)))

	go r.Run(ctx)
	deadline := time.After(800 * time.Millisecond)
	for atomic.LoadInt32(&calls) < 2 {
		select {
		case <-deadline:
			t.Fatal("expected retry redelivery")
		case <-time.After(10 * time.Millisecond):
		}
	}
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(2))
}

func TestRunner_FailDeadLettersImmediately(t *testing.T) {
	q := mq.NewMemoryQueue()
	defer q.Close()

	r := NewRunner(q, zerolog.Nop())
	var calls int32
	r.Handle(mq.KindSendMTStatus, func(ctx context.Context, body json.RawMessage) Result {
		atomic.AddInt32(&calls, 1)
		return Fail(errors.New("boom"))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, Enqueue(ctx, q, mq.KindSendMTStatus, json.RawMessage(`{}`)))

	go r.Run(ctx)
	<-ctx.Done()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRunner_RetryBeyondBoundDeadLetters(t *testing.T) {
	q := mq.NewMemoryQueue()
	defer q.Close()

	r := NewRunner(q, zerolog.Nop())
	var calls int32
	r.Handle(mq.KindDeliverMT, func(ctx context.Context, body json.RawMessage) Result {
		atomic.AddInt32(&calls, 1)
		return Retry(time.Millisecond)
	})

	env := Envelope{FirstEnqueued: time.Now().Add(-25 * time.Hour), Body: json.RawMessage(`{}`)}
	payload, err := json.Marshal(env)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, q.Publish(ctx, mq.KindDeliverMT, payload, 0))

	go r.Run(ctx)
	<-ctx.Done()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
