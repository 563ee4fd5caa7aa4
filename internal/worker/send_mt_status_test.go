package worker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rorsat-ltd/kosmos/internal/store"
)

func TestSendMTStatus_NilMessageStatusIsNoOp(t *testing.T) {
	id := uuid.New()
	fs := newFakeStore()
	fs.mt[id] = &store.MTMessage{ID: id, Received: time.Now()}
	fw := &fakeWebhook{}

	w := newTestWorker(fs, fw)
	result := w.SendMTStatus(context.Background(), encodeID(id))

	assertDone(t, result)
	assert.Empty(t, fw.sent)
}

func TestSendMTStatus_SendsStatusWebhook(t *testing.T) {
	id := uuid.New()
	targetID := uuid.New()
	delivered := store.MessageStatusDelivered
	fs := newFakeStore()
	fs.mt[id] = &store.MTMessage{ID: id, MessageStatus: &delivered, Target: targetID, Received: time.Now()}
	fs.tgt[targetID] = &store.Target{ID: targetID, HMACKey: []byte("k"), Endpoint: "http://tenant.example/status"}
	fw := &fakeWebhook{}

	w := newTestWorker(fs, fw)
	result := w.SendMTStatus(context.Background(), encodeID(id))

	assertDone(t, result)
	require.Len(t, fw.sent, 1)
	assert.Equal(t, "http://tenant.example/status", fw.sent[0].Endpoint)
}

func TestSendMTStatus_FailureRetriesUnbounded(t *testing.T) {
	id := uuid.New()
	targetID := uuid.New()
	delivered := store.MessageStatusDelivered
	fs := newFakeStore()
	fs.mt[id] = &store.MTMessage{ID: id, MessageStatus: &delivered, Target: targetID, Received: time.Now().Add(-48 * time.Hour)}
	fs.tgt[targetID] = &store.Target{ID: targetID, HMACKey: []byte("k"), Endpoint: "http://tenant.example/status"}
	fw := &fakeWebhook{fail: true}

	w := newTestWorker(fs, fw)
	result := w.SendMTStatus(context.Background(), encodeID(id))

	assertRetryUnbounded(t, result)
}
