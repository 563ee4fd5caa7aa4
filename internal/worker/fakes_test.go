package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/rorsat-ltd/kosmos/internal/store"
)

var errSendFailed = errors.New("worker: fake webhook send failed")

// fakeStore is an in-memory messageStore double for job handler tests.
type fakeStore struct {
	mu        sync.Mutex
	mo        map[uuid.UUID]*store.MOMessage
	mt        map[uuid.UUID]*store.MTMessage
	tgt       map[uuid.UUID]*store.Target
	imeiToTgt map[string]uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		mo:        make(map[uuid.UUID]*store.MOMessage),
		mt:        make(map[uuid.UUID]*store.MTMessage),
		tgt:       make(map[uuid.UUID]*store.Target),
		imeiToTgt: make(map[string]uuid.UUID),
	}
}

func (f *fakeStore) GetMOMessage(ctx context.Context, id uuid.UUID) (*store.MOMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.mo[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeStore) SetMOProcessingStatus(ctx context.Context, id uuid.UUID, status store.ProcessingStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.mo[id]; ok {
		m.ProcessingStatus = status
	}
	return nil
}

func (f *fakeStore) GetMTMessage(ctx context.Context, id uuid.UUID) (*store.MTMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.mt[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeStore) SetMTTerminal(ctx context.Context, id uuid.UUID, processing store.ProcessingStatus, message store.MessageStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.mt[id]; ok {
		m.ProcessingStatus = processing
		m.MessageStatus = &message
	}
	return nil
}

func (f *fakeStore) SetMTFailed(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.mt[id]; ok {
		m.ProcessingStatus = store.ProcessingFailed
	}
	return nil
}

func (f *fakeStore) GetTarget(ctx context.Context, id uuid.UUID) (*store.Target, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tgt[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeStore) GetTargetByIMEI(ctx context.Context, imei string) (*store.Target, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.imeiToTgt[imei]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *f.tgt[id]
	return &cp, nil
}

// fakeWebhook is an in-memory webhookSender double.
type fakeWebhook struct {
	mu    sync.Mutex
	sent  []fakeWebhookCall
	fail  bool
}

type fakeWebhookCall struct {
	Endpoint string
	Key      []byte
	Body     []byte
}

func (f *fakeWebhook) Send(ctx context.Context, endpoint string, key, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errSendFailed
	}
	f.sent = append(f.sent, fakeWebhookCall{Endpoint: endpoint, Key: key, Body: body})
	return nil
}
