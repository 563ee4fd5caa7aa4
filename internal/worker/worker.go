// Package worker implements the three durable job handlers: process_mo
// delivers an MO message to its tenant's webhook, deliver_mt submits an
// MT message to the upstream gateway, and send_mt_status reports the
// final MT delivery outcome back to the tenant.
package worker

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rorsat-ltd/kosmos/internal/jobs"
	"github.com/rorsat-ltd/kosmos/internal/mq"
	"github.com/rorsat-ltd/kosmos/internal/store"
	"github.com/rorsat-ltd/kosmos/internal/webhook"
)

// UpstreamAddress is the fixed Iridium DirectIP gateway MT messages are
// submitted to.
const UpstreamAddress = "directip.sbd.iridium.com:10800"

// messageStore is the slice of *store.Store the job handlers need.
// Narrowing to an interface here (rather than depending on *store.Store
// directly) lets package tests substitute an in-memory fake instead of
// a live Postgres connection.
type messageStore interface {
	GetMOMessage(ctx context.Context, id uuid.UUID) (*store.MOMessage, error)
	SetMOProcessingStatus(ctx context.Context, id uuid.UUID, status store.ProcessingStatus) error
	GetMTMessage(ctx context.Context, id uuid.UUID) (*store.MTMessage, error)
	SetMTTerminal(ctx context.Context, id uuid.UUID, processing store.ProcessingStatus, message store.MessageStatus) error
	SetMTFailed(ctx context.Context, id uuid.UUID) error
	GetTarget(ctx context.Context, id uuid.UUID) (*store.Target, error)
	GetTargetByIMEI(ctx context.Context, imei string) (*store.Target, error)
}

// webhookSender is the slice of *webhook.Client the job handlers need.
type webhookSender interface {
	Send(ctx context.Context, endpoint string, key, body []byte) error
}

// Worker holds the collaborators every job handler needs.
type Worker struct {
	Store        messageStore
	Webhook      webhookSender
	Queue        mq.Queue
	UpstreamAddr string
	Log          zerolog.Logger
}

// New builds a Worker. upstreamAddr overrides UpstreamAddress when
// non-empty, which tests use to point at a local listener.
func New(s *store.Store, wh *webhook.Client, q mq.Queue, upstreamAddr string, log zerolog.Logger) *Worker {
	if upstreamAddr == "" {
		upstreamAddr = UpstreamAddress
	}
	return &Worker{Store: s, Webhook: wh, Queue: q, UpstreamAddr: upstreamAddr, Log: log}
}

// jobPayload is the body every one of this gateway's three job kinds
// carries: the id of the row the job operates on.
type jobPayload struct {
	ID uuid.UUID `json:"id"`
}

func decodePayload(body json.RawMessage) (uuid.UUID, error) {
	var p jobPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return uuid.UUID{}, err
	}
	return p.ID, nil
}

// encodeID marshals an id into a job body for Enqueue.
func encodeID(id uuid.UUID) json.RawMessage {
	b, _ := json.Marshal(jobPayload{ID: id})
	return b
}

// Register attaches all three job handlers to a Runner.
func (w *Worker) Register(r *jobs.Runner) {
	r.Handle(mq.KindProcessMO, w.ProcessMO)
	r.Handle(mq.KindDeliverMT, w.DeliverMT)
	r.Handle(mq.KindSendMTStatus, w.SendMTStatus)
}
