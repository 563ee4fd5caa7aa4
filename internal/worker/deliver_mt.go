package worker

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/rorsat-ltd/kosmos/internal/jobs"
	"github.com/rorsat-ltd/kosmos/internal/mq"
	"github.com/rorsat-ltd/kosmos/internal/store"
	"github.com/rorsat-ltd/kosmos/internal/wire"
)

// DeliverMT submits an MT message to the upstream gateway and records
// the outcome.
func (w *Worker) DeliverMT(ctx context.Context, body json.RawMessage) jobs.Result {
	id, err := decodePayload(body)
	if err != nil {
		return jobs.Fail(err)
	}

	msg, err := w.Store.GetMTMessage(ctx, id)
	if err != nil {
		w.Log.Warn().Err(err).Str("mt_message", id.String()).Msg("failed to load mt message")
		return jobs.Retry(jobs.RetryDelay)
	}

	dialer := net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", w.UpstreamAddr)
	if err != nil {
		w.Log.Warn().Err(err).Msg("failed to connect to upstream gateway")
		return jobs.Retry(jobs.RetryDelay)
	}
	defer conn.Close()

	clientMessageID, err := randomClientMessageID()
	if err != nil {
		return jobs.Fail(err)
	}

	out, err := wire.BuildMTMessage(clientMessageID, msg.IMEI, msg.Priority, msg.Data)
	if err != nil {
		return jobs.Fail(err)
	}

	if _, err := out.WriteTo(conn); err != nil {
		w.Log.Warn().Err(err).Msg("failed to write mt message upstream")
		return jobs.Retry(jobs.RetryDelay)
	}

	inPM, err := wire.ReadProtocolMessage(conn)
	if err != nil {
		w.Log.Warn().Err(err).Msg("failed to read upstream response")
		return jobs.Retry(jobs.RetryDelay)
	}

	resp, err := wire.ParseResponseMessage(inPM)
	if err != nil {
		w.Log.Warn().Err(err).Msg("failed to decode upstream response")
		return jobs.Retry(jobs.RetryDelay)
	}

	if resp.Confirmation.ClientMessageID != clientMessageID || resp.Confirmation.IMEI != msg.IMEI {
		w.Log.Warn().Msg("upstream confirmation mismatch, likely reply misdelivery")
		return jobs.Retry(jobs.RetryDelay)
	}

	expired := time.Since(msg.Received) > jobs.RetryBound

	var (
		processing store.ProcessingStatus
		terminal   bool
		unexpected bool
		messageSt  store.MessageStatus
	)

	switch resp.Confirmation.Status {
	case wire.StatusSuccessful:
		processing, messageSt, terminal = store.ProcessingDone, store.MessageStatusDelivered, true

	case wire.StatusSuccessfulNoPayload:
		return jobs.Retry(jobs.RetryDelay)

	case wire.StatusUnknownIMEI:
		processing, messageSt, terminal = store.ProcessingDone, store.MessageStatusInvalidImei, true

	case wire.StatusTooLarge:
		processing, messageSt, terminal = store.ProcessingDone, store.MessageStatusPayloadSizeExceeded, true

	case wire.StatusQueueFull:
		if !expired {
			return jobs.Retry(jobs.RetryDelay)
		}
		processing, messageSt, terminal = store.ProcessingFailed, store.MessageStatusMessageQueueFull, true

	case wire.StatusResourcesUnavailable:
		if !expired {
			return jobs.Retry(jobs.RetryDelay)
		}
		processing, messageSt, terminal = store.ProcessingFailed, store.MessageStatusResourcesUnavailable, true

	default:
		unexpected = true
	}

	if unexpected {
		if err := w.Store.SetMTFailed(ctx, id); err != nil {
			return jobs.Retry(jobs.RetryDelay)
		}
		if err := jobs.Enqueue(ctx, w.Queue, mq.KindSendMTStatus, encodeID(id)); err != nil {
			w.Log.Error().Err(err).Msg("failed to enqueue send_mt_status")
		}
		return jobs.Fail(fmt.Errorf("unexpected mt confirmation status %d", resp.Confirmation.Status))
	}

	if terminal {
		if err := w.Store.SetMTTerminal(ctx, id, processing, messageSt); err != nil {
			return jobs.Retry(jobs.RetryDelay)
		}
		if err := jobs.Enqueue(ctx, w.Queue, mq.KindSendMTStatus, encodeID(id)); err != nil {
			w.Log.Error().Err(err).Msg("failed to enqueue send_mt_status")
		}
	}

	return jobs.Done()
}

func randomClientMessageID() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("worker: generate client message id: %w", err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}
