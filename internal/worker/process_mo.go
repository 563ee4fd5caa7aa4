package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rorsat-ltd/kosmos/internal/jobs"
	"github.com/rorsat-ltd/kosmos/internal/store"
)

// ProcessMO delivers a successfully-received MO message to its owning
// tenant's webhook.
func (w *Worker) ProcessMO(ctx context.Context, body json.RawMessage) jobs.Result {
	id, err := decodePayload(body)
	if err != nil {
		return jobs.Fail(err)
	}

	msg, err := w.Store.GetMOMessage(ctx, id)
	if err != nil {
		w.Log.Warn().Err(err).Str("mo_message", id.String()).Msg("failed to load mo message")
		return jobs.Retry(jobs.RetryDelay)
	}

	if !deliverableSessionStatus(msg.SessionStatus) {
		if err := w.Store.SetMOProcessingStatus(ctx, id, store.ProcessingDone); err != nil {
			return jobs.Retry(jobs.RetryDelay)
		}
		return jobs.Done()
	}

	target, err := w.Store.GetTargetByIMEI(ctx, msg.IMEI)
	if errors.Is(err, store.ErrNotFound) {
		if err := w.Store.SetMOProcessingStatus(ctx, id, store.ProcessingDone); err != nil {
			return jobs.Retry(jobs.RetryDelay)
		}
		return jobs.Done()
	}
	if err != nil {
		return jobs.Retry(jobs.RetryDelay)
	}

	payloadBody, err := json.Marshal(buildMOPayload(msg))
	if err != nil {
		return jobs.Fail(err)
	}

	sendErr := w.Webhook.Send(ctx, target.Endpoint, target.HMACKey, payloadBody)
	if sendErr == nil {
		if err := w.Store.SetMOProcessingStatus(ctx, id, store.ProcessingDone); err != nil {
			return jobs.Retry(jobs.RetryDelay)
		}
		return jobs.Done()
	}

	w.Log.Warn().Err(sendErr).Str("endpoint", target.Endpoint).Msg("mo webhook delivery failed")

	if time.Since(msg.Received) > jobs.RetryBound {
		if err := w.Store.SetMOProcessingStatus(ctx, id, store.ProcessingFailed); err != nil {
			return jobs.Retry(jobs.RetryDelay)
		}
		return jobs.Done()
	}

	return jobs.Retry(jobs.RetryDelay)
}

func deliverableSessionStatus(s store.SessionStatus) bool {
	switch s {
	case store.SessionStatusSuccessful, store.SessionStatusSuccessfulTooLarge, store.SessionStatusSuccessfulUnacceptableLocation:
		return true
	default:
		return false
	}
}
