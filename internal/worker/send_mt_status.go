package worker

import (
	"context"
	"encoding/json"

	"github.com/rorsat-ltd/kosmos/internal/jobs"
)

// SendMTStatus reports an MT message's final delivery outcome to its
// tenant. Unlike the other two job kinds, it has no 24-hour give-up
// bound — it retries forever until delivered.
func (w *Worker) SendMTStatus(ctx context.Context, body json.RawMessage) jobs.Result {
	id, err := decodePayload(body)
	if err != nil {
		return jobs.Fail(err)
	}

	msg, err := w.Store.GetMTMessage(ctx, id)
	if err != nil {
		w.Log.Warn().Err(err).Str("mt_message", id.String()).Msg("failed to load mt message")
		return jobs.RetryUnbounded(jobs.RetryDelay)
	}

	if msg.MessageStatus == nil {
		return jobs.Done()
	}

	target, err := w.Store.GetTarget(ctx, msg.Target)
	if err != nil {
		w.Log.Warn().Err(err).Msg("failed to load mt message target")
		return jobs.RetryUnbounded(jobs.RetryDelay)
	}

	payloadBody, err := json.Marshal(buildMTStatusPayload(msg))
	if err != nil {
		return jobs.Fail(err)
	}

	if err := w.Webhook.Send(ctx, target.Endpoint, target.HMACKey, payloadBody); err != nil {
		w.Log.Warn().Err(err).Str("endpoint", target.Endpoint).Msg("mt status webhook delivery failed")
		return jobs.RetryUnbounded(jobs.RetryDelay)
	}

	return jobs.Done()
}
