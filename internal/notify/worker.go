package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/maison-living/backend-maison/internal/common"
)

// EmailWorker delivers queued email tasks. It runs inside the worker binary,
// registered on the asynq mux for TypeEmailDelivery.
type EmailWorker struct {
	Mail   common.EmailSender
	Logger zerolog.Logger
}

// HandleEmailDelivery processes one email task. Decode failures are
// unrecoverable and skip asynq's retry; send failures are returned so asynq
// retries with backoff.
func (w *EmailWorker) HandleEmailDelivery(_ context.Context, task *asynq.Task) error {
	var payload EmailPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("notify: decode email task: %w: %w", err, asynq.SkipRetry)
	}
	if w.Mail == nil {
		w.Logger.Warn().Str("to", payload.To).Msg("email sender not configured, dropping")
		return nil
	}
	if err := w.Mail.Send(payload.To, payload.Subject, payload.HTML); err != nil {
		return fmt.Errorf("notify: send %s email to %s: %w", payload.Topic, payload.To, err)
	}
	w.Logger.Info().Str("topic", payload.Topic).Str("to", payload.To).Msg("email delivered")
	return nil
}
