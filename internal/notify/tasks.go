package notify

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// TypeEmailDelivery is the asynq task type for transactional emails. The
// dispatcher enqueues these; the worker process delivers them.
const TypeEmailDelivery = "email:deliver"

// EmailPayload is the serialized body of an email delivery task.
type EmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Topic   string `json:"topic"`
}

// NewEmailTask builds an email delivery task.
func NewEmailTask(p EmailPayload) (*asynq.Task, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("notify: encode email payload: %w", err)
	}
	return asynq.NewTask(TypeEmailDelivery, body, asynq.MaxRetry(5), asynq.Queue("notifications")), nil
}
