package tasks

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Task type names
const (
	TypeTouchLogin   = "session:touch_login"
	TypeRecordDenial = "authz:record_denial"
)

// Queue names, matching the weights in pkg/queue.
const (
	QueueDefault = "default"
	QueueLow     = "low"
)

// TouchLoginPayload contains the data for a last-login refresh
type TouchLoginPayload struct {
	UserID uuid.UUID `json:"user_id"`
	At     time.Time `json:"at"`
}

func NewTouchLoginTask(payload TouchLoginPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeTouchLogin, data), nil
}

// RecordDenialPayload contains the data for an authorization audit row
type RecordDenialPayload struct {
	UserID         uuid.UUID  `json:"user_id"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
	Permission     string     `json:"permission"`
	Outcome        string     `json:"outcome"` // authz.Kind string: "denied" or "not_member"
	OccurredAt     time.Time  `json:"occurred_at"`
}

func NewRecordDenialTask(payload RecordDenialPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeRecordDenial, data), nil
}
