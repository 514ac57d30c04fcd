package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/hugh/orgauth/internal/auth"
	"github.com/hugh/orgauth/internal/authz"
)

// TaskEnqueuer is the part of *asynq.Client the enqueuer uses.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer hands session and audit bookkeeping to the worker.
type Enqueuer struct {
	client TaskEnqueuer
	now    func() time.Time
}

var (
	_ auth.LoginRecorder = (*Enqueuer)(nil)
	_ authz.Auditor      = (*Enqueuer)(nil)
)

func NewEnqueuer(client TaskEnqueuer) *Enqueuer {
	return &Enqueuer{client: client, now: time.Now}
}

// RecordLogin enqueues a last-login refresh. Repeated logins within a minute
// collapse into one task.
func (e *Enqueuer) RecordLogin(ctx context.Context, userID uuid.UUID, at time.Time) error {
	task, err := NewTouchLoginTask(TouchLoginPayload{UserID: userID, At: at})
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueLow),
		asynq.MaxRetry(3),
		asynq.Unique(time.Minute),
	)
	if err != nil && !errors.Is(err, asynq.ErrDuplicateTask) {
		return fmt.Errorf("enqueue %s: %w", TypeTouchLogin, err)
	}
	return nil
}

func (e *Enqueuer) RecordDenial(ctx context.Context, userID uuid.UUID, orgID *uuid.UUID, permission string, kind authz.Kind) error {
	task, err := NewRecordDenialTask(RecordDenialPayload{
		UserID:         userID,
		OrganizationID: orgID,
		Permission:     permission,
		Outcome:        kind.String(),
		OccurredAt:     e.now(),
	})
	if err != nil {
		return err
	}
	if _, err := e.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.MaxRetry(5)); err != nil {
		return fmt.Errorf("enqueue %s: %w", TypeRecordDenial, err)
	}
	return nil
}
