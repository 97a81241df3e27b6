package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionPurge is the task type for purging expired session audit rows.
	TaskSessionPurge = "session:purge"
)

// SessionPurgePayload bounds a purge run.
type SessionPurgePayload struct {
	Before time.Time `json:"before"`
}

// NewSessionPurgeTask constructs a purge task. A zero Before purges
// everything that has expired by the time the task runs.
func NewSessionPurgeTask(payload SessionPurgePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionPurge, data), nil
}

// SessionPurger removes expired session records from durable storage.
type SessionPurger interface {
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error)
}

// NewSessionPurgeHandler builds the handler for TaskSessionPurge tasks.
// Metrics may be nil.
func NewSessionPurgeHandler(purger SessionPurger, logger *slog.Logger, metrics *Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SessionPurgePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		before := payload.Before
		if before.IsZero() {
			before = time.Now().UTC()
		}
		purged, err := purger.DeleteExpiredSessions(ctx, before)
		if err != nil {
			logger.Error("session purge failed", slog.Any("error", err))
			return err
		}
		metrics.AddPurged(purged)
		logger.Info("session purge complete",
			slog.Int64("purged", purged),
			slog.Time("before", before))
		return nil
	}
}
