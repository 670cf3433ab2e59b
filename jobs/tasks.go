package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/sentra-auth/sentra/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionSweep deactivates sessions whose refresh window elapsed.
	TaskSessionSweep = "sessions:sweep"
)

// SessionStore is the slice of the session repository the sweep needs.
type SessionStore interface {
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

// NewSessionSweepTask constructs an Asynq task for the periodic sweep.
func NewSessionSweepTask() *asynq.Task {
	return asynq.NewTask(TaskSessionSweep, nil)
}

// NewSessionSweepHandler builds the handler that retires expired sessions.
// The sweep is best-effort hygiene: verification never trusts a row whose
// expiry has passed, so a delayed run does not widen the token window.
func NewSessionSweepHandler(store SessionStore, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("session_sweep")
		count, err := store.DeactivateExpired(ctx, time.Now().UTC())
		if err != nil {
			logger.Error("session sweep", slog.Any("error", err))
			return tracker.End(err)
		}
		metrics.AddReapedSessions(int(count))
		if count > 0 {
			logger.Info("session sweep", slog.Int64("deactivated", count))
		}
		return tracker.End(nil)
	}
}
