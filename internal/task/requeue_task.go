package task

import (
	"context"

	"github.com/rs/zerolog"
)

// StaleRequeuer returns jobs abandoned by crashed workers to the queue.
type StaleRequeuer interface {
	RequeueStale(ctx context.Context) (int, error)
}

// RequeueStaleJobsTask runs once at worker startup.
type RequeueStaleJobsTask struct {
	queue  StaleRequeuer
	logger zerolog.Logger
}

func NewRequeueStaleJobsTask(queue StaleRequeuer, logger zerolog.Logger) *RequeueStaleJobsTask {
	return &RequeueStaleJobsTask{queue: queue, logger: logger}
}

func (t *RequeueStaleJobsTask) Name() string {
	return "requeue_stale_jobs"
}

func (t *RequeueStaleJobsTask) Run(ctx context.Context) error {
	n, err := t.queue.RequeueStale(ctx)
	if n > 0 {
		t.logger.Info().Int("count", n).Msg("requeued stale pipeline jobs")
	}
	return err
}
