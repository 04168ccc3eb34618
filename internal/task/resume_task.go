package task

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tgo/docqa/internal/model"
	"github.com/tgo/docqa/internal/queue"
)

// StalledFinder lists documents left in a non-terminal status.
type StalledFinder interface {
	FindStalled(ctx context.Context, before time.Time) ([]model.Document, error)
}

// ResumeStalledDocumentsTask queues documents whose pipeline stopped without
// reaching ready or failed, e.g. because the enqueue after upload failed or
// the worker died past its lease.
type ResumeStalledDocumentsTask struct {
	docs   StalledFinder
	queue  queue.Queue
	after  time.Duration
	logger zerolog.Logger
}

func NewResumeStalledDocumentsTask(docs StalledFinder, q queue.Queue, after time.Duration, logger zerolog.Logger) *ResumeStalledDocumentsTask {
	if after <= 0 {
		after = 30 * time.Minute
	}
	return &ResumeStalledDocumentsTask{docs: docs, queue: q, after: after, logger: logger}
}

func (t *ResumeStalledDocumentsTask) Name() string {
	return "resume_stalled_documents"
}

func (t *ResumeStalledDocumentsTask) Run(ctx context.Context) error {
	docs, err := t.docs.FindStalled(ctx, time.Now().Add(-t.after))
	if err != nil {
		return err
	}

	queued := 0
	for _, doc := range docs {
		if err := t.queue.Enqueue(ctx, queue.Job{DocumentID: doc.ID, From: queue.StageExtract}); err != nil {
			t.logger.Error().Err(err).Str("document_id", doc.ID.String()).Msg("failed to queue stalled document")
			continue
		}
		queued++
	}
	if queued > 0 {
		t.logger.Info().Int("count", queued).Msg("queued stalled documents")
	}
	return nil
}
