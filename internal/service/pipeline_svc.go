package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog"

	"github.com/tgo/docqa/internal/chunker"
	"github.com/tgo/docqa/internal/embedding"
	"github.com/tgo/docqa/internal/extract"
	"github.com/tgo/docqa/internal/model"
	"github.com/tgo/docqa/internal/queue"
	"github.com/tgo/docqa/internal/repository"
	"github.com/tgo/docqa/internal/retry"
	"github.com/tgo/docqa/internal/storage"
)

type PipelineConfig struct {
	EmbedMaxAttempts    int
	EmbedRetryBaseDelay time.Duration
	LeaseTTL            time.Duration
}

// PipelineService drives a document from pending to ready (or failed):
// extraction, chunking, embedding. It is the only writer of document status.
type PipelineService struct {
	docs      DocumentStore
	chunks    ChunkStore
	store     storage.Store
	extractor Extractor
	chunker   *chunker.Chunker
	embedder  embedding.Embedder
	lease     queue.Lease
	cfg       PipelineConfig
	now       func() time.Time
	logger    zerolog.Logger
}

func NewPipelineService(
	docs DocumentStore,
	chunks ChunkStore,
	store storage.Store,
	extractor Extractor,
	ch *chunker.Chunker,
	embedder embedding.Embedder,
	lease queue.Lease,
	cfg PipelineConfig,
	logger zerolog.Logger,
) *PipelineService {
	if cfg.EmbedMaxAttempts <= 0 {
		cfg.EmbedMaxAttempts = 3
	}
	if cfg.EmbedRetryBaseDelay <= 0 {
		cfg.EmbedRetryBaseDelay = time.Second
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 30 * time.Minute
	}
	if ch == nil {
		ch = chunker.New()
	}
	return &PipelineService{
		docs:      docs,
		chunks:    chunks,
		store:     store,
		extractor: extractor,
		chunker:   ch,
		embedder:  embedder,
		lease:     lease,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger.With().Str("component", "pipeline").Logger(),
	}
}

// stageError is a failure that ends the run with the document marked failed.
// Error is what the owner sees; cause carries provider and database detail
// for the logs only.
type stageError struct {
	stage  string
	reason string
	cause  error
}

func (e *stageError) Error() string { return e.stage + ": " + e.reason }
func (e *stageError) Unwrap() error { return e.cause }

func stageFailed(stage string, cause error, format string, args ...any) error {
	return &stageError{stage: stage, reason: fmt.Sprintf(format, args...), cause: cause}
}

// describeFailure reduces an external call error to a category safe to show
// the document owner.
func describeFailure(err error) string {
	var apiErr *embedding.APIError
	switch {
	case errors.As(err, &apiErr):
		switch {
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return fmt.Sprintf("provider rejected credentials (%d)", apiErr.StatusCode)
		case apiErr.StatusCode == 429:
			return "provider rate limit reached (429)"
		case apiErr.StatusCode >= 500:
			return fmt.Sprintf("provider unavailable (%d)", apiErr.StatusCode)
		default:
			return fmt.Sprintf("provider rejected request (%d)", apiErr.StatusCode)
		}
	case errors.Is(err, embedding.ErrDimensionMismatch):
		return "provider returned a vector of the wrong size"
	case errors.Is(err, context.DeadlineExceeded):
		return "provider timed out"
	case retry.IsTransient(err):
		return "provider unavailable after retries"
	default:
		return "provider request failed"
	}
}

// describeExtraction names each strategy's outcome without its error text.
func describeExtraction(err error) string {
	var noText *extract.NoTextError
	if !errors.As(err, &noText) || len(noText.Attempts) == 0 {
		return "no text could be extracted"
	}
	outcomes := make([]string, len(noText.Attempts))
	for i, a := range noText.Attempts {
		if a.Err == nil {
			outcomes[i] = a.Strategy + ": no text"
		} else {
			outcomes[i] = a.Strategy + ": failed"
		}
	}
	return "no text could be extracted (" + strings.Join(outcomes, ", ") + ")"
}

// Process runs one job. Returned errors are infrastructure problems worth
// logging; stage failures are recorded on the document instead.
func (s *PipelineService) Process(ctx context.Context, job queue.Job) error {
	log := s.logger.With().Str("document_id", job.DocumentID.String()).Str("from", string(job.From)).Logger()

	release, err := s.lease.Acquire(ctx, job.DocumentID, s.cfg.LeaseTTL)
	if errors.Is(err, queue.ErrLeaseHeld) {
		log.Info().Msg("document already being processed, skipping job")
		return nil
	}
	if err != nil {
		return err
	}
	defer release()

	doc, err := s.docs.FindByID(ctx, job.DocumentID)
	if errors.Is(err, model.ErrDocumentNotFound) {
		log.Info().Msg("document deleted before processing")
		return nil
	}
	if err != nil {
		return err
	}

	start := time.Now()
	if job.From == queue.StageEmbed && s.canResumeAtEmbedding(ctx, doc) {
		err = s.runFrom(ctx, doc, model.DocumentStatusEmbedding)
	} else {
		err = s.runFrom(ctx, doc, model.DocumentStatusExtracting)
	}

	switch {
	case err == nil:
		log.Info().Dur("duration", time.Since(start)).Msg("document ready")
		return nil
	case errors.Is(err, repository.ErrDocumentGone), errors.Is(err, model.ErrDocumentNotFound):
		log.Info().Msg("document deleted during processing")
		return nil
	}

	var se *stageError
	if !errors.As(err, &se) {
		se = &stageError{stage: "pipeline", reason: "internal error", cause: err}
	}
	log.Warn().Err(se.cause).Str("stage", se.stage).Str("reason", se.reason).Msg("document processing failed")

	if ferr := s.docs.UpdateStatus(ctx, doc.ID, model.DocumentStatusFailed, se.Error()); ferr != nil {
		if errors.Is(ferr, repository.ErrDocumentGone) {
			return nil
		}
		return fmt.Errorf("record failure: %w", ferr)
	}
	return nil
}

func (s *PipelineService) canResumeAtEmbedding(ctx context.Context, doc *model.Document) bool {
	if doc.ExtractedText == nil {
		return false
	}
	n, err := s.chunks.CountByDocument(ctx, doc.ID)
	return err == nil && n > 0
}

func (s *PipelineService) runFrom(ctx context.Context, doc *model.Document, from model.DocumentStatus) error {
	if from == model.DocumentStatusExtracting {
		text, err := s.extractStage(ctx, doc)
		if err != nil {
			return err
		}
		if err := s.chunkStage(ctx, doc, text); err != nil {
			return err
		}
	}

	if err := s.docs.UpdateStatus(ctx, doc.ID, model.DocumentStatusEmbedding, ""); err != nil {
		return err
	}
	if err := s.embedStage(ctx, doc); err != nil {
		return err
	}
	return s.docs.MarkReady(ctx, doc.ID, s.now())
}

func (s *PipelineService) extractStage(ctx context.Context, doc *model.Document) (string, error) {
	if err := s.docs.UpdateStatus(ctx, doc.ID, model.DocumentStatusExtracting, ""); err != nil {
		return "", err
	}

	data, err := storage.ReadAll(ctx, s.store, doc.StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		// the file goes away together with the document on delete
		if _, ferr := s.docs.FindByID(ctx, doc.ID); errors.Is(ferr, model.ErrDocumentNotFound) {
			return "", repository.ErrDocumentGone
		}
	}
	if err != nil {
		return "", stageFailed("extraction", err, "stored file could not be read")
	}

	res, err := s.extractor.Extract(ctx, extract.Input{DocumentID: doc.ID, Data: data})
	if err != nil {
		return "", stageFailed("extraction", err, "%s", describeExtraction(err))
	}
	// Postgres text columns reject NUL
	text := strings.ReplaceAll(res.Text, "\x00", "")

	metadata := model.JSONMap{}
	for k, v := range doc.Metadata {
		metadata[k] = v
	}
	metadata[model.MetaExtractionMethod] = res.Method
	if len(res.Info) > 0 {
		metadata[model.MetaPDFInfo] = res.Info
	}

	if err := s.docs.SaveExtraction(ctx, doc.ID, text, res.PageCount, metadata); err != nil {
		if errors.Is(err, repository.ErrDocumentGone) {
			return "", err
		}
		return "", stageFailed("extraction", err, "extracted text could not be saved")
	}
	if err := s.docs.RefreshSearchVector(ctx, doc.ID); err != nil {
		if errors.Is(err, repository.ErrDocumentGone) {
			return "", err
		}
		s.logger.Warn().Err(err).Str("document_id", doc.ID.String()).Msg("failed to refresh search vector")
	}
	return text, nil
}

func (s *PipelineService) chunkStage(ctx context.Context, doc *model.Document, text string) error {
	if err := s.docs.UpdateStatus(ctx, doc.ID, model.DocumentStatusChunking, ""); err != nil {
		return err
	}

	pieces := s.chunker.Split(text)
	chunks := make([]model.DocumentChunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = model.DocumentChunk{
			ID:         uuid.New(),
			DocumentID: doc.ID,
			Ordinal:    i,
			Content:    p,
		}
	}

	if err := s.chunks.ReplaceForDocument(ctx, doc.ID, chunks); err != nil {
		if errors.Is(err, repository.ErrDocumentGone) {
			return err
		}
		return stageFailed("chunking", err, "chunks could not be saved")
	}
	if len(chunks) == 0 {
		s.logger.Info().Str("document_id", doc.ID.String()).Msg("extracted text is blank, no chunks created")
	}
	return nil
}

// embedStage embeds every chunk still missing a vector. One chunk failing
// does not stop the others; the stage fails afterwards naming the first.
func (s *PipelineService) embedStage(ctx context.Context, doc *model.Document) error {
	pending, err := s.chunks.FindUnembedded(ctx, doc.ID)
	if err != nil {
		return stageFailed("embedding", err, "chunks could not be loaded")
	}

	log := s.logger.With().Str("document_id", doc.ID.String()).Logger()
	var (
		firstFailed *model.DocumentChunk
		firstErr    error
		failures    int
	)

	for i := range pending {
		chunk := &pending[i]

		var vec []float32
		err := retry.Do(ctx, retry.Policy{
			MaxAttempts: s.cfg.EmbedMaxAttempts,
			BaseDelay:   s.cfg.EmbedRetryBaseDelay,
			OnRetry: func(attempt int, delay time.Duration, err error) {
				log.Warn().Err(err).Int("ordinal", chunk.Ordinal).Int("attempt", attempt).Dur("delay", delay).
					Msg("embedding attempt failed, retrying")
			},
		}, func(ctx context.Context) error {
			var err error
			vec, err = s.embedder.Embed(ctx, chunk.Content)
			return err
		})

		if err != nil {
			failures++
			if firstFailed == nil {
				firstFailed, firstErr = chunk, err
			}
			log.Error().Err(err).Int("ordinal", chunk.Ordinal).Str("chunk_id", chunk.ID.String()).Msg("chunk embedding failed")
			if serr := s.chunks.SetEmbeddingError(ctx, chunk.ID, describeFailure(err)); serr != nil {
				if errors.Is(serr, repository.ErrDocumentGone) {
					return serr
				}
				log.Warn().Err(serr).Msg("failed to record chunk embedding error")
			}
			continue
		}

		if err := s.chunks.SetEmbedding(ctx, chunk.ID, pgvector.NewVector(vec)); err != nil {
			if errors.Is(err, repository.ErrDocumentGone) {
				return err
			}
			return stageFailed("embedding", err, "vector for chunk %d (%s) could not be saved", chunk.Ordinal, chunk.ID)
		}
	}

	if failures > 0 {
		return stageFailed("embedding", firstErr, "%d of %d chunks failed; first failure chunk %d (%s): %s",
			failures, len(pending), firstFailed.Ordinal, firstFailed.ID, describeFailure(firstErr))
	}
	log.Debug().Int("embedded", len(pending)).Msg("embedding stage complete")
	return nil
}
