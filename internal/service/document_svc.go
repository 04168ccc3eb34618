package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tgo/docqa/internal/model"
	"github.com/tgo/docqa/internal/queue"
	"github.com/tgo/docqa/internal/repository"
	"github.com/tgo/docqa/internal/storage"
)

var pdfMagic = []byte("%PDF")

type DocumentService struct {
	docs          DocumentStore
	chunks        ChunkStore
	store         storage.Store
	queue         queue.Queue
	maxUploadSize int64
	logger        zerolog.Logger
}

func NewDocumentService(docs DocumentStore, chunks ChunkStore, store storage.Store, q queue.Queue, maxUploadSize int64, logger zerolog.Logger) *DocumentService {
	if maxUploadSize <= 0 {
		maxUploadSize = 50 * 1024 * 1024
	}
	return &DocumentService{
		docs:          docs,
		chunks:        chunks,
		store:         store,
		queue:         q,
		maxUploadSize: maxUploadSize,
		logger:        logger.With().Str("component", "document_service").Logger(),
	}
}

type UploadInput struct {
	OwnerID     uuid.UUID
	Title       string
	FileName    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// Upload validates a PDF, stores it, records a pending document and queues
// the pipeline for it.
func (s *DocumentService) Upload(ctx context.Context, in UploadInput) (*model.Document, error) {
	if in.Size > s.maxUploadSize {
		return nil, ErrFileTooLarge
	}
	if !isPDFContentType(in.ContentType) {
		return nil, fmt.Errorf("%w: content type %q", ErrNotPDF, in.ContentType)
	}

	data, err := io.ReadAll(io.LimitReader(in.Reader, s.maxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	if int64(len(data)) > s.maxUploadSize {
		return nil, ErrFileTooLarge
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		return nil, fmt.Errorf("%w: missing %%PDF header", ErrNotPDF)
	}

	fileName := sanitizeFileName(in.FileName)
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = strings.TrimSuffix(fileName, filepath.Ext(fileName))
	}

	doc := &model.Document{
		OwnerID:     in.OwnerID,
		Title:       title,
		FileName:    fileName,
		ContentType: "application/pdf",
		Size:        int64(len(data)),
		Status:      model.DocumentStatusPending,
	}
	doc.ID = uuid.New()
	doc.StorageKey = fmt.Sprintf("%s/%s/%s", in.OwnerID, doc.ID, fileName)

	if err := s.store.Put(ctx, doc.StorageKey, bytes.NewReader(data), doc.Size, doc.ContentType); err != nil {
		return nil, fmt.Errorf("store file: %w", err)
	}

	if err := s.docs.Create(ctx, doc); err != nil {
		_ = s.store.Delete(ctx, doc.StorageKey)
		return nil, err
	}

	log := s.logger.With().Str("document_id", doc.ID.String()).Str("owner_id", doc.OwnerID.String()).Logger()
	if err := s.queue.Enqueue(ctx, queue.Job{DocumentID: doc.ID, From: queue.StageExtract}); err != nil {
		// the stalled-document sweep will queue it later
		log.Error().Err(err).Msg("failed to enqueue pipeline job")
	} else {
		log.Info().Int64("size", doc.Size).Msg("document uploaded")
	}

	return doc, nil
}

func (s *DocumentService) Get(ctx context.Context, ownerID, id uuid.UUID) (*model.Document, error) {
	return s.docs.FindByOwner(ctx, ownerID, id)
}

func (s *DocumentService) List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]model.Document, int64, error) {
	return s.docs.ListByOwner(ctx, ownerID, limit, offset)
}

// SearchFullText ranks the owner's documents by title and extracted text.
func (s *DocumentService) SearchFullText(ctx context.Context, ownerID uuid.UUID, q string, limit, offset int) ([]repository.RankedDocument, int64, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, 0, ErrEmptyQuery
	}
	return s.docs.SearchFullText(ctx, ownerID, q, limit, offset)
}

func (s *DocumentService) ListChunks(ctx context.Context, ownerID, id uuid.UUID) ([]model.DocumentChunk, error) {
	if _, err := s.docs.FindByOwner(ctx, ownerID, id); err != nil {
		return nil, err
	}
	return s.chunks.FindByDocument(ctx, id)
}

// Delete removes the document, its chunks and its stored file. A pipeline
// run still working on the document stops at its next write.
func (s *DocumentService) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	doc, err := s.docs.FindByOwner(ctx, ownerID, id)
	if err != nil {
		return err
	}

	if err := s.docs.Delete(ctx, doc.ID); err != nil {
		return err
	}

	log := s.logger.With().Str("document_id", doc.ID.String()).Logger()
	if doc.StorageKey != "" {
		if err := s.store.Delete(ctx, doc.StorageKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.Warn().Err(err).Str("storage_key", doc.StorageKey).Msg("failed to delete stored file")
		}
	}
	log.Info().Msg("document deleted")
	return nil
}

func isPDFContentType(ct string) bool {
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mediaType == "application/pdf"
}

func sanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == '/' || r == 0x7f {
			return -1
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." || name == "/" {
		return "document.pdf"
	}
	return name
}
