package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/tgo/docqa/internal/extract"
	"github.com/tgo/docqa/internal/model"
	"github.com/tgo/docqa/internal/repository"
)

var (
	ErrEmptyFile            = errors.New("file is empty")
	ErrFileTooLarge         = errors.New("file exceeds the maximum upload size")
	ErrNotPDF               = errors.New("file is not a PDF")
	ErrEmptyQuery           = errors.New("query is empty")
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")
	ErrAnswerUnavailable    = errors.New("answer generation unavailable")
)

// DocumentStore is implemented by repository.DocumentRepository.
type DocumentStore interface {
	Create(ctx context.Context, doc *model.Document) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Document, error)
	FindByOwner(ctx context.Context, ownerID, id uuid.UUID) (*model.Document, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]model.Document, int64, error)
	SearchFullText(ctx context.Context, ownerID uuid.UUID, q string, limit, offset int) ([]repository.RankedDocument, int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.DocumentStatus, errMsg string) error
	SaveExtraction(ctx context.Context, id uuid.UUID, text string, pageCount int, metadata model.JSONMap) error
	MarkReady(ctx context.Context, id uuid.UUID, at time.Time) error
	RefreshSearchVector(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ChunkStore is implemented by repository.ChunkRepository.
type ChunkStore interface {
	ReplaceForDocument(ctx context.Context, documentID uuid.UUID, chunks []model.DocumentChunk) error
	FindByDocument(ctx context.Context, documentID uuid.UUID) ([]model.DocumentChunk, error)
	FindUnembedded(ctx context.Context, documentID uuid.UUID) ([]model.DocumentChunk, error)
	CountByDocument(ctx context.Context, documentID uuid.UUID) (int64, error)
	SetEmbedding(ctx context.Context, chunkID uuid.UUID, vec pgvector.Vector) error
	SetEmbeddingError(ctx context.Context, chunkID uuid.UUID, reason string) error
	Nearest(ctx context.Context, ownerID uuid.UUID, vec pgvector.Vector, k int) ([]model.ScoredChunk, error)
}

// Extractor is implemented by extract.Chain.
type Extractor interface {
	Extract(ctx context.Context, in extract.Input) (*extract.Result, error)
}

var (
	_ DocumentStore = (*repository.DocumentRepository)(nil)
	_ ChunkStore    = (*repository.ChunkRepository)(nil)
	_ Extractor     = (*extract.Chain)(nil)
)
