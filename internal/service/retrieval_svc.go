package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog"

	"github.com/tgo/docqa/internal/embedding"
	"github.com/tgo/docqa/internal/model"
)

const (
	DefaultTopK        = 5
	semanticSearchTopK = 20
)

type RetrievalService struct {
	chunks   ChunkStore
	embedder embedding.Embedder
	topK     int
	logger   zerolog.Logger
}

func NewRetrievalService(chunks ChunkStore, embedder embedding.Embedder, topK int, logger zerolog.Logger) *RetrievalService {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &RetrievalService{
		chunks:   chunks,
		embedder: embedder,
		topK:     topK,
		logger:   logger.With().Str("component", "retrieval").Logger(),
	}
}

// Retrieve returns the owner's k chunks closest to query, best first.
// A blank query returns nothing without calling the embedding provider.
func (s *RetrievalService) Retrieve(ctx context.Context, ownerID uuid.UUID, query string, k int) ([]model.ScoredChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if k <= 0 {
		k = s.topK
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Warn().Err(err).Msg("query embedding failed")
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}

	chunks, err := s.chunks.Nearest(ctx, ownerID, pgvector.NewVector(vec), k)
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Str("owner_id", ownerID.String()).Int("k", k).Int("hits", len(chunks)).Msg("retrieved chunks")
	return chunks, nil
}

// DocumentMatch groups the matching chunks of one document.
type DocumentMatch struct {
	DocumentID uuid.UUID           `json:"document_id"`
	Title      string              `json:"title"`
	Similarity float64             `json:"similarity"`
	Chunks     []model.ScoredChunk `json:"chunks"`
}

// SemanticSearch ranks the owner's documents by their best matching chunk.
func (s *RetrievalService) SemanticSearch(ctx context.Context, ownerID uuid.UUID, query string) ([]DocumentMatch, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	chunks, err := s.Retrieve(ctx, ownerID, query, semanticSearchTopK)
	if err != nil {
		return nil, err
	}
	return groupByDocument(chunks), nil
}

// groupByDocument keeps first-appearance order, which is already best
// similarity first because chunks arrive sorted.
func groupByDocument(chunks []model.ScoredChunk) []DocumentMatch {
	matches := make([]DocumentMatch, 0)
	index := make(map[uuid.UUID]int)
	for _, c := range chunks {
		i, ok := index[c.DocumentID]
		if !ok {
			i = len(matches)
			index[c.DocumentID] = i
			matches = append(matches, DocumentMatch{
				DocumentID: c.DocumentID,
				Title:      c.DocumentTitle,
				Similarity: c.Similarity,
			})
		}
		matches[i].Chunks = append(matches[i].Chunks, c)
	}
	return matches
}
