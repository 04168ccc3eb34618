package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tgo/docqa/internal/model"
)

type ChunkRepository struct {
	db *gorm.DB
}

func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// ReplaceForDocument swaps the document's chunks for a new set in one
// transaction. The document row is locked so a concurrent delete either
// happens first (ErrDocumentGone) or waits for the swap.
func (r *ChunkRepository) ReplaceForDocument(ctx context.Context, documentID uuid.UUID, chunks []model.DocumentChunk) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc model.Document
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").Where("id = ?", documentID).First(&doc).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrDocumentGone
		}
		if err != nil {
			return err
		}

		if err := tx.Where("document_id = ?", documentID).Delete(&model.DocumentChunk{}).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		return tx.CreateInBatches(&chunks, 200).Error
	})
}

func (r *ChunkRepository) FindByDocument(ctx context.Context, documentID uuid.UUID) ([]model.DocumentChunk, error) {
	var chunks []model.DocumentChunk
	err := r.db.WithContext(ctx).
		Omit("embedding").
		Where("document_id = ?", documentID).
		Order("ordinal ASC").
		Find(&chunks).Error
	return chunks, err
}

// FindUnembedded returns chunks still waiting for a vector, in ordinal order.
func (r *ChunkRepository) FindUnembedded(ctx context.Context, documentID uuid.UUID) ([]model.DocumentChunk, error) {
	var chunks []model.DocumentChunk
	err := r.db.WithContext(ctx).
		Omit("embedding").
		Where("document_id = ? AND embedding IS NULL", documentID).
		Order("ordinal ASC").
		Find(&chunks).Error
	return chunks, err
}

func (r *ChunkRepository) CountByDocument(ctx context.Context, documentID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.DocumentChunk{}).
		Where("document_id = ?", documentID).
		Count(&count).Error
	return count, err
}

func (r *ChunkRepository) SetEmbedding(ctx context.Context, chunkID uuid.UUID, vec pgvector.Vector) error {
	res := r.db.WithContext(ctx).Model(&model.DocumentChunk{}).
		Where("id = ?", chunkID).
		Updates(map[string]interface{}{
			"embedding":       vec,
			"embedding_error": "",
		})
	return guarded(res)
}

func (r *ChunkRepository) SetEmbeddingError(ctx context.Context, chunkID uuid.UUID, reason string) error {
	res := r.db.WithContext(ctx).Model(&model.DocumentChunk{}).
		Where("id = ?", chunkID).
		Update("embedding_error", reason)
	return guarded(res)
}

// Nearest returns the owner's k chunks closest to vec by cosine distance.
// Ties break on ordinal, then document id, so results are deterministic.
func (r *ChunkRepository) Nearest(ctx context.Context, ownerID uuid.UUID, vec pgvector.Vector, k int) ([]model.ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}
	candidates := max(4*k, 40)

	var rows []model.ScoredChunk
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Keep walking the HNSW graph until enough rows pass the owner
		// filter instead of stopping at ef_search candidates.
		if err := tx.Exec("SET LOCAL hnsw.iterative_scan = strict_order").Error; err != nil {
			return err
		}
		if err := tx.Exec(fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", max(candidates, 100))).Error; err != nil {
			return err
		}
		// The inner query orders by distance alone so the index can serve it;
		// the tie-break is applied to its candidates.
		return tx.Raw(`
			SELECT * FROM (
				SELECT c.id, c.document_id, c.ordinal, c.content, c.created_at,
					d.title AS document_title, c.embedding <=> ? AS distance
				FROM document_chunks c
				JOIN documents d ON d.id = c.document_id
				WHERE d.owner_id = ? AND c.embedding IS NOT NULL
				ORDER BY c.embedding <=> ?
				LIMIT ?
			) nearest
			ORDER BY distance ASC, ordinal ASC, document_id ASC
			LIMIT ?`,
			vec, ownerID, vec, candidates, k).
			Scan(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Similarity = 1 - rows[i].Distance
	}
	return rows, nil
}

func (r *ChunkRepository) DeleteByDocument(ctx context.Context, documentID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&model.DocumentChunk{}).Error
}
