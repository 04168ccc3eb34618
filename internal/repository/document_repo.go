package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tgo/docqa/internal/model"
)

// ErrDocumentGone is returned by guarded writes when the target document was
// deleted while the pipeline was working on it.
var ErrDocumentGone = errors.New("document no longer exists")

const searchVectorExpr = "setweight(to_tsvector('english', coalesce(title, '')), 'A') || " +
	"setweight(to_tsvector('english', coalesce(extracted_text, '')), 'B')"

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// RankedDocument is a full-text search hit.
type RankedDocument struct {
	model.Document
	Rank float64 `gorm:"column:rank" json:"rank"`
}

func (r *DocumentRepository) Create(ctx context.Context, doc *model.Document) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *DocumentRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	var doc model.Document
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *DocumentRepository) FindByOwner(ctx context.Context, ownerID, id uuid.UUID) (*model.Document, error) {
	var doc model.Document
	err := r.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *DocumentRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]model.Document, int64, error) {
	var docs []model.Document
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Document{}).Where("owner_id = ?", ownerID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&docs).Error
	return docs, total, err
}

// SearchFullText ranks the owner's documents against a web-search style query.
func (r *DocumentRepository) SearchFullText(ctx context.Context, ownerID uuid.UUID, q string, limit, offset int) ([]RankedDocument, int64, error) {
	var results []RankedDocument
	var total int64

	tsq := "websearch_to_tsquery('english', ?)"
	base := r.db.WithContext(ctx).Table("documents").
		Where("owner_id = ?", ownerID).
		Where("search_vector @@ "+tsq, q)

	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := base.Session(&gorm.Session{}).
		Select("documents.*, ts_rank(search_vector, "+tsq+") AS rank", q).
		Where("ts_rank(search_vector, "+tsq+") > 0", q).
		Order("rank DESC, created_at DESC").
		Limit(limit).Offset(offset).
		Find(&results).Error
	return results, total, err
}

// UpdateStatus moves the document to a new state. An empty errMsg clears any
// previous failure reason.
func (r *DocumentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.DocumentStatus, errMsg string) error {
	res := r.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        status,
			"error_message": errMsg,
		})
	return guarded(res)
}

// SaveExtraction stores the extracted text and what the extractor learned
// about the file.
func (r *DocumentRepository) SaveExtraction(ctx context.Context, id uuid.UUID, text string, pageCount int, metadata model.JSONMap) error {
	res := r.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"extracted_text": text,
			"page_count":     pageCount,
			"metadata":       metadata,
		})
	return guarded(res)
}

func (r *DocumentRepository) MarkReady(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        model.DocumentStatusReady,
			"error_message": "",
			"processed_at":  at,
		})
	return guarded(res)
}

func (r *DocumentRepository) RefreshSearchVector(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Exec("UPDATE documents SET search_vector = "+searchVectorExpr+" WHERE id = ?", id)
	return guarded(res)
}

// RefreshAllSearchVectors rebuilds the search vector of every document and
// returns how many rows were touched.
func (r *DocumentRepository) RefreshAllSearchVectors(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Exec("UPDATE documents SET search_vector = " + searchVectorExpr)
	return res.RowsAffected, res.Error
}

func (r *DocumentRepository) FindByStatuses(ctx context.Context, statuses ...model.DocumentStatus) ([]model.Document, error) {
	var docs []model.Document
	query := r.db.WithContext(ctx).Model(&model.Document{})
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	err := query.Order("created_at ASC").Find(&docs).Error
	return docs, err
}

// FindStalled returns documents stuck in a non-terminal status that have not
// been written since before.
func (r *DocumentRepository) FindStalled(ctx context.Context, before time.Time) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.WithContext(ctx).
		Where("status NOT IN ?", []model.DocumentStatus{model.DocumentStatusReady, model.DocumentStatusFailed}).
		Where("updated_at < ?", before).
		Order("updated_at ASC").
		Find(&docs).Error
	return docs, err
}

// Delete removes the document and its chunks.
func (r *DocumentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&model.DocumentChunk{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&model.Document{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return model.ErrDocumentNotFound
		}
		return nil
	})
}

func guarded(res *gorm.DB) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDocumentGone
	}
	return nil
}
