package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// EmbeddingDimensions is the width of the embedding column.
const EmbeddingDimensions = 768

type DocumentChunk struct {
	ID             uuid.UUID        `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	DocumentID     uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_chunk_document_ordinal" json:"document_id"`
	Ordinal        int              `gorm:"not null;uniqueIndex:idx_chunk_document_ordinal" json:"ordinal"`
	Content        string           `gorm:"type:text;not null" json:"content"`
	Embedding      *pgvector.Vector `gorm:"type:vector(768)" json:"-"`
	EmbeddingError string           `gorm:"type:text" json:"embedding_error,omitempty"`
	CreatedAt      time.Time        `gorm:"autoCreateTime" json:"created_at"`

	Document *Document `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"-"`
}

func (DocumentChunk) TableName() string {
	return "document_chunks"
}

func (c *DocumentChunk) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Embedded reports whether the chunk already carries a vector.
func (c *DocumentChunk) Embedded() bool {
	return c.Embedding != nil
}

// ScoredChunk is a chunk returned by nearest-neighbour retrieval.
type ScoredChunk struct {
	DocumentChunk
	DocumentTitle string  `gorm:"column:document_title" json:"document_title"`
	Distance      float64 `gorm:"column:distance" json:"-"`
	Similarity    float64 `gorm:"-" json:"similarity"`
}
