package model

import (
	"time"

	"github.com/google/uuid"
)

type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusExtracting DocumentStatus = "extracting"
	DocumentStatusChunking   DocumentStatus = "chunking"
	DocumentStatusEmbedding  DocumentStatus = "embedding"
	DocumentStatusReady      DocumentStatus = "ready"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// Terminal reports whether the pipeline has finished with the document.
func (s DocumentStatus) Terminal() bool {
	return s == DocumentStatusReady || s == DocumentStatusFailed
}

// Metadata keys written by the extraction stage.
const (
	MetaExtractionMethod = "extraction_method"
	MetaPDFInfo          = "pdf_info"
)

type Document struct {
	BaseModel
	OwnerID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"owner_id"`
	Title         string         `gorm:"size:255;not null" json:"title"`
	FileName      string         `gorm:"size:500;not null" json:"file_name"`
	ContentType   string         `gorm:"size:100" json:"content_type"`
	Size          int64          `gorm:"not null" json:"size"`
	StorageKey    string         `gorm:"size:1000" json:"-"`
	Status        DocumentStatus `gorm:"size:50;not null;default:'pending';index" json:"status"`
	ErrorMessage  string         `gorm:"type:text" json:"error_message,omitempty"`
	ExtractedText *string        `gorm:"type:text" json:"-"`
	PageCount     int            `gorm:"default:0" json:"page_count"`
	Metadata      JSONMap        `gorm:"type:jsonb" json:"metadata,omitempty"`
	ProcessedAt   *time.Time     `json:"processed_at,omitempty"`
}

func (Document) TableName() string {
	return "documents"
}

// ExtractionMethod returns the strategy that produced the extracted text, if any.
func (d *Document) ExtractionMethod() string {
	if d.Metadata == nil {
		return ""
	}
	m, _ := d.Metadata[MetaExtractionMethod].(string)
	return m
}
