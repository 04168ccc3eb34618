package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tgo/docqa/internal/config"
	"github.com/tgo/docqa/internal/model"
)

func Connect(cfg *config.Config) (*gorm.DB, error) {
	logLevel := logger.Warn
	if cfg.IsDevelopment() {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.DatabasePoolSize > 0 {
		sqlDB.SetMaxOpenConns(cfg.DatabasePoolSize)
	}

	return db, nil
}

// AutoMigrate creates the pgvector extension, the tables and the indexes
// gorm tags cannot express.
func AutoMigrate(db *gorm.DB) error {
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}

	if err := db.AutoMigrate(
		&model.Document{},
		&model.DocumentChunk{},
	); err != nil {
		return err
	}

	for _, stmt := range []string{
		"ALTER TABLE documents ADD COLUMN IF NOT EXISTS search_vector tsvector",
		"CREATE INDEX IF NOT EXISTS idx_documents_search_vector ON documents USING GIN (search_vector)",
		"CREATE INDEX IF NOT EXISTS idx_document_chunks_embedding ON document_chunks USING hnsw (embedding vector_cosine_ops)",
	} {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migrate %q: %w", stmt, err)
		}
	}
	return nil
}
