package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tgo/docqa/internal/database"
	"github.com/tgo/docqa/internal/model"
)

// These tests need a Postgres with pgvector; they skip otherwise.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	return db
}

func unitVector(hot int) pgvector.Vector {
	v := make([]float32, model.EmbeddingDimensions)
	v[hot] = 1
	return pgvector.NewVector(v)
}

func seedDocument(t *testing.T, repo *DocumentRepository, owner uuid.UUID, title, text string) *model.Document {
	t.Helper()
	ctx := context.Background()
	doc := &model.Document{
		OwnerID:  owner,
		Title:    title,
		FileName: title + ".pdf",
		Size:     10,
		Status:   model.DocumentStatusPending,
	}
	require.NoError(t, repo.Create(ctx, doc))
	t.Cleanup(func() { _ = repo.Delete(context.Background(), doc.ID) })
	if text != "" {
		require.NoError(t, repo.SaveExtraction(ctx, doc.ID, text, 1, model.JSONMap{model.MetaExtractionMethod: "text_layer"}))
		require.NoError(t, repo.RefreshSearchVector(ctx, doc.ID))
	}
	return doc
}

func TestChunkRepository_ReplaceAndNearest(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	docs := NewDocumentRepository(db)
	chunks := NewChunkRepository(db)

	owner, stranger := uuid.New(), uuid.New()
	mine := seedDocument(t, docs, owner, "mine", "")
	theirs := seedDocument(t, docs, stranger, "theirs", "")

	require.NoError(t, chunks.ReplaceForDocument(ctx, mine.ID, []model.DocumentChunk{
		{DocumentID: mine.ID, Ordinal: 0, Content: "alpha"},
		{DocumentID: mine.ID, Ordinal: 1, Content: "beta"},
	}))
	require.NoError(t, chunks.ReplaceForDocument(ctx, theirs.ID, []model.DocumentChunk{
		{DocumentID: theirs.ID, Ordinal: 0, Content: "alpha elsewhere"},
	}))

	// replacing again is idempotent
	require.NoError(t, chunks.ReplaceForDocument(ctx, mine.ID, []model.DocumentChunk{
		{DocumentID: mine.ID, Ordinal: 0, Content: "alpha"},
		{DocumentID: mine.ID, Ordinal: 1, Content: "beta"},
	}))
	n, err := chunks.CountByDocument(ctx, mine.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	for _, id := range []uuid.UUID{mine.ID, theirs.ID} {
		pending, err := chunks.FindUnembedded(ctx, id)
		require.NoError(t, err)
		for _, c := range pending {
			require.NoError(t, chunks.SetEmbedding(ctx, c.ID, unitVector(c.Ordinal)))
		}
	}

	hits, err := chunks.Nearest(ctx, owner, unitVector(0), 3)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "alpha", hits[0].Content)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
	for _, h := range hits {
		assert.Equal(t, mine.ID, h.DocumentID)
		assert.Equal(t, "mine", h.DocumentTitle)
	}

	pending, err := chunks.FindUnembedded(ctx, mine.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func embedAll(t *testing.T, chunks *ChunkRepository, documentID uuid.UUID, vec pgvector.Vector) {
	t.Helper()
	pending, err := chunks.FindUnembedded(context.Background(), documentID)
	require.NoError(t, err)
	for _, c := range pending {
		require.NoError(t, chunks.SetEmbedding(context.Background(), c.ID, vec))
	}
}

func TestChunkRepository_NearestTieBreak(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	docs := NewDocumentRepository(db)
	chunks := NewChunkRepository(db)

	owner := uuid.New()
	a := seedDocument(t, docs, owner, "a", "")
	b := seedDocument(t, docs, owner, "b", "")
	for _, doc := range []*model.Document{a, b} {
		require.NoError(t, chunks.ReplaceForDocument(ctx, doc.ID, []model.DocumentChunk{
			{DocumentID: doc.ID, Ordinal: 0, Content: doc.Title + "0"},
			{DocumentID: doc.ID, Ordinal: 1, Content: doc.Title + "1"},
			{DocumentID: doc.ID, Ordinal: 2, Content: doc.Title + "2"},
		}))
		embedAll(t, chunks, doc.ID, unitVector(0))
	}
	first, second := a, b
	if b.ID.String() < a.ID.String() {
		first, second = b, a
	}

	hits, err := chunks.Nearest(ctx, owner, unitVector(0), 4)
	require.NoError(t, err)
	got := make([]string, len(hits))
	for i, h := range hits {
		got[i] = h.Content
	}
	assert.Equal(t, []string{first.Title + "0", second.Title + "0", first.Title + "1", second.Title + "1"}, got)
}

func TestChunkRepository_NearestFillsKDespiteCloserForeignChunks(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	docs := NewDocumentRepository(db)
	chunks := NewChunkRepository(db)

	stranger := seedDocument(t, docs, uuid.New(), "crowd", "")
	crowd := make([]model.DocumentChunk, 300)
	for i := range crowd {
		crowd[i] = model.DocumentChunk{DocumentID: stranger.ID, Ordinal: i, Content: "crowd"}
	}
	require.NoError(t, chunks.ReplaceForDocument(ctx, stranger.ID, crowd))
	embedAll(t, chunks, stranger.ID, unitVector(0))

	owner := uuid.New()
	mine := seedDocument(t, docs, owner, "mine", "")
	require.NoError(t, chunks.ReplaceForDocument(ctx, mine.ID, []model.DocumentChunk{
		{DocumentID: mine.ID, Ordinal: 0, Content: "one"},
		{DocumentID: mine.ID, Ordinal: 1, Content: "two"},
		{DocumentID: mine.ID, Ordinal: 2, Content: "three"},
		{DocumentID: mine.ID, Ordinal: 3, Content: "four"},
	}))
	v := make([]float32, model.EmbeddingDimensions)
	v[0], v[1] = 1, 1
	embedAll(t, chunks, mine.ID, pgvector.NewVector(v))

	hits, err := chunks.Nearest(ctx, owner, unitVector(0), 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	for _, h := range hits {
		assert.Equal(t, mine.ID, h.DocumentID)
	}
}

func TestChunkRepository_ReplaceOnDeletedDocument(t *testing.T) {
	db := openTestDB(t)
	chunks := NewChunkRepository(db)

	err := chunks.ReplaceForDocument(context.Background(), uuid.New(), []model.DocumentChunk{{Ordinal: 0, Content: "x"}})
	assert.ErrorIs(t, err, ErrDocumentGone)
}

func TestDocumentRepository_GuardedUpdatesAndDelete(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	docs := NewDocumentRepository(db)
	chunks := NewChunkRepository(db)

	doc := seedDocument(t, docs, uuid.New(), "report", "quarterly revenue grew")
	require.NoError(t, chunks.ReplaceForDocument(ctx, doc.ID, []model.DocumentChunk{{DocumentID: doc.ID, Ordinal: 0, Content: "quarterly"}}))

	require.NoError(t, docs.UpdateStatus(ctx, doc.ID, model.DocumentStatusChunking, ""))
	require.NoError(t, docs.MarkReady(ctx, doc.ID, time.Now()))

	got, err := docs.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusReady, got.Status)
	assert.NotNil(t, got.ProcessedAt)
	assert.Equal(t, "text_layer", got.ExtractionMethod())

	require.NoError(t, docs.Delete(ctx, doc.ID))
	n, err := chunks.CountByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.ErrorIs(t, docs.UpdateStatus(ctx, doc.ID, model.DocumentStatusFailed, "x"), ErrDocumentGone)
	_, err = docs.FindByID(ctx, doc.ID)
	assert.ErrorIs(t, err, model.ErrDocumentNotFound)
}

func TestDocumentRepository_SearchFullText(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	docs := NewDocumentRepository(db)

	owner := uuid.New()
	seedDocument(t, docs, owner, "Revenue report", "the quarterly revenue grew by ten percent")
	seedDocument(t, docs, owner, "Holiday plans", "beach and mountains")
	seedDocument(t, docs, uuid.New(), "Revenue elsewhere", "revenue revenue revenue")

	results, total, err := docs.SearchFullText(ctx, owner, "revenue", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, results, 1)
	assert.Equal(t, "Revenue report", results[0].Title)
	assert.Greater(t, results[0].Rank, 0.0)
}
