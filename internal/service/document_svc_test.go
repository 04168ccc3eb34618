package service

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgo/docqa/internal/model"
	"github.com/tgo/docqa/internal/pdffixture"
	"github.com/tgo/docqa/internal/queue"
	"github.com/tgo/docqa/internal/repository/repotest"
	"github.com/tgo/docqa/internal/storage"
)

func newDocumentService(t *testing.T, maxSize int64) (*DocumentService, *repotest.Store, *storage.Local, *queue.MemoryQueue) {
	t.Helper()
	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	mem := repotest.NewStore()
	q := queue.NewMemoryQueue(8)
	return NewDocumentService(mem.Documents(), mem.Chunks(), store, q, maxSize, nopLogger()), mem, store, q
}

func TestUpload_Validation(t *testing.T) {
	pdf := pdffixture.Build("ok", "text")

	tests := []struct {
		name    string
		in      UploadInput
		wantErr error
	}{
		{
			name:    "too large by declared size",
			in:      UploadInput{ContentType: "application/pdf", Size: 1 << 30, Reader: bytes.NewReader(pdf)},
			wantErr: ErrFileTooLarge,
		},
		{
			name:    "too large by content",
			in:      UploadInput{ContentType: "application/pdf", Reader: bytes.NewReader(append(pdf, make([]byte, 4096)...))},
			wantErr: ErrFileTooLarge,
		},
		{
			name:    "wrong content type",
			in:      UploadInput{ContentType: "text/plain", Reader: bytes.NewReader(pdf)},
			wantErr: ErrNotPDF,
		},
		{
			name:    "empty file",
			in:      UploadInput{ContentType: "application/pdf", Reader: bytes.NewReader(nil)},
			wantErr: ErrEmptyFile,
		},
		{
			name:    "bad magic bytes",
			in:      UploadInput{ContentType: "application/pdf", Reader: strings.NewReader("hello, not a pdf")},
			wantErr: ErrNotPDF,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, mem, _, q := newDocumentService(t, int64(len(pdf))+100)
			tt.in.OwnerID = uuid.New()
			tt.in.FileName = "x.pdf"

			_, err := svc.Upload(context.Background(), tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, mem.Len())
			assert.Zero(t, q.Len())
		})
	}
}

func TestUpload_StoresFileAndQueuesJob(t *testing.T) {
	svc, mem, store, q := newDocumentService(t, 0)
	owner := uuid.New()
	pdf := pdffixture.Build("Handbook", "welcome")

	doc, err := svc.Upload(context.Background(), UploadInput{
		OwnerID:     owner,
		FileName:    "../../Employee Handbook.pdf",
		ContentType: "application/pdf; charset=binary",
		Size:        int64(len(pdf)),
		Reader:      bytes.NewReader(pdf),
	})
	require.NoError(t, err)

	assert.Equal(t, "Employee Handbook", doc.Title)
	assert.Equal(t, "Employee Handbook.pdf", doc.FileName)
	assert.Equal(t, model.DocumentStatusPending, doc.Status)
	assert.Equal(t, int64(len(pdf)), doc.Size)
	assert.True(t, strings.HasPrefix(doc.StorageKey, owner.String()+"/"+doc.ID.String()+"/"))

	stored, err := storage.ReadAll(context.Background(), store, doc.StorageKey)
	require.NoError(t, err)
	assert.Equal(t, pdf, stored)
	assert.NotNil(t, mem.Doc(doc.ID))

	d, err := q.Dequeue(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, doc.ID, d.Job.DocumentID)
	assert.Equal(t, queue.StageExtract, d.Job.From)
}

func TestDocumentService_OwnerScoping(t *testing.T) {
	svc, mem, _, _ := newDocumentService(t, 0)
	alice, bob := uuid.New(), uuid.New()
	doc := mem.Seed(alice, "alice", model.DocumentStatusReady, []string{"a"}, nil)

	_, err := svc.Get(context.Background(), bob, doc.ID)
	assert.ErrorIs(t, err, model.ErrDocumentNotFound)
	_, err = svc.ListChunks(context.Background(), bob, doc.ID)
	assert.ErrorIs(t, err, model.ErrDocumentNotFound)
	assert.ErrorIs(t, svc.Delete(context.Background(), bob, doc.ID), model.ErrDocumentNotFound)

	got, err := svc.Get(context.Background(), alice, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Title)
}

func TestDocumentService_DeleteRemovesChunksAndFile(t *testing.T) {
	svc, mem, store, _ := newDocumentService(t, 0)
	owner := uuid.New()
	pdf := pdffixture.Build("Doomed", "bye")

	doc, err := svc.Upload(context.Background(), UploadInput{
		OwnerID: owner, FileName: "doomed.pdf", ContentType: "application/pdf", Reader: bytes.NewReader(pdf),
	})
	require.NoError(t, err)
	require.NoError(t, mem.Chunks().ReplaceForDocument(context.Background(), doc.ID, []model.DocumentChunk{
		{ID: uuid.New(), DocumentID: doc.ID, Ordinal: 0, Content: "bye"},
		{ID: uuid.New(), DocumentID: doc.ID, Ordinal: 1, Content: "again"},
	}))

	require.NoError(t, svc.Delete(context.Background(), owner, doc.ID))

	assert.Nil(t, mem.Doc(doc.ID))
	assert.Empty(t, mem.ChunksOf(doc.ID))
	_, err = store.Get(context.Background(), doc.StorageKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, svc.Delete(context.Background(), owner, doc.ID), model.ErrDocumentNotFound)
}

func TestSearchFullText(t *testing.T) {
	svc, mem, _, _ := newDocumentService(t, 0)
	owner := uuid.New()
	mem.Seed(owner, "Invoices", model.DocumentStatusReady, []string{"invoice invoice total"}, nil)
	mem.Seed(owner, "Notes", model.DocumentStatusReady, []string{"meeting notes"}, nil)

	results, total, err := svc.SearchFullText(context.Background(), owner, "invoice", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, results, 1)
	assert.Equal(t, "Invoices", results[0].Title)

	_, _, err = svc.SearchFullText(context.Background(), owner, "  ", 10, 0)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}
