// Package repotest provides in-memory document and chunk stores that follow
// the same guarded-write rules as the gorm repositories.
package repotest

import (
	"context"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/tgo/docqa/internal/model"
	"github.com/tgo/docqa/internal/repository"
)

// Store keeps documents and chunks in maps. Documents and Chunks expose it
// through the method sets of the two gorm repositories.
type Store struct {
	mu       sync.Mutex
	docs     map[uuid.UUID]*model.Document
	chunks   map[uuid.UUID]*model.DocumentChunk
	statuses map[uuid.UUID][]model.DocumentStatus
}

func NewStore() *Store {
	return &Store{
		docs:     make(map[uuid.UUID]*model.Document),
		chunks:   make(map[uuid.UUID]*model.DocumentChunk),
		statuses: make(map[uuid.UUID][]model.DocumentStatus),
	}
}

func (m *Store) Documents() *Documents { return (*Documents)(m) }
func (m *Store) Chunks() *Chunks       { return (*Chunks)(m) }

func (m *Store) Doc(id uuid.UUID) *model.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil
	}
	cp := *d
	return &cp
}

func (m *Store) History(id uuid.UUID) []model.DocumentStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.DocumentStatus(nil), m.statuses[id]...)
}

func (m *Store) ChunksOf(id uuid.UUID) []model.DocumentChunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.DocumentChunk
	for _, c := range m.chunks {
		if c.DocumentID == id {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out
}

// Seed adds a document with the given text already chunked and embedded.
func (m *Store) Seed(owner uuid.UUID, title string, status model.DocumentStatus, contents []string, vectors [][]float32) *model.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc := &model.Document{OwnerID: owner, Title: title, FileName: title + ".pdf", Status: status}
	doc.ID = uuid.New()
	doc.CreatedAt = time.Now()
	text := strings.Join(contents, " ")
	doc.ExtractedText = &text
	m.docs[doc.ID] = doc
	for i, c := range contents {
		chunk := &model.DocumentChunk{ID: uuid.New(), DocumentID: doc.ID, Ordinal: i, Content: c}
		if i < len(vectors) && vectors[i] != nil {
			v := pgvector.NewVector(vectors[i])
			chunk.Embedding = &v
		}
		m.chunks[chunk.ID] = chunk
	}
	cp := *doc
	return &cp
}

type Documents Store

func (d *Documents) Create(_ context.Context, doc *model.Document) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	doc.CreatedAt = time.Now()
	cp := *doc
	d.docs[doc.ID] = &cp
	return nil
}

func (d *Documents) FindByID(_ context.Context, id uuid.UUID) (*model.Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, ok := d.docs[id]
	if !ok {
		return nil, model.ErrDocumentNotFound
	}
	cp := *doc
	return &cp, nil
}

func (d *Documents) FindByOwner(ctx context.Context, ownerID, id uuid.UUID) (*model.Document, error) {
	doc, err := d.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != ownerID {
		return nil, model.ErrDocumentNotFound
	}
	return doc, nil
}

func (d *Documents) ListByOwner(_ context.Context, ownerID uuid.UUID, limit, offset int) ([]model.Document, int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []model.Document
	for _, doc := range d.docs {
		if doc.OwnerID == ownerID {
			out = append(out, *doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := int64(len(out))
	if offset >= len(out) {
		return []model.Document{}, total, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (d *Documents) SearchFullText(_ context.Context, ownerID uuid.UUID, q string, _, _ int) ([]repository.RankedDocument, int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []repository.RankedDocument
	q = strings.ToLower(q)
	for _, doc := range d.docs {
		if doc.OwnerID != ownerID {
			continue
		}
		text := strings.ToLower(doc.Title)
		if doc.ExtractedText != nil {
			text += " " + strings.ToLower(*doc.ExtractedText)
		}
		if n := strings.Count(text, q); n > 0 {
			out = append(out, repository.RankedDocument{Document: *doc, Rank: float64(n)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank > out[j].Rank })
	return out, int64(len(out)), nil
}

func (d *Documents) update(id uuid.UUID, fn func(doc *model.Document)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, ok := d.docs[id]
	if !ok {
		return repository.ErrDocumentGone
	}
	fn(doc)
	return nil
}

func (d *Documents) UpdateStatus(_ context.Context, id uuid.UUID, status model.DocumentStatus, errMsg string) error {
	return d.update(id, func(doc *model.Document) {
		doc.Status = status
		doc.ErrorMessage = errMsg
		d.statuses[id] = append(d.statuses[id], status)
	})
}

func (d *Documents) SaveExtraction(_ context.Context, id uuid.UUID, text string, pageCount int, metadata model.JSONMap) error {
	return d.update(id, func(doc *model.Document) {
		doc.ExtractedText = &text
		doc.PageCount = pageCount
		doc.Metadata = metadata
	})
}

func (d *Documents) MarkReady(_ context.Context, id uuid.UUID, at time.Time) error {
	return d.update(id, func(doc *model.Document) {
		doc.Status = model.DocumentStatusReady
		doc.ErrorMessage = ""
		doc.ProcessedAt = &at
		d.statuses[id] = append(d.statuses[id], model.DocumentStatusReady)
	})
}

func (d *Documents) RefreshSearchVector(_ context.Context, id uuid.UUID) error {
	return d.update(id, func(*model.Document) {})
}

func (d *Documents) FindByStatuses(_ context.Context, statuses ...model.DocumentStatus) ([]model.Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []model.Document
	for _, doc := range d.docs {
		if len(statuses) == 0 || slices.Contains(statuses, doc.Status) {
			out = append(out, *doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (d *Documents) Delete(_ context.Context, id uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.docs[id]; !ok {
		return model.ErrDocumentNotFound
	}
	delete(d.docs, id)
	for cid, c := range d.chunks {
		if c.DocumentID == id {
			delete(d.chunks, cid)
		}
	}
	return nil
}

type Chunks Store

func (c *Chunks) ReplaceForDocument(_ context.Context, documentID uuid.UUID, chunks []model.DocumentChunk) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[documentID]; !ok {
		return repository.ErrDocumentGone
	}
	for id, ch := range c.chunks {
		if ch.DocumentID == documentID {
			delete(c.chunks, id)
		}
	}
	for i := range chunks {
		ch := chunks[i]
		c.chunks[ch.ID] = &ch
	}
	return nil
}

func (c *Chunks) FindByDocument(_ context.Context, documentID uuid.UUID) ([]model.DocumentChunk, error) {
	return (*Store)(c).ChunksOf(documentID), nil
}

func (c *Chunks) FindUnembedded(_ context.Context, documentID uuid.UUID) ([]model.DocumentChunk, error) {
	var out []model.DocumentChunk
	for _, ch := range (*Store)(c).ChunksOf(documentID) {
		if !ch.Embedded() {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (c *Chunks) CountByDocument(_ context.Context, documentID uuid.UUID) (int64, error) {
	return int64(len((*Store)(c).ChunksOf(documentID))), nil
}

func (c *Chunks) SetEmbedding(_ context.Context, chunkID uuid.UUID, vec pgvector.Vector) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.chunks[chunkID]
	if !ok {
		return repository.ErrDocumentGone
	}
	ch.Embedding = &vec
	ch.EmbeddingError = ""
	return nil
}

func (c *Chunks) SetEmbeddingError(_ context.Context, chunkID uuid.UUID, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.chunks[chunkID]
	if !ok {
		return repository.ErrDocumentGone
	}
	ch.EmbeddingError = reason
	return nil
}

func (c *Chunks) Nearest(_ context.Context, ownerID uuid.UUID, vec pgvector.Vector, k int) ([]model.ScoredChunk, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []model.ScoredChunk
	for _, ch := range c.chunks {
		doc := c.docs[ch.DocumentID]
		if doc == nil || doc.OwnerID != ownerID || ch.Embedding == nil {
			continue
		}
		dist := 1 - cosine(vec.Slice(), ch.Embedding.Slice())
		out = append(out, model.ScoredChunk{DocumentChunk: *ch, DocumentTitle: doc.Title, Distance: dist, Similarity: 1 - dist})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		if out[i].Ordinal != out[j].Ordinal {
			return out[i].Ordinal < out[j].Ordinal
		}
		return out[i].DocumentID.String() < out[j].DocumentID.String()
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Len returns the number of stored documents.
func (m *Store) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}
