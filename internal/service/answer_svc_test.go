package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgo/docqa/internal/model"
	"github.com/tgo/docqa/internal/repository/repotest"
)

func axis(i int) []float32 {
	v := []float32{0, 0, 0}
	v[i] = 1
	return v
}

func TestRetrieve_NeverCrossesOwners(t *testing.T) {
	mem := repotest.NewStore()
	alice, bob := uuid.New(), uuid.New()
	mem.Seed(alice, "alice notes", model.DocumentStatusReady, []string{"alice secret"}, [][]float32{axis(0)})
	mem.Seed(bob, "bob notes", model.DocumentStatusReady, []string{"bob secret"}, [][]float32{axis(0)})

	svc := NewRetrievalService(mem.Chunks(), &fakeEmbedder{}, 5, nopLogger())
	chunks, err := svc.Retrieve(context.Background(), alice, "secret", 0)
	require.NoError(t, err)

	require.Len(t, chunks, 1)
	assert.Equal(t, "alice secret", chunks[0].Content)
	assert.Equal(t, "alice notes", chunks[0].DocumentTitle)
	assert.InDelta(t, 1.0, chunks[0].Similarity, 1e-9)
}

func TestRetrieve_FewerChunksThanK(t *testing.T) {
	mem := repotest.NewStore()
	owner := uuid.New()
	mem.Seed(owner, "doc", model.DocumentStatusReady, []string{"one", "two"}, [][]float32{axis(0), axis(1)})

	svc := NewRetrievalService(mem.Chunks(), &fakeEmbedder{}, 5, nopLogger())
	chunks, err := svc.Retrieve(context.Background(), owner, "query", 3)
	require.NoError(t, err)

	require.Len(t, chunks, 2)
	assert.Equal(t, "one", chunks[0].Content)
	assert.Greater(t, chunks[0].Similarity, chunks[1].Similarity)
}

func TestRetrieve_TiesBreakOnOrdinalThenDocument(t *testing.T) {
	mem := repotest.NewStore()
	owner := uuid.New()
	same := [][]float32{axis(0), axis(0), axis(0)}
	a := mem.Seed(owner, "a", model.DocumentStatusReady, []string{"a0", "a1", "a2"}, same)
	b := mem.Seed(owner, "b", model.DocumentStatusReady, []string{"b0", "b1", "b2"}, same)
	first, second := a, b
	if b.ID.String() < a.ID.String() {
		first, second = b, a
	}

	tests := []struct {
		name string
		k    int
		want []string
	}{
		{"top two", 2, []string{first.Title + "0", second.Title + "0"}},
		{"all", 6, []string{
			first.Title + "0", second.Title + "0",
			first.Title + "1", second.Title + "1",
			first.Title + "2", second.Title + "2",
		}},
	}

	svc := NewRetrievalService(mem.Chunks(), &fakeEmbedder{}, 5, nopLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, err := svc.Retrieve(context.Background(), owner, "query", tt.k)
			require.NoError(t, err)
			got := make([]string, len(chunks))
			for i, c := range chunks {
				got[i] = c.Content
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRetrieve_BlankQuerySkipsEmbedding(t *testing.T) {
	embedder := &fakeEmbedder{}
	svc := NewRetrievalService(repotest.NewStore().Chunks(), embedder, 5, nopLogger())

	chunks, err := svc.Retrieve(context.Background(), uuid.New(), "  \n", 0)
	require.NoError(t, err)
	assert.Empty(t, chunks)
	assert.Zero(t, embedder.callCount())
}

func TestRetrieve_EmbeddingFailure(t *testing.T) {
	embedder := &fakeEmbedder{fn: func(string) ([]float32, error) { return nil, errors.New("connection refused") }}
	svc := NewRetrievalService(repotest.NewStore().Chunks(), embedder, 5, nopLogger())

	_, err := svc.Retrieve(context.Background(), uuid.New(), "q", 0)
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
}

func TestSemanticSearch_GroupsByDocument(t *testing.T) {
	mem := repotest.NewStore()
	owner := uuid.New()
	near := mem.Seed(owner, "near", model.DocumentStatusReady,
		[]string{"exact", "close"}, [][]float32{axis(0), {1, 1, 0}})
	far := mem.Seed(owner, "far", model.DocumentStatusReady,
		[]string{"off"}, [][]float32{{1, 0, 2}})

	svc := NewRetrievalService(mem.Chunks(), &fakeEmbedder{}, 5, nopLogger())
	matches, err := svc.SemanticSearch(context.Background(), owner, "query")
	require.NoError(t, err)

	require.Len(t, matches, 2)
	assert.Equal(t, near.ID, matches[0].DocumentID)
	assert.Len(t, matches[0].Chunks, 2)
	assert.Equal(t, far.ID, matches[1].DocumentID)
	assert.Greater(t, matches[0].Similarity, matches[1].Similarity)

	_, err = svc.SemanticSearch(context.Background(), owner, " ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func newAnswerService(t *testing.T, mem *repotest.Store, chat *fakeChatModel) *AnswerService {
	t.Helper()
	retrieval := NewRetrievalService(mem.Chunks(), &fakeEmbedder{}, 5, nopLogger())
	svc, err := NewAnswerService(context.Background(), retrieval, chat, nopLogger())
	require.NoError(t, err)
	return svc
}

func TestAsk_NoDocumentsGivesFixedAnswerWithoutModelCall(t *testing.T) {
	chat := &fakeChatModel{reply: "should not be used"}
	svc := newAnswerService(t, repotest.NewStore(), chat)

	answer, err := svc.Ask(context.Background(), uuid.New(), "What is the refund policy?")
	require.NoError(t, err)

	assert.Equal(t, NoRelevantInformation, answer.Answer)
	assert.Empty(t, answer.Sources)
	assert.Empty(t, answer.SourceTexts)
	assert.Zero(t, chat.calls)
}

func TestAsk_BuildsPromptAndSources(t *testing.T) {
	mem := repotest.NewStore()
	owner := uuid.New()
	long := strings.Repeat("x", 600)
	policy := mem.Seed(owner, "Policy", model.DocumentStatusReady,
		[]string{"Refunds are issued within 14 days.", long}, [][]float32{axis(0), {1, 0.5, 0}})
	faq := mem.Seed(owner, "FAQ", model.DocumentStatusReady,
		[]string{"Contact support for refunds."}, [][]float32{{1, 0.2, 0}})

	chat := &fakeChatModel{reply: "  Refunds take up to 14 days.  "}
	svc := newAnswerService(t, mem, chat)

	answer, err := svc.Ask(context.Background(), owner, "How long do refunds take?")
	require.NoError(t, err)

	assert.Equal(t, "Refunds take up to 14 days.", answer.Answer)
	assert.Equal(t, 1, chat.calls)

	require.Len(t, chat.last, 2)
	user := chat.last[1].Content
	assert.Contains(t, user, "Question: How long do refunds take?")
	assert.Contains(t, user, "Document excerpt 1:\nRefunds are issued within 14 days.")
	assert.Contains(t, user, "Document excerpt 2:\nContact support for refunds.")
	assert.Contains(t, user, "Document excerpt 3:\n"+long)

	require.Len(t, answer.Sources, 2)
	assert.Equal(t, Source{ID: policy.ID, Title: "Policy"}, answer.Sources[0])
	assert.Equal(t, Source{ID: faq.ID, Title: "FAQ"}, answer.Sources[1])

	require.Len(t, answer.SourceTexts, 3)
	assert.Equal(t, 0, answer.SourceTexts[0].Ordinal)
	assert.Equal(t, strings.Repeat("x", 500)+"...", answer.SourceTexts[2].Text)
	assert.Equal(t, policy.ID, answer.SourceTexts[2].DocumentID)
}

func TestAsk_GenerationFailureIsCategorized(t *testing.T) {
	mem := repotest.NewStore()
	owner := uuid.New()
	mem.Seed(owner, "doc", model.DocumentStatusReady, []string{"text"}, [][]float32{axis(0)})

	chat := &fakeChatModel{err: errors.New("error, status code: 429, message: Rate limit reached")}
	svc := newAnswerService(t, mem, chat)

	_, err := svc.Ask(context.Background(), owner, "question")
	require.ErrorIs(t, err, ErrAnswerUnavailable)

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, CategoryRateLimited, genErr.Category)
	assert.Equal(t, 1, chat.calls)
}

func TestAsk_EmptyQuestion(t *testing.T) {
	svc := newAnswerService(t, repotest.NewStore(), &fakeChatModel{})
	_, err := svc.Ask(context.Background(), uuid.New(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{errors.New("Too Many Requests"), CategoryRateLimited},
		{context.DeadlineExceeded, CategoryTimeout},
		{errors.New("dial tcp: i/o timeout"), CategoryTimeout},
		{errors.New("status code: 500"), CategoryUnavailable},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, categorize(tt.err), tt.err.Error())
	}
}
