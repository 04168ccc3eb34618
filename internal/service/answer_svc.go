package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// NoRelevantInformation is the answer given when retrieval finds nothing.
const NoRelevantInformation = "No relevant information found in your documents."

const sourceTextLimit = 500

const answerSystemPrompt = `You are a helpful assistant that answers questions about the user's documents.
Answer only from the provided excerpts and keep the answer concise.`

const answerUserPrompt = `Based on the following document excerpts, please answer the question.
If the answer cannot be found in the excerpts, say so.

Question: {question}

Document excerpts:
{context}

Answer:`

// Generation failure categories shown to clients instead of provider text.
const (
	CategoryRateLimited = "rate_limited"
	CategoryTimeout     = "timeout"
	CategoryUnavailable = "unavailable"
)

// GenerationError is an answer generation failure. It matches
// ErrAnswerUnavailable under errors.Is.
type GenerationError struct {
	Category string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("answer generation failed (%s): %v", e.Category, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) Is(target error) bool { return target == ErrAnswerUnavailable }

func categorize(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"), strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"):
		return CategoryRateLimited
	case errors.Is(err, context.DeadlineExceeded), strings.Contains(msg, "timeout"):
		return CategoryTimeout
	default:
		return CategoryUnavailable
	}
}

type Source struct {
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title"`
}

type SourceText struct {
	DocumentID uuid.UUID `json:"document_id"`
	ChunkID    uuid.UUID `json:"chunk_id"`
	Ordinal    int       `json:"ordinal"`
	Title      string    `json:"title"`
	Text       string    `json:"text"`
	Similarity float64   `json:"similarity"`
}

type Answer struct {
	Answer      string       `json:"answer"`
	Sources     []Source     `json:"sources"`
	SourceTexts []SourceText `json:"source_texts"`
}

// AnswerService answers questions from the owner's retrieved chunks.
type AnswerService struct {
	retrieval *RetrievalService
	runnable  compose.Runnable[map[string]any, *schema.Message]
	logger    zerolog.Logger
}

func NewAnswerService(ctx context.Context, retrieval *RetrievalService, chatModel model.BaseChatModel, logger zerolog.Logger) (*AnswerService, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}

	chatTpl := prompt.FromMessages(schema.FString,
		schema.SystemMessage(answerSystemPrompt),
		schema.UserMessage(answerUserPrompt),
	)

	runnable, err := compose.NewChain[map[string]any, *schema.Message]().
		AppendChatTemplate(chatTpl, compose.WithNodeName("AnswerPromptBuilder")).
		AppendChatModel(chatModel, compose.WithNodeName("AnswerGenerator")).
		Compile(ctx, compose.WithGraphName("AnswerChain"))
	if err != nil {
		return nil, fmt.Errorf("compile answer chain: %w", err)
	}

	return &AnswerService{
		retrieval: retrieval,
		runnable:  runnable,
		logger:    logger.With().Str("component", "answer").Logger(),
	}, nil
}

// Ask retrieves the best chunks for question and has the chat model answer
// from them. The model is called once; its failures are not retried.
func (s *AnswerService) Ask(ctx context.Context, ownerID uuid.UUID, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuery
	}

	chunks, err := s.retrieval.Retrieve(ctx, ownerID, question, 0)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return &Answer{Answer: NoRelevantInformation, Sources: []Source{}, SourceTexts: []SourceText{}}, nil
	}

	excerpts := make([]string, len(chunks))
	for i, c := range chunks {
		excerpts[i] = fmt.Sprintf("Document excerpt %d:\n%s", i+1, c.Content)
	}

	msg, err := s.runnable.Invoke(ctx, map[string]any{
		"question": question,
		"context":  strings.Join(excerpts, "\n\n"),
	})
	if err != nil {
		genErr := &GenerationError{Category: categorize(err), Err: err}
		s.logger.Error().Err(err).Str("category", genErr.Category).Msg("answer generation failed")
		return nil, genErr
	}

	answer := &Answer{
		Answer:      strings.TrimSpace(msg.Content),
		Sources:     make([]Source, 0, len(chunks)),
		SourceTexts: make([]SourceText, 0, len(chunks)),
	}
	seen := make(map[uuid.UUID]bool)
	for _, c := range chunks {
		if !seen[c.DocumentID] {
			seen[c.DocumentID] = true
			answer.Sources = append(answer.Sources, Source{ID: c.DocumentID, Title: c.DocumentTitle})
		}
		answer.SourceTexts = append(answer.SourceTexts, SourceText{
			DocumentID: c.DocumentID,
			ChunkID:    c.ID,
			Ordinal:    c.Ordinal,
			Title:      c.DocumentTitle,
			Text:       truncateRunes(c.Content, sourceTextLimit),
			Similarity: c.Similarity,
		})
	}
	return answer, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
