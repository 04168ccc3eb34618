// Package extract turns PDF bytes into text by trying an ordered list of
// strategies until one produces usable output.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrNoText is returned when every strategy failed or produced blank text.
var ErrNoText = errors.New("no strategy produced text")

// Strategy names recorded as the extraction method.
const (
	MethodAI        = "ai"
	MethodTextLayer = "text_layer"
	MethodOCR       = "ocr"
)

type Input struct {
	DocumentID uuid.UUID
	Data       []byte
}

type Result struct {
	Text      string
	PageCount int
	Method    string
	Info      map[string]string
}

// Strategy is one way of getting text out of a PDF.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, in Input) (*Result, error)
}

// Acceptable reports whether extracted text is worth keeping.
func Acceptable(text string) bool {
	return strings.TrimSpace(text) != ""
}

// Chain runs strategies in order; the first acceptable result wins and later
// strategies are not called.
type Chain struct {
	strategies []Strategy
	logger     zerolog.Logger
}

func NewChain(logger zerolog.Logger, strategies ...Strategy) *Chain {
	return &Chain{
		strategies: strategies,
		logger:     logger.With().Str("component", "extract").Logger(),
	}
}

func (c *Chain) Strategies() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}

// Attempt is the outcome of one strategy that produced nothing usable. A nil
// Err means the strategy ran but returned blank text.
type Attempt struct {
	Strategy string
	Err      error
}

// NoTextError lists every failed attempt. It matches ErrNoText.
type NoTextError struct {
	Attempts []Attempt
}

func (e *NoTextError) Error() string {
	if len(e.Attempts) == 0 {
		return ErrNoText.Error() + ": no strategies configured"
	}
	reasons := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		if a.Err == nil {
			reasons[i] = a.Strategy + ": empty result"
		} else {
			reasons[i] = fmt.Sprintf("%s: %v", a.Strategy, a.Err)
		}
	}
	return fmt.Sprintf("%s (%s)", ErrNoText, strings.Join(reasons, "; "))
}

func (e *NoTextError) Is(target error) bool { return target == ErrNoText }

func (c *Chain) Extract(ctx context.Context, in Input) (*Result, error) {
	var attempts []Attempt

	for _, s := range c.strategies {
		log := c.logger.With().Str("document_id", in.DocumentID.String()).Str("strategy", s.Name()).Logger()

		res, err := s.Extract(ctx, in)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn().Err(err).Msg("extraction strategy failed")
			attempts = append(attempts, Attempt{Strategy: s.Name(), Err: err})
			continue
		}
		if res == nil || !Acceptable(res.Text) {
			log.Info().Msg("extraction strategy returned no text")
			attempts = append(attempts, Attempt{Strategy: s.Name()})
			continue
		}

		if res.Method == "" {
			res.Method = s.Name()
		}
		if res.PageCount == 0 || res.Info == nil {
			if pages, info, err := Inspect(in.Data); err == nil {
				if res.PageCount == 0 {
					res.PageCount = pages
				}
				if res.Info == nil {
					res.Info = info
				}
			}
		}
		log.Info().Int("chars", len(res.Text)).Int("pages", res.PageCount).Msg("text extracted")
		return res, nil
	}

	return nil, &NoTextError{Attempts: attempts}
}
