// Package embedding turns text into vectors through an external model.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/tgo/docqa/internal/ratelimit"
)

// ErrDimensionMismatch is returned when the provider answers with a vector
// of the wrong width. It is never retried.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Embedder produces one vector per text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

type Config struct {
	Provider   string
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
}

// New builds the configured provider behind the shared rate limiter.
func New(cfg Config, limiter *ratelimit.Limiter) (Embedder, error) {
	var (
		inner Embedder
		err   error
	)
	switch cfg.Provider {
	case "", "openai", "openai_compatible":
		inner = NewOpenAI(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Dimensions)
	case "ollama":
		inner, err = NewOllama(cfg.BaseURL, cfg.Model, cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return Limited(inner, limiter), nil
}

// Limited gates every call of e on limiter.
func Limited(e Embedder, limiter *ratelimit.Limiter) Embedder {
	if limiter == nil {
		return e
	}
	return &limited{inner: e, limiter: limiter}
}

type limited struct {
	inner   Embedder
	limiter *ratelimit.Limiter
}

func (l *limited) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.inner.Embed(ctx, text)
}

func (l *limited) Dimensions() int {
	return l.inner.Dimensions()
}

func checkDimensions(vec []float32, want int) error {
	if want > 0 && len(vec) != want {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), want)
	}
	return nil
}
