package embedding

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/tgo/docqa/internal/retry"
)

// Ollama embeds through a local Ollama server using langchaingo.
type Ollama struct {
	embedder   embeddings.Embedder
	dimensions int
}

func NewOllama(serverURL, model string, dimensions int) (*Ollama, error) {
	opts := []ollama.Option{ollama.WithModel(model)}
	if serverURL != "" {
		opts = append(opts, ollama.WithServerURL(serverURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("init ollama: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("init ollama embedder: %w", err)
	}
	return &Ollama{embedder: embedder, dimensions: dimensions}, nil
}

func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := o.embedder.EmbedQuery(ctx, text)
	if err != nil {
		// a local server is either busy or restarting
		if retry.IsTransient(err) {
			return nil, retry.Transient(err)
		}
		return nil, err
	}
	if err := checkDimensions(vec, o.dimensions); err != nil {
		return nil, err
	}
	return vec, nil
}

func (o *Ollama) Dimensions() int {
	return o.dimensions
}
