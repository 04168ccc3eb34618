package service

import (
	"context"
	"io"
	"sync"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
)

func nopLogger() zerolog.Logger { return zerolog.New(io.Discard) }

// fakeEmbedder maps text to a vector through fn, counting calls.
type fakeEmbedder struct {
	mu    sync.Mutex
	fn    func(text string) ([]float32, error)
	calls int
}

func (e *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.fn == nil {
		return []float32{1, 0, 0}, nil
	}
	return e.fn(text)
}

func (e *fakeEmbedder) Dimensions() int { return 3 }

func (e *fakeEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// fakeChatModel answers with reply or fails with err.
type fakeChatModel struct {
	reply string
	err   error
	calls int
	last  []*schema.Message
}

func (m *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	m.calls++
	m.last = input
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}
