package worker

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgo/docqa/internal/queue"
)

type recordingProcessor struct {
	mu    sync.Mutex
	seen  []uuid.UUID
	delay time.Duration
	err   error
}

func (r *recordingProcessor) Process(_ context.Context, job queue.Job) error {
	time.Sleep(r.delay)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, job.DocumentID)
	return r.err
}

func (r *recordingProcessor) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func TestPool_ProcessesQueuedJobs(t *testing.T) {
	q := queue.NewMemoryQueue(16)
	proc := &recordingProcessor{err: errors.New("failures are logged, not fatal")}
	pool := NewPool(q, proc, Config{Concurrency: 3, PollTimeout: 10 * time.Millisecond}, zerolog.New(io.Discard))

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(context.Background(), queue.Job{DocumentID: uuid.New()}))
	}

	pool.Start()
	pool.Start()
	assert.Eventually(t, func() bool { return proc.count() == 5 }, time.Second, 5*time.Millisecond)
	pool.Stop()
	pool.Stop()

	assert.Zero(t, q.Len())
}

func TestPool_StopWaitsForInFlightJob(t *testing.T) {
	q := queue.NewMemoryQueue(4)
	proc := &recordingProcessor{delay: 50 * time.Millisecond}
	pool := NewPool(q, proc, Config{Concurrency: 1, PollTimeout: 10 * time.Millisecond}, zerolog.New(io.Discard))

	require.NoError(t, q.Enqueue(context.Background(), queue.Job{DocumentID: uuid.New()}))
	pool.Start()
	time.Sleep(20 * time.Millisecond)
	pool.Stop()

	assert.Equal(t, 1, proc.count())
}
