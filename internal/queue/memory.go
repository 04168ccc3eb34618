package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue is an in-process queue for tests and single-binary setups.
type MemoryQueue struct {
	mu     sync.Mutex
	jobs   chan Job
	queued map[uuid.UUID]bool
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryQueue{
		jobs:   make(chan Job, capacity),
		queued: make(map[uuid.UUID]bool),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	if job.From == "" {
		job.From = StageExtract
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}

	q.mu.Lock()
	if q.queued[job.DocumentID] {
		q.mu.Unlock()
		return nil
	}
	q.queued[job.DocumentID] = true
	q.mu.Unlock()

	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		q.mu.Lock()
		delete(q.queued, job.DocumentID)
		q.mu.Unlock()
		return ctx.Err()
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case job := <-q.jobs:
		q.mu.Lock()
		delete(q.queued, job.DocumentID)
		q.mu.Unlock()
		return &Delivery{Job: job}, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Ack(context.Context, *Delivery) error {
	return nil
}

// Len returns the number of waiting jobs.
func (q *MemoryQueue) Len() int {
	return len(q.jobs)
}

// MemoryLease is a process-local Lease.
type MemoryLease struct {
	mu   sync.Mutex
	held map[uuid.UUID]time.Time
}

func NewMemoryLease() *MemoryLease {
	return &MemoryLease{held: make(map[uuid.UUID]time.Time)}
}

func (l *MemoryLease) Acquire(_ context.Context, documentID uuid.UUID, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if until, ok := l.held[documentID]; ok && time.Now().Before(until) {
		return nil, ErrLeaseHeld
	}
	until := time.Now().Add(ttl)
	l.held[documentID] = until

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[documentID].Equal(until) {
			delete(l.held, documentID)
		}
	}, nil
}
