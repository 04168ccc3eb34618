// Package queue carries pipeline jobs from the API to the workers.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrLeaseHeld is returned when another worker is already processing the document.
var ErrLeaseHeld = errors.New("document lease held by another worker")

// Stage is where a pipeline run starts.
type Stage string

const (
	StageExtract Stage = "extract"
	StageEmbed   Stage = "embed"
)

type Job struct {
	DocumentID uuid.UUID `json:"document_id"`
	From       Stage     `json:"from,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Delivery is a dequeued job that must be acknowledged once handled.
type Delivery struct {
	Job Job
	raw string
}

// Queue is an at-least-once job queue. A job stays queued once per document:
// enqueueing a document that is already waiting is a no-op.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	// Dequeue waits up to timeout for a job; it returns nil, nil when none arrived.
	Dequeue(ctx context.Context, timeout time.Duration) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
}

// Lease grants exclusive processing of one document for a bounded time.
type Lease interface {
	// Acquire returns ErrLeaseHeld when someone else holds the lease.
	Acquire(ctx context.Context, documentID uuid.UUID, ttl time.Duration) (release func(), err error)
}
