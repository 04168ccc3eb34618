// Package worker runs pipeline jobs pulled from the queue.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tgo/docqa/internal/queue"
)

// Processor handles one job. It is implemented by service.PipelineService.
type Processor interface {
	Process(ctx context.Context, job queue.Job) error
}

type Config struct {
	Concurrency int
	// PollTimeout bounds each blocking dequeue so Stop is noticed promptly.
	PollTimeout time.Duration
}

// Pool runs Concurrency goroutines that each take one job at a time.
type Pool struct {
	queue     queue.Queue
	processor Processor
	cfg       Config
	logger    zerolog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewPool(q queue.Queue, processor Processor, cfg Config, logger zerolog.Logger) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Second
	}
	return &Pool{
		queue:     q,
		processor: processor,
		cfg:       cfg,
		logger:    logger.With().Str("component", "worker_pool").Logger(),
	}
}

func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.running = true

	for i := 0; i < p.cfg.Concurrency; i++ {
		p.wg.Add(1)
		go p.loop(ctx, i)
	}
	p.logger.Info().Int("concurrency", p.cfg.Concurrency).Msg("worker pool started")
}

// Stop stops taking new jobs and waits for in-flight ones to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info().Msg("worker pool stopped")
}

func (p *Pool) loop(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.logger.With().Int("worker", id).Logger()

	for {
		if ctx.Err() != nil {
			return
		}

		d, err := p.queue.Dequeue(ctx, p.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("dequeue failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if d == nil {
			continue
		}

		p.handle(log, d)
	}
}

// handle runs a job to completion on a fresh context so that stopping the
// pool never cuts a stage short.
func (p *Pool) handle(log zerolog.Logger, d *queue.Delivery) {
	ctx := context.Background()
	log = log.With().Str("document_id", d.Job.DocumentID.String()).Logger()
	start := time.Now()

	if err := p.processor.Process(ctx, d.Job); err != nil {
		log.Error().Err(err).Dur("duration", time.Since(start)).Msg("job failed")
	} else {
		log.Debug().Dur("duration", time.Since(start)).Msg("job done")
	}

	if err := p.queue.Ack(ctx, d); err != nil {
		log.Error().Err(err).Msg("ack failed")
	}
}
