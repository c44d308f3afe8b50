// Package worker provides an asynchronous worker pool for the side effects
// of a completed pipeline stage: episodic memory persistence and event
// publication.
//
// The pool decouples these writes from the caller's path so a slow memory
// backend or broker never delays the next stage. A full queue drops the job
// with an error log rather than blocking.
package worker

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/quillworks/quill/pkg/eventstream"
	"github.com/quillworks/quill/pkg/memory"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Job is the side work of one completed stage.
type Job struct {
	// Stage names the completed stage, for logging.
	Stage string

	// EpisodeKey, EpisodeValue and EpisodeMetadata describe the episodic
	// memory entry to store. An empty key skips episode storage.
	EpisodeKey      string
	EpisodeValue    map[string]any
	EpisodeMetadata map[string]string

	// Event is published when non-nil.
	Event *eventstream.StageCompletedEvent
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Memory is the facade episodes are stored through. Optional.
	Memory *memory.Facade

	// Publisher receives stage events. Optional.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Pool processes stage side effects asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewPool creates a new pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full, resulting in the job being dropped
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.queue <- job:
		p.logger.Debug("stage side work queued",
			zap.String("stage", job.Stage),
		)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped",
			zap.String("stage", job.Stage),
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after all stage entry points returned.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", zap.Uint("worker_id", id))

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("worker stopped", zap.Uint("worker_id", id))
}

// processJob stores the episode and publishes the event. Failures are
// logged, never surfaced; stage side work must not fail the pipeline.
func (p *Pool) processJob(job Job) {
	ctx := context.Background()

	if job.EpisodeKey != "" && p.config.Memory != nil {
		p.config.Memory.StoreEpisode(ctx, job.EpisodeKey, job.EpisodeValue, job.EpisodeMetadata)
	}

	if job.Event != nil && p.config.Publisher != nil {
		if err := p.config.Publisher.PublishStageCompleted(ctx, job.Event); err != nil {
			p.logger.Error("async event publication failed",
				zap.String("stage", job.Stage),
				zap.Error(err),
			)
			return
		}
	}

	p.logger.Debug("stage side work complete",
		zap.String("stage", job.Stage),
	)
}
