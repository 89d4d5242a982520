// Package queue admits review tasks, bounds concurrency, and drives one
// workflow run per task.
//
// Submission never blocks: a full queue rejects immediately so the
// admission path can acknowledge submitters regardless of processing
// load. Workers are independent; a panic inside one task never takes
// down the pool. No ordering is promised between distinct submissions.
package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/codewatchers/reviewd/internal/domain"
	"github.com/codewatchers/reviewd/internal/observability"
)

// ErrQueueFull is returned by Submit when the queue is at capacity.
var ErrQueueFull = domain.NewAdmissionRejectedError("queue at capacity")

// Processor executes one admitted task. The pool treats the processor's
// error as the task's terminal failure; it is logged, never propagated.
type Processor interface {
	Process(ctx context.Context, task domain.ReviewTask) error
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, task domain.ReviewTask) error

// Process implements Processor.
func (f ProcessorFunc) Process(ctx context.Context, task domain.ReviewTask) error {
	return f(ctx, task)
}

// Stats is a point-in-time snapshot of the pool.
type Stats struct {
	QueueDepth  int `json:"queue_depth"`
	BusyWorkers int `json:"busy_workers"`
	MaxWorkers  int `json:"max_workers"`
}

// SubmitResult reports the outcome of an accepted submission.
type SubmitResult struct {
	TaskID string `json:"taskId"`
	// SupersededID is the ID of a still-queued older task for the same
	// repository+PR that this submission replaced, if any.
	SupersededID string `json:"supersededId,omitempty"`
}

type entry struct {
	task       domain.ReviewTask
	superseded atomic.Bool
}

// Pool is the intake queue plus its fixed-size worker pool.
type Pool struct {
	capacity  int
	workers   int
	processor Processor
	logger    observability.Logger

	tasks chan *entry

	mu     sync.Mutex
	queued map[string]*entry
	closed bool

	depth atomic.Int64
	busy  atomic.Int64

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New creates a pool with the given queue capacity and worker count.
func New(capacity, workers int, processor Processor, logger observability.Logger) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		capacity:  capacity,
		workers:   workers,
		processor: processor,
		logger:    logger,
		tasks:     make(chan *entry, capacity),
		queued:    make(map[string]*entry),
	}
}

// Start launches the workers. Tasks run under a context derived from ctx;
// canceling it via Stop abandons in-flight work.
func (p *Pool) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(workerCtx)
	}
}

// Submit admits a task without blocking. A full queue returns ErrQueueFull.
// If an older task for the same repository+PR is still queued, it is
// marked superseded and reported in the result; a task already being
// processed runs to completion.
func (p *Pool) Submit(task domain.ReviewTask) (SubmitResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return SubmitResult{}, domain.NewAdmissionRejectedError("pool is shutting down")
	}

	e := &entry{task: task}
	select {
	case p.tasks <- e:
	default:
		return SubmitResult{}, fmt.Errorf("submitting %s: %w", task.Key(), ErrQueueFull)
	}
	p.depth.Add(1)

	result := SubmitResult{TaskID: task.ID}
	if old, ok := p.queued[task.Key()]; ok && !old.superseded.Load() {
		old.superseded.Store(true)
		result.SupersededID = old.task.ID
		p.logInfo(context.Background(), "queued task superseded", map[string]interface{}{
			"key": task.Key(), "old": old.task.ID, "new": task.ID,
		})
	}
	p.queued[task.Key()] = e

	return result, nil
}

// Stats returns a point-in-time snapshot of queue depth and worker usage.
func (p *Pool) Stats() Stats {
	return Stats{
		QueueDepth:  int(p.depth.Load()),
		BusyWorkers: int(p.busy.Load()),
		MaxWorkers:  p.workers,
	}
}

// Drain stops intake and waits for queued and in-flight tasks to finish.
func (p *Pool) Drain() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	p.wg.Wait()
}

// Stop cancels in-flight work and shuts the pool down.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.Drain()
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for e := range p.tasks {
		p.depth.Add(-1)
		p.forget(e)

		if e.superseded.Load() {
			p.logInfo(ctx, "dropping superseded task", map[string]interface{}{
				"task": e.task.ID, "key": e.task.Key(),
			})
			continue
		}
		if ctx.Err() != nil {
			continue
		}

		p.busy.Add(1)
		p.process(ctx, e.task)
		p.busy.Add(-1)
	}
}

// process runs one task, containing panics so a bad task cannot take a
// worker down with it.
func (p *Pool) process(ctx context.Context, task domain.ReviewTask) {
	defer func() {
		if r := recover(); r != nil {
			p.logError(ctx, "task panicked", map[string]interface{}{
				"task": task.ID, "panic": fmt.Sprintf("%v", r),
			})
		}
	}()

	if err := p.processor.Process(ctx, task); err != nil {
		p.logError(ctx, "task failed", map[string]interface{}{
			"task": task.ID, "key": task.Key(), "error": err.Error(),
		})
		return
	}
	p.logInfo(ctx, "task completed", map[string]interface{}{
		"task": task.ID, "key": task.Key(),
	})
}

// forget removes the entry from the supersede registry if it is still the
// registered one for its key.
func (p *Pool) forget(e *entry) {
	p.mu.Lock()
	if cur, ok := p.queued[e.task.Key()]; ok && cur == e {
		delete(p.queued, e.task.Key())
	}
	p.mu.Unlock()
}

func (p *Pool) logInfo(ctx context.Context, message string, fields map[string]interface{}) {
	if p.logger != nil {
		p.logger.LogInfo(ctx, message, fields)
	}
}

func (p *Pool) logError(ctx context.Context, message string, fields map[string]interface{}) {
	if p.logger != nil {
		p.logger.LogError(ctx, message, fields)
	}
}
