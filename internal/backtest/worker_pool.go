package backtest

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// WorkerPool runs jobs on a fixed number of goroutines and delivers results
// in completion order. A pool is started once and stopped once.
type WorkerPool[J, R any] struct {
	workerCount int
	jobQueue    chan J
	resultQueue chan R
	handler     func(context.Context, J) R
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	stopOnce    sync.Once
}

// PoolSize returns min(GOMAXPROCS, limit), at least 1. A non-positive limit
// means no cap.
func PoolSize(limit int) int {
	n := runtime.GOMAXPROCS(0)
	if limit > 0 && limit < n {
		n = limit
	}
	if n < 1 {
		n = 1
	}
	return n
}

// NewWorkerPool creates a pool bound to parent. Jobs not yet started when
// parent is cancelled are skipped.
func NewWorkerPool[J, R any](parent context.Context, workerCount, jobBufferSize int, handler func(context.Context, J) R) *WorkerPool[J, R] {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	ctx, cancel := context.WithCancel(parent)
	return &WorkerPool[J, R]{
		workerCount: workerCount,
		jobQueue:    make(chan J, jobBufferSize),
		resultQueue: make(chan R, jobBufferSize),
		handler:     handler,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start starts the worker pool
func (wp *WorkerPool[J, R]) Start() {
	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker()
	}
}

// Stop closes the job queue, waits for workers and closes the result channel.
// Callers must keep draining Results until it is closed.
func (wp *WorkerPool[J, R]) Stop() {
	wp.stopOnce.Do(func() {
		close(wp.jobQueue)
		wp.wg.Wait()
		close(wp.resultQueue)
		wp.cancel()
	})
}

// SubmitJob queues a job, blocking while the queue is full.
func (wp *WorkerPool[J, R]) SubmitJob(job J) error {
	if err := wp.ctx.Err(); err != nil {
		return err
	}
	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.ctx.Done():
		return wp.ctx.Err()
	}
}

// Results returns the channel of finished jobs
func (wp *WorkerPool[J, R]) Results() <-chan R {
	return wp.resultQueue
}

// Context is cancelled when the parent is cancelled or the pool stops.
func (wp *WorkerPool[J, R]) Context() context.Context {
	return wp.ctx
}

func (wp *WorkerPool[J, R]) worker() {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		if wp.ctx.Err() != nil {
			// drain without starting new work
			continue
		}
		wp.resultQueue <- wp.handler(wp.ctx, job)
	}
}

// ProgressTracker tracks the progress of batch processing
type ProgressTracker struct {
	total     int
	completed int
	failed    int
	startTime time.Time
	mutex     sync.RWMutex
}

// Progress is a snapshot of a ProgressTracker.
type Progress struct {
	Completed int
	Failed    int
	Total     int
	Elapsed   time.Duration
	Remaining time.Duration
}

// Done returns the number of finished jobs, successful or not
func (p Progress) Done() int { return p.Completed + p.Failed }

// NewProgressTracker creates a new progress tracker
func NewProgressTracker(total int) *ProgressTracker {
	return &ProgressTracker{
		total:     total,
		startTime: time.Now(),
	}
}

// Increment records one finished job.
func (pt *ProgressTracker) Increment(ok bool) {
	pt.mutex.Lock()
	defer pt.mutex.Unlock()
	if ok {
		pt.completed++
	} else {
		pt.failed++
	}
}

// Snapshot returns the current progress with an estimate of the time left.
func (pt *ProgressTracker) Snapshot() Progress {
	pt.mutex.RLock()
	defer pt.mutex.RUnlock()

	p := Progress{
		Completed: pt.completed,
		Failed:    pt.failed,
		Total:     pt.total,
		Elapsed:   time.Since(pt.startTime),
	}
	if done := p.Done(); done > 0 {
		avgTimePerItem := p.Elapsed / time.Duration(done)
		p.Remaining = avgTimePerItem * time.Duration(pt.total-done)
	}
	return p
}
