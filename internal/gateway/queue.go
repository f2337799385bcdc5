package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/genie/internal/types"
)

// Queue manages per-frontend lanes with a global concurrency semaphore.
// Each lane key (e.g. one Telegram chat) gets its own FIFO channel so its
// runs are processed in order, while the semaphore bounds how many runs
// execute at once across all lanes. The controller streams one response at
// a time, so the gateway uses a single slot.
type Queue struct {
	lanes     map[types.SessionKey]chan *Run
	semaphore *semaphore.Weighted
	processor func(*Run) error
	active    atomic.Int64
	pending   atomic.Int64
	stopped   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
}

// NewQueue creates a Queue that allows up to maxConcurrent runs to execute
// simultaneously across all lanes.
func NewQueue(maxConcurrent int64) *Queue {
	return &Queue{
		lanes:     make(map[types.SessionKey]chan *Run),
		semaphore: semaphore.NewWeighted(maxConcurrent),
	}
}

// Start initialises the queue's context. Must be called before Enqueue.
func (q *Queue) Start(ctx context.Context) {
	q.ctx, q.cancel = context.WithCancel(ctx)
}

// Stop cancels the queue context, closes all lanes, and waits for in-flight
// processors to finish.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Lock()
	if !q.stopped {
		q.stopped = true
		for _, lane := range q.lanes {
			close(lane)
		}
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// Enqueue adds a Run to its lane, creating the lane (and its goroutine) on
// first use. Returns an error if the queue is stopped or the lane is full.
func (q *Queue) Enqueue(run *Run) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped || q.ctx == nil {
		return fmt.Errorf("queue not running")
	}

	lane, exists := q.lanes[run.Lane]
	if !exists {
		lane = make(chan *Run, 100)
		q.lanes[run.Lane] = lane
		q.wg.Add(1)
		go q.processLane(lane)
	}

	select {
	case lane <- run:
		q.pending.Add(1)
		return nil
	default:
		return fmt.Errorf("queue full for %s", run.Lane)
	}
}

// processLane drains a single lane, acquiring a semaphore slot before
// running the processor synchronously.
func (q *Queue) processLane(lane chan *Run) {
	defer q.wg.Done()
	for {
		select {
		case run, ok := <-lane:
			if !ok {
				return
			}
			if err := q.semaphore.Acquire(q.ctx, 1); err != nil {
				q.pending.Add(-1)
				q.abandon(run, err)
				return
			}
			q.pending.Add(-1)
			if run.Ctx == nil {
				run.Ctx = q.ctx
			}
			if err := run.Ctx.Err(); err != nil {
				q.abandon(run, err)
				q.semaphore.Release(1)
				continue
			}
			if q.processor != nil {
				q.active.Add(1)
				run.start()
				err := q.processor(run)
				run.finish(err)
				if err != nil {
					slog.Error("run failed", "run_id", string(run.ID), "lane", string(run.Lane), "error", err)
				}
				q.active.Add(-1)
			}
			q.semaphore.Release(1)
		case <-q.ctx.Done():
			return
		}
	}
}

// abandon completes a run that never reached the processor.
func (q *Queue) abandon(run *Run, err error) {
	run.finish(err)
	slog.Debug("run skipped", "run_id", string(run.ID), "lane", string(run.Lane), "error", err)
	if run.OnComplete != nil {
		run.OnComplete(Result{RunID: run.ID, SessionID: run.SessionID, Err: err})
	}
}

// Pending returns the number of runs waiting for a slot.
func (q *Queue) Pending() int64 {
	return q.pending.Load()
}

// WaitIdle blocks until no runs are queued or being processed, or the
// timeout expires. Returns true if idle, false if timed out.
func (q *Queue) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if q.active.Load() == 0 && q.pending.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(20 * time.Millisecond):
		}
	}
}

// SetProcessor sets the function invoked for each dequeued Run.
func (q *Queue) SetProcessor(fn func(*Run) error) {
	q.processor = fn
}
