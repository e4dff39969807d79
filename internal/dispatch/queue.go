// Package dispatch serializes outbound work per recipient. Each recipient
// gets its own FIFO lane so two humanized deliveries to the same chat never
// interleave their chunks, while a global semaphore caps how many lanes run
// at once.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

const laneBuffer = 100

// ErrStopped is returned by Submit after Stop and by Wait for jobs that were
// dropped at shutdown.
var ErrStopped = errors.New("dispatch queue stopped")

// Func is the unit of work run inside a lane.
type Func func(ctx context.Context) (any, error)

// Job is one queued unit of work and its eventual outcome.
type Job struct {
	ID        string
	Recipient string
	Queued    time.Time

	fn     Func
	result any
	err    error
	done   chan struct{}
}

// Wait blocks until the job has run or ctx is done. A cancelled wait does
// not cancel the job.
func (j *Job) Wait(ctx context.Context) (any, error) {
	select {
	case <-j.done:
		return j.result, j.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (j *Job) finish(result any, err error) {
	j.result, j.err = result, err
	close(j.done)
}

// Queue manages per-recipient lanes with a global concurrency semaphore.
type Queue struct {
	lanes     map[string]chan *Job
	semaphore *semaphore.Weighted
	active    atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewQueue creates a Queue that runs at most maxConcurrent jobs at a time
// across all lanes.
func NewQueue(maxConcurrent int64) *Queue {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Queue{
		lanes:     make(map[string]chan *Job),
		semaphore: semaphore.NewWeighted(maxConcurrent),
	}
}

// Start initialises the queue's context. Must be called before Submit.
func (q *Queue) Start(ctx context.Context) {
	q.ctx, q.cancel = context.WithCancel(ctx)
}

// Stop cancels in-flight jobs, closes all lanes and waits for the lane
// goroutines to exit. Jobs still queued finish with ErrStopped.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Lock()
	for key, lane := range q.lanes {
		close(lane)
		delete(q.lanes, key)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// Submit appends fn to the recipient's lane, creating the lane on first use.
func (q *Queue) Submit(recipient string, fn Func) (*Job, error) {
	if q.ctx == nil {
		return nil, fmt.Errorf("dispatch queue not started")
	}

	job := &Job{
		ID:        uuid.New().String(),
		Recipient: recipient,
		Queued:    time.Now(),
		fn:        fn,
		done:      make(chan struct{}),
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ctx.Err() != nil {
		return nil, ErrStopped
	}
	lane, exists := q.lanes[recipient]
	if !exists {
		lane = make(chan *Job, laneBuffer)
		q.lanes[recipient] = lane
		q.wg.Add(1)
		go q.processLane(recipient, lane)
	}

	select {
	case lane <- job:
		return job, nil
	default:
		return nil, fmt.Errorf("dispatch lane full for %s", recipient)
	}
}

func (q *Queue) processLane(recipient string, lane chan *Job) {
	defer q.wg.Done()
	for job := range lane {
		if q.ctx.Err() != nil {
			job.finish(nil, ErrStopped)
			continue
		}
		if err := q.semaphore.Acquire(q.ctx, 1); err != nil {
			job.finish(nil, ErrStopped)
			continue
		}
		q.active.Add(1)
		start := time.Now()
		result, err := job.fn(q.ctx)
		if err != nil {
			slog.Error("dispatch job failed", "job_id", job.ID, "recipient", recipient, "error", err)
		} else {
			slog.Debug("dispatch job done", "job_id", job.ID, "recipient", recipient,
				"waited", start.Sub(job.Queued), "took", time.Since(start))
		}
		job.finish(result, err)
		q.active.Add(-1)
		q.semaphore.Release(1)
	}
}

// Active reports how many jobs are running right now.
func (q *Queue) Active() int64 {
	return q.active.Load()
}

// WaitIdle blocks until no jobs are running, or the timeout expires.
// Returns true if idle, false if timed out.
func (q *Queue) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if q.active.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
}
