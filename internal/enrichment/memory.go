package enrichment

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

const defaultMemoryQueueSize = 256

// MemoryQueue is the in-process queue used when no broker is configured.
// Jobs are lost on restart; the retry job picks up what stays PENDING.
type MemoryQueue struct {
	mu     sync.RWMutex
	jobs   chan Job
	closed bool
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{jobs: make(chan Job, defaultMemoryQueueSize)}
}

// Publish never blocks. A full buffer is reported to the caller.
func (q *MemoryQueue) Publish(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Run consumes jobs until ctx is done or the queue is closed.
func (q *MemoryQueue) Run(ctx context.Context, log *zap.Logger, handle Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-q.jobs:
			if !ok {
				return
			}
			if err := handle(ctx, job); err != nil {
				log.Warn("enrichment job dead-lettered",
					zap.String("job_id", job.ID),
					zap.String("interaction_id", job.InteractionID.String()),
					zap.Error(err),
				)
			}
		}
	}
}

func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.jobs)
}

func (q *MemoryQueue) Len() int { return len(q.jobs) }
