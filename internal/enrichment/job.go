package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/opensmile/internal/clock"
	interactiondomain "github.com/smallbiznis/opensmile/internal/interaction/domain"
)

var (
	ErrQueueFull        = errors.New("enrichment_queue_full")
	ErrQueueClosed      = errors.New("enrichment_queue_closed")
	ErrInvalidJob       = errors.New("invalid_enrichment_job")
	ErrNoConsumer       = errors.New("enrichment_broker_not_configured")
	ErrNothingToAnalyze = errors.New("nothing_to_analyze")
)

// Job asks for one interaction to be post-processed. ID is a ulid so message
// ids sort by enqueue time.
type Job struct {
	ID            string       `json:"id"`
	InteractionID snowflake.ID `json:"interactionId"`
	EnqueuedAt    time.Time    `json:"enqueuedAt"`
}

func NewJob(interactionID snowflake.ID, now time.Time) Job {
	return Job{
		ID:            ulid.Make().String(),
		InteractionID: interactionID,
		EnqueuedAt:    now.UTC(),
	}
}

func decodeJob(body []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return Job{}, ErrInvalidJob
	}
	if job.InteractionID == 0 {
		return Job{}, ErrInvalidJob
	}
	return job, nil
}

// Publisher puts jobs on the enrichment queue.
type Publisher interface {
	Publish(ctx context.Context, job Job) error
}

// Handler processes one job. A returned error means the job is dead.
type Handler func(ctx context.Context, job Job) error

// Enqueuer adapts a Publisher to the interaction service.
type Enqueuer struct {
	publisher Publisher
	clock     clock.Clock
}

func NewEnqueuer(publisher Publisher, c clock.Clock) interactiondomain.Enqueuer {
	return &Enqueuer{publisher: publisher, clock: c}
}

func (e *Enqueuer) Enqueue(ctx context.Context, interactionID snowflake.ID) error {
	return e.publisher.Publish(ctx, NewJob(interactionID, e.clock.Now()))
}
