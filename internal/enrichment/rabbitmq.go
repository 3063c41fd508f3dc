package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	ExchangeName = "ex.enrichment"
	QueueName    = "q.enrichment"
	DLXName      = "ex.enrichment.dlx"
	DLQName      = "q.enrichment.dlq"
	RoutingKey   = "k.interaction"

	consumerPrefetch = 8
)

// Rabbit publishes and consumes enrichment jobs. Publishing is serialised
// because an amqp channel is not safe for concurrent use.
type Rabbit struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	log  *zap.Logger

	mu sync.Mutex
}

func DialRabbit(url string, log *zap.Logger) (*Rabbit, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if err := setupTopology(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare enrichment topology: %w", err)
	}
	return &Rabbit{conn: conn, ch: ch, log: log.Named("enrichment.rabbit")}, nil
}

// setupTopology declares the work queue and its dead-letter pair. A nack
// without requeue routes the message to q.enrichment.dlq.
func setupTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(DLXName, "direct", true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(DLQName, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.QueueBind(DLQName, RoutingKey, DLXName, false, nil); err != nil {
		return err
	}

	if err := ch.ExchangeDeclare(ExchangeName, "direct", true, false, false, false, nil); err != nil {
		return err
	}
	args := amqp.Table{
		"x-dead-letter-exchange":    DLXName,
		"x-dead-letter-routing-key": RoutingKey,
	}
	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, args); err != nil {
		return err
	}
	return ch.QueueBind(QueueName, RoutingKey, ExchangeName, false, nil)
}

func (r *Rabbit) Publish(ctx context.Context, job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode enrichment job: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	err = r.ch.PublishWithContext(ctx, ExchangeName, RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    job.ID,
		Timestamp:    job.EnqueuedAt,
		Body:         body,
		DeliveryMode: amqp.Persistent,
	})
	if err != nil {
		return fmt.Errorf("publish enrichment job: %w", err)
	}
	return nil
}

// Consume acks handled jobs and nacks failed or malformed ones without
// requeue so they land on the dead-letter queue. It returns when ctx is done
// or the delivery channel closes.
func (r *Rabbit) Consume(ctx context.Context, consumer string, handle Handler) error {
	if err := r.ch.Qos(consumerPrefetch, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}
	deliveries, err := r.ch.ConsumeWithContext(ctx, QueueName, consumer, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			r.handle(ctx, d, handle)
		}
	}
}

func (r *Rabbit) handle(ctx context.Context, d amqp.Delivery, handle Handler) {
	job, err := decodeJob(d.Body)
	if err != nil {
		r.log.Warn("malformed enrichment message", zap.String("message_id", d.MessageId))
		_ = d.Nack(false, false)
		return
	}
	if err := handle(ctx, job); err != nil {
		if ctx.Err() != nil {
			_ = d.Nack(false, true)
			return
		}
		r.log.Warn("enrichment job dead-lettered",
			zap.String("job_id", job.ID),
			zap.String("interaction_id", job.InteractionID.String()),
		)
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

func (r *Rabbit) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ch.Close(); err != nil {
		_ = r.conn.Close()
		return err
	}
	return r.conn.Close()
}
