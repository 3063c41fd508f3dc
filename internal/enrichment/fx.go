package enrichment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/opensmile/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module wires the job, its queue and the in-process worker. With
// RABBITMQ_URL set, jobs go to the broker and apps/worker consumes them.
var Module = fx.Module("enrichment",
	fx.Provide(
		NewStubAnalyzer,
		NewStubTranscriber,
		NewProcessor,
		NewRetention,
		NewMemoryQueue,
		NewRabbitFromConfig,
		ProvidePublisher,
		NewEnqueuer,
	),
	fx.Invoke(StartInProcessWorker),
)

// ConsumerModule runs the broker consumer. It is only used by apps/worker.
var ConsumerModule = fx.Module("enrichment.consumer",
	fx.Invoke(StartConsumer),
)

// NewRabbitFromConfig returns nil when no broker is configured.
func NewRabbitFromConfig(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*Rabbit, error) {
	url := strings.TrimSpace(cfg.RabbitMQURL)
	if url == "" {
		return nil, nil
	}
	r, err := DialRabbit(url, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return r.Close() },
	})
	return r, nil
}

func ProvidePublisher(r *Rabbit, mem *MemoryQueue) Publisher {
	if r != nil {
		return r
	}
	return mem
}

func StartInProcessWorker(lc fx.Lifecycle, r *Rabbit, mem *MemoryQueue, p *Processor, log *zap.Logger) {
	if r != nil {
		return
	}
	log = log.Named("enrichment.worker")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				mem.Run(ctx, log, p.Handle)
			}()
			log.Info("in-process enrichment worker started")
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}

func StartConsumer(lc fx.Lifecycle, shutdowner fx.Shutdowner, r *Rabbit, p *Processor, cfg config.Config, log *zap.Logger) error {
	if r == nil {
		return fmt.Errorf("start enrichment consumer: %w", ErrNoConsumer)
	}
	log = log.Named("enrichment.consumer")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				err := r.Consume(ctx, cfg.AppName+"-worker", p.Handle)
				if err != nil && !errors.Is(err, context.Canceled) {
					log.Error("enrichment consumer stopped", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
	return nil
}
