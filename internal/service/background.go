package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const defaultTaskTimeout = 10 * time.Second

// Background runs best-effort side effects off the request path. Failures
// are logged and counted, never returned to whoever scheduled the task.
type Background struct {
	logger   zerolog.Logger
	timeout  time.Duration
	failures metric.Int64Counter
	wg       sync.WaitGroup
}

// NewBackground creates a runner. A nil meter uses the global provider.
func NewBackground(logger zerolog.Logger, meter metric.Meter, timeout time.Duration) *Background {
	if meter == nil {
		meter = otel.Meter("github.com/folio/internal/service")
	}
	if timeout <= 0 {
		timeout = defaultTaskTimeout
	}
	failures, err := meter.Int64Counter("folio.background.failures",
		metric.WithDescription("Background tasks that returned an error or panicked"),
	)
	if err != nil {
		logger.Warn().Err(err).Msg("background failure counter unavailable")
	}
	return &Background{logger: logger, timeout: timeout, failures: failures}
}

// Go starts fn on a context detached from ctx's cancellation but keeping its
// values. It returns immediately.
func (b *Background) Go(ctx context.Context, name string, fn func(context.Context) error) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				b.fail(taskCtx, name, nil, r)
			}
		}()
		if err := fn(taskCtx); err != nil {
			b.fail(taskCtx, name, err, nil)
		}
	}()
}

// Wait blocks until every started task has returned.
func (b *Background) Wait() {
	b.wg.Wait()
}

func (b *Background) fail(ctx context.Context, name string, err error, panicked any) {
	event := b.logger.Warn().Str("task", name)
	if panicked != nil {
		event = b.logger.Error().Str("task", name).Interface("panic", panicked)
	}
	event.Err(err).Msg("background task failed")

	if b.failures != nil {
		b.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("task", name)))
	}
}
