package reload

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/leslieo2/go-app-reload/internal/observability"
)

// Coordinator runs the reload transaction for one application: detect
// changed watchers, tear their elements down, and re-execute their files.
// Perform is serialized by a mutex scoped to this coordinator, so
// concurrent request threads for the same application never interleave a
// teardown with a re-execution, while unrelated applications reload
// independently.
type Coordinator struct {
	app      string
	registry *Registry
	host     Host
	logger   *zap.Logger

	metrics     *observability.Metrics
	tracer      *observability.Tracer
	broadcaster *Broadcaster

	mu sync.Mutex
}

// CoordinatorOption configures optional collaborators.
type CoordinatorOption func(*Coordinator)

func WithMetrics(m *observability.Metrics) CoordinatorOption {
	return func(c *Coordinator) { c.metrics = m }
}

func WithTracer(t *observability.Tracer) CoordinatorOption {
	return func(c *Coordinator) { c.tracer = t }
}

func WithBroadcaster(b *Broadcaster) CoordinatorOption {
	return func(c *Coordinator) { c.broadcaster = b }
}

func NewCoordinator(app string, registry *Registry, host Host, logger *zap.Logger, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		app:      app,
		registry: registry,
		host:     host,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Perform runs one detection-and-reload pass. Per changed watcher, in
// first-reference order: refresh inline templates when the file defines
// any, deactivate every owned element in registration order, clear the
// file from the loaded-file bookkeeping, re-execute it, and record the
// new modification time.
//
// A re-execution failure propagates to the caller. The elements already
// deactivated stay deactivated and the watcher's timestamp is not
// updated, so the next trigger retries the same file. Masking the error
// would silently serve a half-updated application.
func (c *Coordinator) Perform(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := c.registry.Changed()
	if len(changed) == 0 {
		return nil
	}

	start := time.Now()
	if c.tracer != nil {
		var span observability.Span
		ctx, span = c.tracer.StartSpan(ctx, "reload.perform",
			attribute.String("application", c.app),
			attribute.Int("changed_files", len(changed)),
		)
		defer span.End()
	}

	for _, w := range changed {
		if err := c.reloadFile(ctx, w); err != nil {
			if c.metrics != nil {
				c.metrics.RecordFileReload(c.app, "error")
			}
			c.logger.Error("reload failed",
				zap.String("application", c.app),
				zap.String("path", w.Path()),
				zap.Error(err),
			)
			return fmt.Errorf("reload %s: %w", w.Path(), err)
		}
		if c.metrics != nil {
			c.metrics.RecordFileReload(c.app, "ok")
		}
	}

	if c.metrics != nil {
		c.metrics.RecordReloadPass(c.app, time.Since(start))
		c.metrics.SetWatchedFiles(c.app, len(c.registry.All()))
	}
	c.logger.Info("reload pass complete",
		zap.String("application", c.app),
		zap.Int("files", len(changed)),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

func (c *Coordinator) reloadFile(ctx context.Context, w *Watcher) error {
	c.logger.Debug("reloading file",
		zap.String("application", c.app),
		zap.String("path", w.Path()),
	)

	// Template refresh comes first: re-execution does not necessarily
	// re-trigger the template notification path on its own.
	if w.HasInlineTemplates() {
		if err := c.host.RefreshInlineTemplates(ctx, w.Path()); err != nil {
			return fmt.Errorf("refresh inline templates: %w", err)
		}
	}

	for _, el := range w.drain() {
		if err := deactivate(c.host, el); err != nil {
			return err
		}
	}

	c.host.MarkUnloaded(w.Path())
	if err := c.host.LoadFile(ctx, w.Path()); err != nil {
		// Timestamp deliberately not updated: the file stays "changed"
		// and is retried on the next trigger.
		return err
	}
	w.Update()

	if c.broadcaster != nil {
		c.broadcaster.Broadcast(ctx, Event{
			Application: c.app,
			Path:        w.Path(),
			Elements:    len(w.Elements()),
		})
	}
	return nil
}
