package audit

import (
	"context"
	"time"

	"github.com/platterhq/platter/pkg/async"
	"github.com/platterhq/platter/pkg/observability"
)

// dispatchTimeout bounds a single audit write.
const dispatchTimeout = 10 * time.Second

// Dispatcher records entries in the background. A failed or slow audit
// write never fails or delays the operation that produced it; failures are
// logged, counted, and surfaced on Errors.
type Dispatcher struct {
	recorder Recorder
	logger   *observability.Logger
	metrics  *observability.Metrics
	errs     chan error
}

// NewDispatcher creates a dispatcher around the given recorder.
// metrics may be nil.
func NewDispatcher(recorder Recorder, logger *observability.Logger, metrics *observability.Metrics) *Dispatcher {
	return &Dispatcher{
		recorder: recorder,
		logger:   logger,
		metrics:  metrics,
		errs:     make(chan error, 64),
	}
}

// Dispatch records the entry asynchronously. The write is detached from the
// caller's context so request cancellation cannot abort it.
func (d *Dispatcher) Dispatch(entry *Entry) {
	async.Go(context.Background(), dispatchTimeout, "audit record", d.logger, d.errs, func(ctx context.Context) error {
		if err := d.recorder.Record(ctx, entry); err != nil {
			if d.metrics != nil {
				d.metrics.AuditFailuresTotal.WithLabelValues("dispatch").Inc()
			}
			return err
		}
		return nil
	})
}

// Errors exposes audit write failures for monitoring.
func (d *Dispatcher) Errors() <-chan error {
	return d.errs
}

// Close closes the underlying recorder.
func (d *Dispatcher) Close() error {
	return d.recorder.Close()
}
