// Package async provides a safe wrapper for fire-and-forget goroutines.
//
// Audit dispatch and other best-effort side work must never crash or block
// the request that spawned it. Go runs the function on its own goroutine
// with a bounded lifetime, converts panics into errors, and reports
// failures through an optional non-blocking channel.
package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/platterhq/platter/pkg/observability"
)

// Go executes fn in a goroutine with a timeout, panic recovery, and error
// reporting. The context passed to fn is derived from parent, so callers
// that must outlive the originating request pass context.Background().
//
// Errors and recovered panics are sent to errs without blocking; when the
// channel is full or nil they are only logged.
func Go(parent context.Context, timeout time.Duration, taskName string, logger *observability.Logger, errs chan<- error, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(map[string]interface{}{
					"task":  taskName,
					"panic": fmt.Sprint(r),
					"stack": string(debug.Stack()),
				}).Error("recovered panic in background task")
				report(errs, fmt.Errorf("%s: panic: %v", taskName, r))
			}
		}()

		if err := fn(ctx); err != nil {
			logger.WithError(err).WithField("task", taskName).Warn("background task failed")
			report(errs, fmt.Errorf("%s: %w", taskName, err))
		}
	}()
}

func report(errs chan<- error, err error) {
	if errs == nil {
		return
	}
	select {
	case errs <- err:
	default:
	}
}
