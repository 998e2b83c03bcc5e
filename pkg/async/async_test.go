package async

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platterhq/platter/pkg/observability"
)

func waitErr(t *testing.T, errs <-chan error) error {
	t.Helper()
	select {
	case err := <-errs:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for background error")
		return nil
	}
}

func TestGo(t *testing.T) {
	logger := observability.NewNopLogger()

	t.Run("runs the function", func(t *testing.T) {
		done := make(chan struct{})
		Go(context.Background(), time.Second, "noop", logger, nil, func(context.Context) error {
			close(done)
			return nil
		})

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("task never ran")
		}
	})

	t.Run("reports errors on the channel", func(t *testing.T) {
		errs := make(chan error, 1)
		Go(context.Background(), time.Second, "audit write", logger, errs, func(context.Context) error {
			return errors.New("sink unavailable")
		})

		err := waitErr(t, errs)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "audit write")
		assert.Contains(t, err.Error(), "sink unavailable")
	})

	t.Run("recovers panics into errors", func(t *testing.T) {
		errs := make(chan error, 1)
		Go(context.Background(), time.Second, "flaky", logger, errs, func(context.Context) error {
			panic("boom")
		})

		err := waitErr(t, errs)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "panic")
		assert.Contains(t, err.Error(), "boom")
	})

	t.Run("enforces the timeout", func(t *testing.T) {
		errs := make(chan error, 1)
		Go(context.Background(), 20*time.Millisecond, "slow", logger, errs, func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})

		err := waitErr(t, errs)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("full channel does not block", func(t *testing.T) {
		errs := make(chan error, 1)
		errs <- errors.New("already full")

		done := make(chan struct{})
		Go(context.Background(), time.Second, "dropped", logger, errs, func(context.Context) error {
			defer close(done)
			return errors.New("this one is dropped")
		})

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("task blocked on full error channel")
		}
	})

	t.Run("nil channel is fine", func(t *testing.T) {
		done := make(chan struct{})
		Go(context.Background(), time.Second, "no channel", logger, nil, func(context.Context) error {
			defer close(done)
			return errors.New("logged only")
		})

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("task never completed")
		}
	})
}
