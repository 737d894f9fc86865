package async

import (
	"context"
	"time"

	"github.com/mindfulmate/mindful/pkg/observability"
)

// SafeGo runs fn in a goroutine with a timeout and panic recovery. Errors
// and panics are logged, never propagated. The returned channel is closed
// when fn has returned.
//
// Example:
//
//	async.SafeGo(ctx, logger, 2*time.Minute, "startup sweep", func(ctx context.Context) error {
//	    _, err := svc.SweepPending(ctx)
//	    return err
//	})
func SafeGo(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()
		defer observability.RecoverPanic(logger, taskName)

		if err := fn(ctx); err != nil {
			logger.WithError(err).WithField("task", taskName).Warn("background task failed")
		}
	}()
	return done
}

// Every calls fn each interval until ctx is done. A panic in one call is
// logged and the loop keeps going.
func Every(ctx context.Context, logger *observability.Logger, interval time.Duration, taskName string, fn func(context.Context)) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				func() {
					defer observability.RecoverPanic(logger, taskName)
					fn(ctx)
				}()
			case <-ctx.Done():
				return
			}
		}
	}()
	return done
}
