package billing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/mindfulmate/mindful/pkg/observability"
	"github.com/mindfulmate/mindful/pkg/storage"
)

// SweepPending settles pending purchases older than SweepAge. Individual
// settlement failures are logged and counted, not returned.
func (s *Service) SweepPending(ctx context.Context) (*SweepResult, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveSweep(time.Since(start)) }()

	pending, err := s.store.ListPendingPurchases(ctx, s.now().Add(-s.config.SweepAge), s.config.SweepBatch)
	if err != nil {
		return nil, err
	}

	var (
		mu     sync.Mutex
		result = &SweepResult{Checked: len(pending)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.SweepWorkers)
	for _, p := range pending {
		g.Go(func() error {
			defer observability.RecoverPanic(s.logger, "billing.sweep")

			settlement, err := s.Settle(gctx, p.Pidx)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				result.Errors++
				s.logger.WithError(err).WithField("pidx", p.Pidx).Warn("sweep settlement failed")
			case settlement.Credited:
				result.Completed++
			case settlement.Purchase != nil && settlement.Purchase.Status == storage.PurchaseFailed:
				result.Failed++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	if result.Checked > 0 {
		s.logger.WithFields(map[string]interface{}{
			"checked":   result.Checked,
			"completed": result.Completed,
			"failed":    result.Failed,
			"errors":    result.Errors,
		}).Info("pending purchase sweep finished")
	}
	return result, nil
}

// Schedule registers SweepPending on c. A run is cancelled when the next
// one is due.
func (s *Service) Schedule(c *cron.Cron, expr string) (cron.EntryID, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return 0, fmt.Errorf("invalid sweep schedule %q: %w", expr, err)
	}
	return c.Schedule(schedule, cron.FuncJob(func() {
		now := time.Now()
		timeout := schedule.Next(now).Sub(now)
		if timeout <= 0 {
			timeout = time.Minute
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if _, err := s.SweepPending(ctx); err != nil {
			s.logger.WithError(err).Errorf("scheduled sweep (%s) failed", expr)
		}
	})), nil
}
