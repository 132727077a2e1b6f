// Package scheduler implements a tick-based periodic collection scheduler.
// It serializes collection cycles: each cycle runs to completion on a single
// goroutine before the next tick is honored, so cycles never overlap.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// cycleTimeout bounds a single collection cycle. A wedged process-attribute
// fetch must not stall the scrape endpoint forever.
const cycleTimeout = 10 * time.Second

// CollectFunc runs one complete collection cycle.
type CollectFunc func(ctx context.Context)

// Scheduler drives periodic collection cycles.
type Scheduler struct {
	collect  CollectFunc
	interval time.Duration
	logger   *zap.Logger
}

// New creates a Scheduler invoking collect once per interval.
func New(collect CollectFunc, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		collect:  collect,
		interval: interval,
		logger:   logger,
	}
}

// Start begins the collection loop. It blocks until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Do an initial collection immediately so the first scrape after
	// startup is not empty.
	s.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	cycleCtx, cancel := context.WithTimeout(ctx, cycleTimeout)
	defer cancel()

	start := time.Now()
	s.collect(cycleCtx)
	s.logger.Debug("Collection cycle finished", zap.Duration("elapsed", time.Since(start)))
}
