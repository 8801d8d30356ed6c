package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/emoradar/emoradar/internal/logger"
)

// Pruner deletes history older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int, error)
}

// HistoryPruner removes mood entries older than the retention period
type HistoryPruner struct {
	pruner    Pruner
	logger    logger.Logger
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewHistoryPruner creates a new history pruner. A zero retention disables pruning.
func NewHistoryPruner(
	pruner Pruner,
	log logger.Logger,
	interval time.Duration,
	retention time.Duration,
) *HistoryPruner {
	return &HistoryPruner{
		pruner:    pruner,
		logger:    log,
		interval:  interval,
		retention: retention,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the periodic pruning process
func (hp *HistoryPruner) Start(ctx context.Context) error {
	if hp.retention <= 0 || hp.interval <= 0 {
		hp.logger.Debug("history pruning disabled")
		return nil
	}

	// Run immediately on start
	if _, err := hp.Prune(ctx); err != nil {
		hp.logger.Warn("initial history prune failed", logger.Error(err))
	}

	ticker := time.NewTicker(hp.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := hp.Prune(ctx); err != nil {
					hp.logger.Error("history prune failed", logger.Error(err))
				}
			case <-hp.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the pruner
func (hp *HistoryPruner) Stop() {
	hp.stopOnce.Do(func() { close(hp.stopCh) })
}

// Prune deletes entries older than now minus the retention.
func (hp *HistoryPruner) Prune(ctx context.Context) (int, error) {
	cutoff := hp.now().Add(-hp.retention)
	n, err := hp.pruner.Prune(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		hp.logger.Info("pruned mood history",
			logger.Int("deleted", n),
			logger.Time("cutoff", cutoff))
	} else {
		hp.logger.Debug("no mood entries to prune")
	}
	return n, nil
}
