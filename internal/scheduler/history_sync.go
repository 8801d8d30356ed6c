package scheduler

import (
	"context"

	"github.com/emoradar/emoradar/internal/logger"
)

// Syncer reloads the recent list from the backing store.
type Syncer interface {
	Sync(ctx context.Context) (int, error)
}

// HistorySyncer warms the recent mood list from the store on startup
type HistorySyncer struct {
	syncer Syncer
	logger logger.Logger
}

// NewHistorySyncer creates a new history syncer
func NewHistorySyncer(syncer Syncer, log logger.Logger) *HistorySyncer {
	return &HistorySyncer{
		syncer: syncer,
		logger: log,
	}
}

// Sync loads entries from the store into the recent list
func (hs *HistorySyncer) Sync(ctx context.Context) error {
	hs.logger.Info("syncing mood history from store")

	n, err := hs.syncer.Sync(ctx)
	if err != nil {
		return err
	}

	if n == 0 {
		hs.logger.Info("no mood history found in store")
		return nil
	}

	hs.logger.Info("synced mood history", logger.Int("count", n))
	return nil
}
