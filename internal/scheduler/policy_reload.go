package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/emoradar/emoradar/internal/logger"
	"github.com/emoradar/emoradar/internal/policy"
)

// PolicyReloader periodically reloads the mood policy file into the provider.
// A reload that fails validation keeps the previous policy.
type PolicyReloader struct {
	loader        *policy.Loader
	provider      *policy.Provider
	logger        logger.Logger
	interval      time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
	manualTrigger chan struct{}
	onReload      func(*policy.Policy)

	mu         sync.RWMutex
	lastReload time.Time
	lastErr    error
}

// NewPolicyReloader creates a new policy reloader
func NewPolicyReloader(
	loader *policy.Loader,
	provider *policy.Provider,
	log logger.Logger,
	interval time.Duration,
	manualTrigger chan struct{},
	onReload func(*policy.Policy),
) *PolicyReloader {
	return &PolicyReloader{
		loader:        loader,
		provider:      provider,
		logger:        log,
		interval:      interval,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
		onReload:      onReload,
	}
}

// Start loads the policy once, then reloads on the interval and on manual trigger.
// The initial load must succeed.
func (pr *PolicyReloader) Start(ctx context.Context) error {
	if err := pr.Reload(ctx); err != nil {
		return fmt.Errorf("initial policy load failed: %w", err)
	}

	var tick <-chan time.Time
	var ticker *time.Ticker
	// periodic reloads only make sense for a file-backed policy
	if pr.interval > 0 && pr.loader.Path() != "" {
		ticker = time.NewTicker(pr.interval)
		tick = ticker.C
	}

	go func() {
		if ticker != nil {
			defer ticker.Stop()
		}
		for {
			select {
			case <-tick:
				if err := pr.Reload(ctx); err != nil {
					pr.logger.Error("failed to reload policy, keeping previous", logger.Error(err))
				}
			case <-pr.manualTrigger:
				pr.logger.Info("manual policy reload triggered")
				if err := pr.Reload(ctx); err != nil {
					pr.logger.Error("failed to reload policy, keeping previous", logger.Error(err))
				}
			case <-pr.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the reloader
func (pr *PolicyReloader) Stop() {
	pr.stopOnce.Do(func() { close(pr.stopCh) })
}

// Reload loads the policy and swaps it in when it is valid.
func (pr *PolicyReloader) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	next, err := pr.loader.Load()
	pr.mu.Lock()
	pr.lastErr = err
	if err == nil {
		pr.lastReload = time.Now()
	}
	pr.mu.Unlock()
	if err != nil {
		return err
	}

	prev := pr.provider.Swap(next)
	source := pr.loader.Path()
	if source == "" {
		source = "built-in"
	}
	if prev != nil && prev.Version != next.Version {
		pr.logger.Info("policy updated",
			logger.String("source", source),
			logger.Int("previous_version", prev.Version),
			logger.Int("version", next.Version))
	} else {
		pr.logger.Info("policy loaded",
			logger.String("source", source),
			logger.Int("version", next.Version),
			logger.Int("moods", len(next.Moods)))
	}

	if pr.onReload != nil {
		pr.onReload(next)
	}
	return nil
}

// Status returns the time of the last successful reload and the last error.
func (pr *PolicyReloader) Status() (time.Time, error) {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	return pr.lastReload, pr.lastErr
}
