package background

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/bnetlogin/internal/metrics"
)

// ExpiredBanRemover deletes bans whose unban date has passed
type ExpiredBanRemover interface {
	DeleteExpiredBans(ctx context.Context) (int64, error)
}

// BanExpiryManager periodically lifts expired bans from the database
type BanExpiryManager struct {
	bans     ExpiredBanRemover
	logger   *slog.Logger
	metrics  *metrics.Metrics
	interval time.Duration
	timeout  time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewBanExpiryManager creates a new ban expiry manager
func NewBanExpiryManager(
	bans ExpiredBanRemover,
	logger *slog.Logger,
	m *metrics.Metrics,
	interval time.Duration,
) *BanExpiryManager {
	return &BanExpiryManager{
		bans:     bans,
		logger:   logger,
		metrics:  m,
		interval: interval,
		timeout:  30 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the sweep immediately and then every interval until Stop or ctx is done
func (bm *BanExpiryManager) Start(ctx context.Context) {
	ticker := time.NewTicker(bm.interval)
	defer ticker.Stop()

	bm.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			bm.sweep(ctx)
		case <-bm.stopCh:
			bm.logger.Info("ban expiry manager stopped")
			return
		case <-ctx.Done():
			bm.logger.Info("ban expiry manager context cancelled")
			return
		}
	}
}

func (bm *BanExpiryManager) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, bm.timeout)
	defer cancel()

	removed, err := bm.bans.DeleteExpiredBans(sweepCtx)
	bm.metrics.BansExpired(removed)
	if err != nil {
		bm.logger.Error("failed to remove expired bans", slog.Any("error", err))
		return
	}

	if removed > 0 {
		bm.logger.Info("expired bans removed", slog.Int64("rows_affected", removed))
	}
}

// Stop signals the manager to stop; safe to call more than once
func (bm *BanExpiryManager) Stop() {
	bm.stopOnce.Do(func() { close(bm.stopCh) })
}
