package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// PoolStats is a snapshot of connection pool usage
type PoolStats struct {
	Active int32
	Idle   int32
}

// PoolStatsFunc returns the current pool usage
type PoolStatsFunc func() PoolStats

// Updater periodically samples the audit store pool into gauges
type Updater struct {
	stats    PoolStatsFunc
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewUpdater creates a new metrics updater
func NewUpdater(stats PoolStatsFunc, interval time.Duration) *Updater {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Updater{
		stats:    stats,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the metrics update loop; it blocks until Stop or ctx is done
func (u *Updater) Start(ctx context.Context) {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	u.update()

	for {
		select {
		case <-ticker.C:
			u.update()
		case <-u.stopCh:
			log.Info().Msg("Metrics updater stopped")
			return
		case <-ctx.Done():
			log.Info().Msg("Metrics updater context cancelled")
			return
		}
	}
}

// Stop stops the metrics updater. Safe to call more than once.
func (u *Updater) Stop() {
	u.stopOnce.Do(func() { close(u.stopCh) })
}

func (u *Updater) update() {
	if u.stats == nil {
		return
	}
	s := u.stats()
	UpdateDatabaseConnections(s.Active, s.Idle)
}
