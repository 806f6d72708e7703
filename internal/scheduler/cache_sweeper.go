package scheduler

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/folio/internal/logger"
	"github.com/MrSnakeDoc/folio/internal/snapshot"
	redisstore "github.com/MrSnakeDoc/folio/internal/store/redis"
)

// DefaultSweepInterval is used when no interval is configured
const DefaultSweepInterval = 10 * time.Minute

// CacheSweeper evicts idle snapshots from the resolver and prunes the
// persisted recent index
type CacheSweeper struct {
	resolver *snapshot.Resolver
	store    *redisstore.Store
	logger   logger.Logger
	interval time.Duration
	now      func() time.Time
	stopCh   chan struct{}
}

// NewCacheSweeper creates a new cache sweeper. store may be nil.
func NewCacheSweeper(
	resolver *snapshot.Resolver,
	store *redisstore.Store,
	log logger.Logger,
	interval time.Duration,
) *CacheSweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	return &CacheSweeper{
		resolver: resolver,
		store:    store,
		logger:   log,
		interval: interval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic sweep
func (cs *CacheSweeper) Start(ctx context.Context) error {
	ticker := time.NewTicker(cs.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := cs.Sweep(ctx); err != nil {
					cs.logger.Error("cache sweep failed",
						logger.Error(err))
				}
			case <-cs.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the sweeper
func (cs *CacheSweeper) Stop() {
	close(cs.stopCh)
}

// Sweep drops idle entries from the resolver, then removes index entries
// whose persisted snapshot has expired
func (cs *CacheSweeper) Sweep(ctx context.Context) error {
	evicted := cs.resolver.Sweep(cs.now())

	pruned := 0
	if cs.store != nil {
		n, err := cs.store.PruneIndex(ctx)
		if err != nil {
			// Best effort - the in-memory sweep already happened
			cs.logger.Warn("failed to prune snapshot index",
				logger.Error(err))
		}
		pruned = n
	}

	if evicted > 0 || pruned > 0 {
		cs.logger.Info("cache sweep completed",
			logger.Int("evicted", evicted),
			logger.Int("index_pruned", pruned))
	} else {
		cs.logger.Debug("nothing to sweep")
	}

	return nil
}
