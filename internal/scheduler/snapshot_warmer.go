package scheduler

import (
	"context"

	"github.com/MrSnakeDoc/folio/internal/logger"
	"github.com/MrSnakeDoc/folio/internal/snapshot"
	redisstore "github.com/MrSnakeDoc/folio/internal/store/redis"
)

// DefaultWarmLimit caps how many snapshots are loaded on startup
const DefaultWarmLimit = 256

// SnapshotWarmer seeds the resolver with the most recent persisted snapshots
type SnapshotWarmer struct {
	store    *redisstore.Store
	resolver *snapshot.Resolver
	logger   logger.Logger
	limit    int
}

// NewSnapshotWarmer creates a new snapshot warmer
func NewSnapshotWarmer(
	store *redisstore.Store,
	resolver *snapshot.Resolver,
	log logger.Logger,
	limit int,
) *SnapshotWarmer {
	if limit <= 0 {
		limit = DefaultWarmLimit
	}

	return &SnapshotWarmer{
		store:    store,
		resolver: resolver,
		logger:   log,
		limit:    limit,
	}
}

// Warm loads snapshots from Redis into the resolver
func (sw *SnapshotWarmer) Warm(ctx context.Context) error {
	sw.logger.Info("warming snapshot cache from redis")

	snaps, err := sw.store.RecentSnapshots(ctx, sw.limit)
	if err != nil {
		return err
	}

	if len(snaps) == 0 {
		sw.logger.Info("no snapshots found in redis")
		return nil
	}

	installed := sw.resolver.Warm(snaps)

	sw.logger.Info("warmed snapshot cache from redis",
		logger.Int("found", len(snaps)),
		logger.Int("installed", installed))

	return nil
}
