package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/folio/internal/snapshot"
)

// DefaultSnapshotTTL applies when SaveSnapshot is called without a TTL.
const DefaultSnapshotTTL = 24 * time.Hour

// Store persists snapshots in Redis. It implements snapshot.Persister.
type Store struct {
	client *redis.Client
}

// NewStore creates a new Redis store
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// Ping reports whether Redis answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// SaveSnapshot stores snap under its URL and records it in the recent index.
// The key expires after ttl.
func (s *Store) SaveSnapshot(ctx context.Context, snap *snapshot.Snapshot, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, SnapshotKey(snap.URL), data, ttl)
	pipe.ZAdd(ctx, KeyRecentSnapshots, redis.Z{
		Score:  float64(snap.FetchedAt.Unix()),
		Member: snap.URL,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot retrieves the snapshot of url. It returns (nil, nil) when
// there is none.
func (s *Store) LoadSnapshot(ctx context.Context, url string) (*snapshot.Snapshot, error) {
	data, err := s.client.Get(ctx, SnapshotKey(url)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var snap snapshot.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// RecentSnapshots returns up to limit snapshots, most recently fetched first.
// Index entries whose snapshot has expired are skipped.
func (s *Store) RecentSnapshots(ctx context.Context, limit int) ([]*snapshot.Snapshot, error) {
	if limit <= 0 {
		return []*snapshot.Snapshot{}, nil
	}

	urls, err := s.client.ZRevRange(ctx, KeyRecentSnapshots, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	if len(urls) == 0 {
		return []*snapshot.Snapshot{}, nil
	}

	keys := make([]string, len(urls))
	for i, u := range urls {
		keys[i] = SnapshotKey(u)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshots: %w", err)
	}

	snaps := make([]*snapshot.Snapshot, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var snap snapshot.Snapshot
		if err := json.Unmarshal([]byte(raw), &snap); err != nil {
			// Skip entries that couldn't be decoded
			continue
		}
		snaps = append(snaps, &snap)
	}
	return snaps, nil
}

// DeleteSnapshot removes the snapshot of url and its index entry.
func (s *Store) DeleteSnapshot(ctx context.Context, url string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, SnapshotKey(url))
	pipe.ZRem(ctx, KeyRecentSnapshots, url)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// PruneIndex drops index entries whose snapshot key has expired and returns
// how many were removed.
func (s *Store) PruneIndex(ctx context.Context) (int, error) {
	urls, err := s.client.ZRange(ctx, KeyRecentSnapshots, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list snapshot index: %w", err)
	}
	if len(urls) == 0 {
		return 0, nil
	}

	pipe := s.client.Pipeline()
	exists := make([]*redis.IntCmd, len(urls))
	for i, u := range urls {
		exists[i] = pipe.Exists(ctx, SnapshotKey(u))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to check snapshot keys: %w", err)
	}

	var stale []any
	for i, cmd := range exists {
		if cmd.Val() == 0 {
			stale = append(stale, urls[i])
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	if err := s.client.ZRem(ctx, KeyRecentSnapshots, stale...).Err(); err != nil {
		return 0, fmt.Errorf("failed to prune snapshot index: %w", err)
	}
	return len(stale), nil
}
