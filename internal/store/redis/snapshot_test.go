package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/folio/internal/snapshot"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client), mr
}

func testSnapshot(url string, fetchedAt time.Time) *snapshot.Snapshot {
	return &snapshot.Snapshot{
		URL:         url,
		Title:       "Title of " + url,
		Markdown:    "# Heading\n\nBody of " + url + "\n",
		Fingerprint: "b3-0011223344",
		FetchedAt:   fetchedAt.UTC().Truncate(time.Second),
		ETag:        `"etag"`,
	}
}

func TestSaveAndLoadSnapshot(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	want := testSnapshot("https://example.com/a", time.Now())
	if err := store.SaveSnapshot(ctx, want, time.Hour); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}

	got, err := store.LoadSnapshot(ctx, want.URL)
	if err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}
	if got == nil {
		t.Fatal("LoadSnapshot() = nil, want snapshot")
	}
	if got.Markdown != want.Markdown || got.Fingerprint != want.Fingerprint || !got.FetchedAt.Equal(want.FetchedAt) {
		t.Errorf("LoadSnapshot() = %+v, want %+v", got, want)
	}
}

func TestLoadSnapshotMiss(t *testing.T) {
	store, _ := newTestStore(t)

	got, err := store.LoadSnapshot(context.Background(), "https://missing.example/")
	if err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}
	if got != nil {
		t.Errorf("LoadSnapshot() = %+v, want nil", got)
	}
}

func TestSnapshotExpires(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	snap := testSnapshot("https://example.com/ttl", time.Now())
	if err := store.SaveSnapshot(ctx, snap, time.Minute); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}

	mr.FastForward(2 * time.Minute)

	got, err := store.LoadSnapshot(ctx, snap.URL)
	if err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}
	if got != nil {
		t.Error("LoadSnapshot() returned an expired snapshot")
	}
}

func TestRecentSnapshotsOrderAndPrune(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	base := time.Now()

	old := testSnapshot("https://example.com/old", base.Add(-2*time.Hour))
	mid := testSnapshot("https://example.com/mid", base.Add(-time.Hour))
	fresh := testSnapshot("https://example.com/fresh", base)

	if err := store.SaveSnapshot(ctx, old, time.Minute); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}
	if err := store.SaveSnapshot(ctx, mid, time.Hour); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}
	if err := store.SaveSnapshot(ctx, fresh, time.Hour); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}

	snaps, err := store.RecentSnapshots(ctx, 2)
	if err != nil {
		t.Fatalf("RecentSnapshots() error = %v", err)
	}
	if len(snaps) != 2 || snaps[0].URL != fresh.URL || snaps[1].URL != mid.URL {
		t.Fatalf("RecentSnapshots() = %v, want fresh then mid", urlsOf(snaps))
	}

	mr.FastForward(5 * time.Minute)

	removed, err := store.PruneIndex(ctx)
	if err != nil {
		t.Fatalf("PruneIndex() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("PruneIndex() = %d, want 1", removed)
	}

	snaps, err = store.RecentSnapshots(ctx, 10)
	if err != nil {
		t.Fatalf("RecentSnapshots() error = %v", err)
	}
	if len(snaps) != 2 {
		t.Errorf("RecentSnapshots() = %v, want 2 entries", urlsOf(snaps))
	}
}

func TestDeleteSnapshot(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	snap := testSnapshot("https://example.com/del", time.Now())
	if err := store.SaveSnapshot(ctx, snap, time.Hour); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}
	if err := store.DeleteSnapshot(ctx, snap.URL); err != nil {
		t.Fatalf("DeleteSnapshot() error = %v", err)
	}

	if mr.Exists(SnapshotKey(snap.URL)) {
		t.Error("snapshot key still exists")
	}
	members, err := mr.ZMembers(KeyRecentSnapshots)
	if err == nil && len(members) != 0 {
		t.Errorf("recent index = %v, want empty", members)
	}
}

func TestExtractSnapshotURL(t *testing.T) {
	url, err := ExtractSnapshotURL(SnapshotKey("https://example.com/x"))
	if err != nil || url != "https://example.com/x" {
		t.Errorf("ExtractSnapshotURL() = %q, %v", url, err)
	}
	if _, err := ExtractSnapshotURL("other:prefix:x"); err == nil {
		t.Error("ExtractSnapshotURL() accepted a foreign key")
	}
}

func urlsOf(snaps []*snapshot.Snapshot) []string {
	out := make([]string, len(snaps))
	for i, s := range snaps {
		out[i] = s.URL
	}
	return out
}
