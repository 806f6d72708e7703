package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/folio/internal/anchor"
	"github.com/MrSnakeDoc/folio/internal/canon"
	"github.com/MrSnakeDoc/folio/internal/fetch"
	"github.com/MrSnakeDoc/folio/internal/logger"
	"github.com/MrSnakeDoc/folio/internal/snapshot"
	redisstore "github.com/MrSnakeDoc/folio/internal/store/redis"
)

const firstRevision = "# Notes\n\nThe quick fox jumps.\n\nSecond paragraph stays.\n"

// origin serves whatever revision is current and counts requests.
type origin struct {
	srv      *httptest.Server
	revision atomic.Pointer[string]
	hits     atomic.Int32
	down     atomic.Bool
}

func newOrigin(t *testing.T) *origin {
	t.Helper()
	o := &origin{}
	o.set(firstRevision)
	o.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		o.hits.Add(1)
		if o.down.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(*o.revision.Load()))
	}))
	t.Cleanup(o.srv.Close)
	return o
}

func (o *origin) set(md string) { o.revision.Store(&md) }

func newResolver(t *testing.T, persister snapshot.Persister) *snapshot.Resolver {
	t.Helper()
	opts := snapshot.Options{
		TTL:          time.Hour,
		FetchTimeout: 5 * time.Second,
		Logger:       logger.NewNop(),
	}
	if persister != nil {
		opts.Persister = persister
	}
	r := snapshot.NewResolver(fetch.New(fetch.Options{}, nil), opts)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

// TestAnchorAcrossRevisions follows one comment anchor while the page changes
func TestAnchorAcrossRevisions(t *testing.T) {
	o := newOrigin(t)
	ctx := context.Background()

	key, err := canon.Canonicalize(o.srv.URL + "/notes?b=2&a=1#section")
	if err != nil {
		t.Fatalf("Canonicalize() error = %v", err)
	}
	resolver := newResolver(t, nil)

	snap, err := resolver.Resolve(ctx, key.Normalized, snapshot.Directive{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	start := 13 // "quick fox"
	spec, err := anchor.New(snap.Markdown, start, start+len("quick fox"))
	if err != nil {
		t.Fatalf("anchor.New() error = %v", err)
	}
	if spec.Quote != "quick fox" {
		t.Fatalf("Quote = %q, want %q", spec.Quote, "quick fox")
	}
	token, err := anchor.Encode(spec)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	tests := []struct {
		name        string
		revision    string
		wantFound   bool
		wantStart   int
		wantEnd     int
		wantConf    anchor.Confidence
		description string
	}{
		{
			name:        "unchanged",
			revision:    firstRevision,
			wantFound:   true,
			wantStart:   13,
			wantEnd:     22,
			wantConf:    anchor.ConfidenceExact,
			description: "Quote and context where they were",
		},
		{
			name:        "paragraph inserted before",
			revision:    "# Notes\n\nA new opening paragraph.\n\nThe quick fox jumps.\n\nSecond paragraph stays.\n",
			wantFound:   true,
			wantStart:   39,
			wantEnd:     48,
			wantConf:    anchor.ConfidenceExactRelocated,
			description: "Quote intact but its stored prefix no longer precedes it",
		},
		{
			name:        "sentence reworded around the quote",
			revision:    "# Notes\n\nSuddenly the quick fox jumps.\n\nSecond paragraph stays.\n",
			wantFound:   true,
			wantStart:   22,
			wantEnd:     31,
			wantConf:    anchor.ConfidenceExactRelocated,
			description: "Unique occurrence found with broken context",
		},
		{
			name:        "quote edited",
			revision:    "# Notes\n\nThe quick red fox jumps.\n\nSecond paragraph stays.\n",
			wantFound:   true,
			wantStart:   13,
			wantEnd:     26,
			wantConf:    anchor.ConfidenceApproximate,
			description: "Approximate match covers the edited span",
		},
		{
			name:        "sentence deleted",
			revision:    "# Notes\n\nSecond paragraph stays.\n",
			wantFound:   false,
			description: "Nothing similar enough remains",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o.set(tt.revision)
			snap, err := resolver.Resolve(ctx, key.Normalized, snapshot.Directive{Mode: snapshot.RevalidateForce})
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if snap.Markdown != tt.revision {
				t.Fatalf("Markdown = %q, want %q", snap.Markdown, tt.revision)
			}

			stored, err := anchor.Decode(token)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			m, ok := anchor.Recover(snap.Markdown, stored)
			if ok != tt.wantFound {
				t.Fatalf("%s: Recover() found = %v, want %v (match %+v)", tt.description, ok, tt.wantFound, m)
			}
			if !ok {
				return
			}
			if m.Start != tt.wantStart || m.End != tt.wantEnd || m.Confidence != tt.wantConf {
				t.Errorf("%s: Recover() = [%d,%d) %s, want [%d,%d) %s",
					tt.description, m.Start, m.End, m.Confidence, tt.wantStart, tt.wantEnd, tt.wantConf)
			}
		})
	}
}

// TestSnapshotsSurviveRestart checks that a new process serves the last
// snapshot from redis without going back to the origin
func TestSnapshotsSurviveRestart(t *testing.T) {
	o := newOrigin(t)
	ctx := context.Background()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := redisstore.NewStore(client)

	key, err := canon.Canonicalize(o.srv.URL + "/notes")
	if err != nil {
		t.Fatalf("Canonicalize() error = %v", err)
	}

	first := newResolver(t, store)
	snap, err := first.Resolve(ctx, key.Normalized, snapshot.Directive{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	// The write to redis happens after waiters are released
	deadline := time.Now().Add(2 * time.Second)
	for {
		saved, err := store.LoadSnapshot(ctx, key.Normalized)
		if err == nil && saved != nil && saved.Fingerprint == snap.Fingerprint {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("snapshot was not persisted")
		}
		time.Sleep(5 * time.Millisecond)
	}
	_ = first.Close()

	o.down.Store(true)
	hitsBefore := o.hits.Load()

	second := newResolver(t, store)
	restored, err := second.Resolve(ctx, key.Normalized, snapshot.Directive{})
	if err != nil {
		t.Fatalf("Resolve() after restart error = %v", err)
	}
	if restored.Markdown != snap.Markdown {
		t.Errorf("Markdown = %q, want %q", restored.Markdown, snap.Markdown)
	}
	if got := o.hits.Load() - hitsBefore; got != 0 {
		t.Errorf("origin hits after restart = %d, want 0", got)
	}

	// Forcing a refresh reaches the origin, which is down, and reports it
	_, err = second.Resolve(ctx, key.Normalized, snapshot.Directive{Mode: snapshot.RevalidateForce})
	if !snapshot.IsFetchError(err) {
		t.Errorf("forced Resolve() error = %v, want FetchError", err)
	}

	stale, err := second.Resolve(ctx, key.Normalized, snapshot.Directive{Mode: snapshot.RevalidateForce, AllowStale: true})
	if err != nil || stale.Markdown != snap.Markdown {
		t.Errorf("stale Resolve() = %v, %v; want the persisted snapshot", stale, err)
	}
}
