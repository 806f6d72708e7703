// Package snapshot holds the Markdown snapshot cache and the resolver that
// coalesces concurrent fetches of the same page.
package snapshot

import (
	"context"
	"time"
)

// RevalidateMode selects how a resolve treats a cached snapshot.
type RevalidateMode int

const (
	// RevalidateNone serves a cached snapshot while it is younger than its TTL.
	RevalidateNone RevalidateMode = iota
	// RevalidateForce fetches regardless of freshness.
	RevalidateForce
)

// Directive is the per-call override of the cache policy.
// The zero value means "use the normal TTL policy".
type Directive struct {
	Mode RevalidateMode

	// TTL overrides the freshness window for this call when > 0.
	TTL time.Duration

	// AllowStale returns the previous snapshot when a refresh fails.
	AllowStale bool
}

func (d Directive) forced() bool { return d.Mode == RevalidateForce }

// Snapshot is an immutable Markdown rendition of a page at a point in time.
// A newer snapshot replaces it, it is never mutated.
type Snapshot struct {
	URL          string    `json:"url"`
	Title        string    `json:"title,omitempty"`
	Markdown     string    `json:"markdown"`
	Fingerprint  string    `json:"fingerprint"`
	FetchedAt    time.Time `json:"fetched_at"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
}

// FetchRequest carries the validators of the previous snapshot, if any,
// so the fetcher can issue a conditional request.
type FetchRequest struct {
	URL          string
	ETag         string
	LastModified string
}

// Document is what a Fetcher hands back.
// NotModified means the origin confirmed the previous snapshot is still current.
type Document struct {
	Markdown     string
	Fingerprint  string
	Title        string
	ETag         string
	LastModified string
	NotModified  bool
}

// Fetcher retrieves a page and converts it to Markdown.
type Fetcher interface {
	FetchAndConvert(ctx context.Context, req FetchRequest) (*Document, error)
}

// FetcherFunc adapts a plain function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, req FetchRequest) (*Document, error)

func (f FetcherFunc) FetchAndConvert(ctx context.Context, req FetchRequest) (*Document, error) {
	return f(ctx, req)
}

// Persister is an optional second cache level that survives restarts.
// LoadSnapshot returns (nil, nil) on a miss.
type Persister interface {
	LoadSnapshot(ctx context.Context, url string) (*Snapshot, error)
	SaveSnapshot(ctx context.Context, snap *Snapshot, ttl time.Duration) error
}

// Fetch outcomes reported to the Observer.
const (
	OutcomeFetched     = "fetched"
	OutcomeNotModified = "not_modified"
	OutcomePersisted   = "persisted"
	OutcomeError       = "error"
)

// Eviction reasons reported to the Observer.
const (
	EvictIdle     = "idle"
	EvictCapacity = "capacity"
)

// Observer receives cache events, typically to feed metrics.
type Observer interface {
	CacheHit()
	CacheMiss()
	WaiterJoined()
	StaleServed()
	FetchCompleted(outcome string, elapsed time.Duration)
	Evicted(reason string, n int)
}

type nopObserver struct{}

func (nopObserver) CacheHit()                            {}
func (nopObserver) CacheMiss()                           {}
func (nopObserver) WaiterJoined()                        {}
func (nopObserver) StaleServed()                         {}
func (nopObserver) FetchCompleted(string, time.Duration) {}
func (nopObserver) Evicted(string, int)                  {}

// Stats is a point-in-time view of the cache, exposed on the infra endpoint.
type Stats struct {
	Entries   int    `json:"entries"`
	InFlight  int    `json:"in_flight"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Coalesced uint64 `json:"coalesced"`
	Fetches   uint64 `json:"fetches"`
	Evictions uint64 `json:"evictions"`
}
