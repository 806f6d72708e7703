package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrSnakeDoc/folio/internal/fingerprint"
	"github.com/MrSnakeDoc/folio/internal/logger"
)

// Defaults applied by NewResolver when the matching option is zero.
const (
	DefaultTTL          = 10 * time.Minute
	DefaultRetention    = 24 * time.Hour
	DefaultCapacity     = 1024
	DefaultFetchTimeout = 20 * time.Second
)

// Options configures a Resolver.
type Options struct {
	// TTL is the default freshness window of a snapshot.
	TTL time.Duration

	// Retention is how long an entry may sit unaccessed before Sweep drops it.
	// Expired entries are kept until then so they can back stale reads and
	// conditional fetches.
	Retention time.Duration

	// Capacity bounds the number of entries. The least recently accessed
	// entry goes first.
	Capacity int

	// FetchTimeout bounds a single fetch, independently of any caller.
	FetchTimeout time.Duration

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time

	// TTLFor returns a per-URL TTL override, or 0 for none.
	TTLFor func(url string) time.Duration

	Persister Persister
	Observer  Observer
	Logger    logger.Logger
}

type entry struct {
	snap       *Snapshot
	expiresAt  time.Time
	lastAccess time.Time
}

// call is one in-progress fetch. snap and err are written before done is closed.
type call struct {
	done      chan struct{}
	force     bool
	persisted bool // answered from the persister, set under mu
	snap      *Snapshot
	err       error
}

// Resolver maps normalized URLs to snapshots. At most one fetch per URL is
// in progress at any instant; every caller that arrives meanwhile shares it.
type Resolver struct {
	fetcher Fetcher
	opts    Options
	log     logger.Logger
	obs     Observer

	mu      sync.Mutex
	entries map[string]*entry
	calls   map[string]*call
	closed  bool

	closing context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	hits      atomic.Uint64
	misses    atomic.Uint64
	coalesced atomic.Uint64
	fetches   atomic.Uint64
	evictions atomic.Uint64
}

// NewResolver creates a resolver backed by fetcher.
func NewResolver(fetcher Fetcher, opts Options) *Resolver {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	var obs Observer = nopObserver{}
	if opts.Observer != nil {
		obs = opts.Observer
	}

	closing, stop := context.WithCancel(context.Background())
	return &Resolver{
		fetcher: fetcher,
		opts:    opts,
		log:     opts.Logger,
		obs:     obs,
		entries: make(map[string]*entry),
		calls:   make(map[string]*call),
		closing: closing,
		stop:    stop,
	}
}

// Resolve returns the snapshot for a normalized URL, fetching it when the
// cached one is missing, expired or the directive forces it.
//
// If ctx ends first, Resolve returns ctx.Err() but the shared fetch carries on
// for the other callers and still updates the cache.
func (r *Resolver) Resolve(ctx context.Context, url string, d Directive) (*Snapshot, error) {
	if url == "" {
		return nil, errEmptyKey
	}

	now := r.opts.Now()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}

	e := r.entries[url]
	if e != nil && !d.forced() && r.fresh(e, d, now) {
		e.lastAccess = now
		snap := e.snap
		r.mu.Unlock()

		r.hits.Add(1)
		r.obs.CacheHit()
		return snap, nil
	}

	var stale *Snapshot
	if e != nil {
		stale = e.snap
	}

	c, joined := r.calls[url]
	if joined {
		if d.forced() {
			c.force = true
		}
	} else {
		c = &call{done: make(chan struct{}), force: d.forced()}
		r.calls[url] = c
		r.wg.Add(1)
		go r.fly(ctx, url, c, stale, r.ttlFor(url, d))
	}
	r.mu.Unlock()

	if joined {
		r.coalesced.Add(1)
		r.obs.WaiterJoined()
	} else {
		r.misses.Add(1)
		r.obs.CacheMiss()
	}

	select {
	case <-c.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// A forced caller that joined too late to stop the persisted answer
	// starts its own fetch.
	if d.forced() && c.persisted {
		return r.Resolve(ctx, url, d)
	}

	if c.err != nil {
		if d.AllowStale && stale != nil {
			r.obs.StaleServed()
			r.log.Warn("Serving stale snapshot",
				logger.String("url", url),
				logger.Time("fetched_at", stale.FetchedAt),
				logger.Error(c.err),
			)
			return stale, nil
		}
		return nil, c.err
	}
	return c.snap, nil
}

// fresh reports whether e may be served without a fetch.
func (r *Resolver) fresh(e *entry, d Directive, now time.Time) bool {
	if d.TTL > 0 {
		return now.Sub(e.snap.FetchedAt) < d.TTL
	}
	return now.Before(e.expiresAt)
}

func (r *Resolver) ttlFor(url string, d Directive) time.Duration {
	if d.TTL > 0 {
		return d.TTL
	}
	if r.opts.TTLFor != nil {
		if ttl := r.opts.TTLFor(url); ttl > 0 {
			return ttl
		}
	}
	return r.opts.TTL
}

// fly runs one fetch. It is detached from the caller that started it so that
// neither its cancellation nor its deadline affects the other waiters.
func (r *Resolver) fly(parent context.Context, url string, c *call, prev *Snapshot, ttl time.Duration) {
	defer r.wg.Done()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), r.opts.FetchTimeout)
	defer cancel()
	release := context.AfterFunc(r.closing, cancel)
	defer release()

	start := time.Now()
	snap, outcome, err := r.produce(ctx, url, c, prev, ttl)
	elapsed := time.Since(start)

	r.complete(url, c, snap, ttl, err)
	r.obs.FetchCompleted(outcome, elapsed)

	if err != nil {
		r.log.Warn("Snapshot fetch failed",
			logger.String("url", url),
			logger.Duration("elapsed", elapsed),
			logger.Error(err),
		)
		return
	}

	r.log.Debug("Snapshot resolved",
		logger.String("url", url),
		logger.String("outcome", outcome),
		logger.Duration("elapsed", elapsed),
	)
	if outcome != OutcomePersisted {
		r.persist(ctx, snap, ttl)
	}
}

func (r *Resolver) produce(ctx context.Context, url string, c *call, prev *Snapshot, ttl time.Duration) (*Snapshot, string, error) {
	if prev == nil && r.opts.Persister != nil && !r.isForced(c) {
		if snap := r.loadPersisted(ctx, url, ttl); snap != nil && r.servePersisted(c) {
			return snap, OutcomePersisted, nil
		}
	}

	req := FetchRequest{URL: url}
	if prev != nil {
		req.ETag = prev.ETag
		req.LastModified = prev.LastModified
	}

	r.fetches.Add(1)
	doc, err := r.fetch(ctx, req)
	if err != nil {
		return nil, OutcomeError, classify(ctx, url, err)
	}

	now := r.opts.Now()
	if doc.NotModified {
		if prev == nil {
			return nil, OutcomeError, &FetchError{URL: url, StatusCode: 304, Err: errNotModifiedNoBase}
		}
		next := *prev
		next.FetchedAt = now
		if doc.ETag != "" {
			next.ETag = doc.ETag
		}
		if doc.LastModified != "" {
			next.LastModified = doc.LastModified
		}
		return &next, OutcomeNotModified, nil
	}

	if strings.TrimSpace(doc.Markdown) == "" {
		return nil, OutcomeError, &ConversionError{URL: url, Err: ErrEmptyDocument}
	}

	fp := doc.Fingerprint
	if fp == "" {
		fp = fingerprint.Of(doc.Markdown)
	}
	return &Snapshot{
		URL:          url,
		Title:        doc.Title,
		Markdown:     doc.Markdown,
		Fingerprint:  fp,
		FetchedAt:    now,
		ETag:         doc.ETag,
		LastModified: doc.LastModified,
	}, OutcomeFetched, nil
}

func (r *Resolver) isForced(c *call) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return c.force
}

// servePersisted marks c as answered from the persister, unless a forced
// caller joined while the lookup ran.
func (r *Resolver) servePersisted(c *call) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.force {
		return false
	}
	c.persisted = true
	return true
}

// fetch calls the fetcher, turning a panic into an error so waiters are never stranded.
func (r *Resolver) fetch(ctx context.Context, req FetchRequest) (doc *Document, err error) {
	defer func() {
		if p := recover(); p != nil {
			doc, err = nil, fmt.Errorf("%w: %v", errFetcherPanic, p)
		}
	}()

	doc, err = r.fetcher.FetchAndConvert(ctx, req)
	if err == nil && doc == nil {
		err = errNilDocument
	}
	return doc, err
}

// classify maps any fetcher failure onto the error taxonomy.
func classify(ctx context.Context, url string, err error) error {
	var fe *FetchError
	if errors.As(err, &fe) {
		if fe.URL == "" {
			fe.URL = url
		}
		return fe
	}
	var ce *ConversionError
	if errors.As(err, &ce) {
		if ce.URL == "" {
			ce.URL = url
		}
		return ce
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &FetchError{URL: url, Err: context.DeadlineExceeded}
	}
	return &FetchError{URL: url, Err: err}
}

// complete publishes the outcome of c. On failure the previous entry is left as is.
func (r *Resolver) complete(url string, c *call, snap *Snapshot, ttl time.Duration, err error) {
	r.mu.Lock()
	if err == nil {
		now := r.opts.Now()
		e := r.entries[url]
		if e == nil {
			e = &entry{}
			r.entries[url] = e
		}
		e.snap = snap
		e.expiresAt = snap.FetchedAt.Add(ttl)
		e.lastAccess = now
	}
	c.snap, c.err = snap, err
	delete(r.calls, url)
	evicted := r.evictOverCapacityLocked(url)
	r.mu.Unlock()

	close(c.done)
	r.recordEvictions(EvictCapacity, evicted)
}

func (r *Resolver) loadPersisted(ctx context.Context, url string, ttl time.Duration) *Snapshot {
	snap, err := r.opts.Persister.LoadSnapshot(ctx, url)
	if err != nil {
		r.log.Warn("Persisted snapshot lookup failed", logger.String("url", url), logger.Error(err))
		return nil
	}
	if snap == nil || snap.Markdown == "" {
		return nil
	}
	if !r.opts.Now().Before(snap.FetchedAt.Add(ttl)) {
		return nil
	}
	return snap
}

func (r *Resolver) persist(ctx context.Context, snap *Snapshot, ttl time.Duration) {
	if r.opts.Persister == nil {
		return
	}
	if err := r.opts.Persister.SaveSnapshot(ctx, snap, ttl); err != nil {
		r.log.Warn("Failed to persist snapshot", logger.String("url", snap.URL), logger.Error(err))
	}
}

// evictOverCapacityLocked drops least recently accessed entries until the
// table fits. Entries with a fetch in progress and keep are never chosen.
func (r *Resolver) evictOverCapacityLocked(keep string) int {
	evicted := 0
	for len(r.entries) > r.opts.Capacity {
		victim := ""
		var oldest time.Time
		for url, e := range r.entries {
			if url == keep {
				continue
			}
			if _, busy := r.calls[url]; busy {
				continue
			}
			if victim == "" || e.lastAccess.Before(oldest) {
				victim, oldest = url, e.lastAccess
			}
		}
		if victim == "" {
			break
		}
		delete(r.entries, victim)
		evicted++
	}
	return evicted
}

func (r *Resolver) recordEvictions(reason string, n int) {
	if n == 0 {
		return
	}
	r.evictions.Add(uint64(n))
	r.obs.Evicted(reason, n)
}

// Sweep drops entries that have not been accessed within the retention window
// and returns how many were removed. Entries with a fetch in progress stay.
func (r *Resolver) Sweep(now time.Time) int {
	r.mu.Lock()
	removed := 0
	for url, e := range r.entries {
		if now.Sub(e.lastAccess) <= r.opts.Retention {
			continue
		}
		if _, busy := r.calls[url]; busy {
			continue
		}
		delete(r.entries, url)
		removed++
	}
	r.mu.Unlock()

	r.recordEvictions(EvictIdle, removed)
	return removed
}

// Warm seeds the table with previously persisted snapshots, typically at
// startup. An entry already in the table wins unless the seed is newer.
// It returns how many snapshots were installed.
func (r *Resolver) Warm(snaps []*Snapshot) int {
	now := r.opts.Now()

	r.mu.Lock()
	installed := 0
	for _, snap := range snaps {
		if snap == nil || snap.URL == "" || snap.Markdown == "" {
			continue
		}
		if _, busy := r.calls[snap.URL]; busy {
			continue
		}
		if e, ok := r.entries[snap.URL]; ok && !snap.FetchedAt.After(e.snap.FetchedAt) {
			continue
		}
		r.entries[snap.URL] = &entry{
			snap:       snap,
			expiresAt:  snap.FetchedAt.Add(r.ttlFor(snap.URL, Directive{})),
			lastAccess: now,
		}
		installed++
	}
	evicted := r.evictOverCapacityLocked("")
	r.mu.Unlock()

	r.recordEvictions(EvictCapacity, evicted)
	return installed
}

// Stats returns counters and table sizes.
func (r *Resolver) Stats() Stats {
	r.mu.Lock()
	entries, inFlight := len(r.entries), len(r.calls)
	r.mu.Unlock()

	return Stats{
		Entries:   entries,
		InFlight:  inFlight,
		Hits:      r.hits.Load(),
		Misses:    r.misses.Load(),
		Coalesced: r.coalesced.Load(),
		Fetches:   r.fetches.Load(),
		Evictions: r.evictions.Load(),
	}
}

// Close rejects new resolves, cancels fetches in progress and waits for them
// to publish their outcome.
func (r *Resolver) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.stop()
	r.wg.Wait()
	return nil
}
