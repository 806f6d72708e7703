package policy

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/MrSnakeDoc/folio/internal/canon"
)

// Policy is a validated policy file.
type Policy struct {
	KeepFragmentHosts []string

	exact    map[string]time.Duration
	wildcard map[string]time.Duration // keyed by ".suffix"
}

// Map converts a parsed file into a Policy. Hosts are lowercased; a host
// written as "*.example.com" covers every subdomain of example.com.
func Map(file File) (*Policy, error) {
	p := &Policy{
		exact:    make(map[string]time.Duration),
		wildcard: make(map[string]time.Duration),
	}

	for _, h := range file.KeepFragmentHosts {
		h = normalizeHost(h)
		if h == "" {
			continue
		}
		p.KeepFragmentHosts = append(p.KeepFragmentHosts, h)
	}

	for host, raw := range file.TTL {
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid ttl for %q: %w", host, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("invalid ttl for %q: must be > 0, got %v", host, d)
		}

		h := normalizeHost(host)
		if suffix, ok := strings.CutPrefix(h, "*"); ok && strings.HasPrefix(suffix, ".") {
			p.wildcard[suffix] = d
			continue
		}
		if h == "" {
			return nil, fmt.Errorf("invalid ttl entry: empty host")
		}
		p.exact[h] = d
	}

	sort.Strings(p.KeepFragmentHosts)
	return p, nil
}

// Canon returns the canonicalizer view of the policy.
func (p *Policy) Canon() canon.Policy {
	return canon.Policy{KeepFragmentHosts: p.KeepFragmentHosts}
}

// Overrides reports how many TTL overrides the policy carries.
func (p *Policy) Overrides() int {
	return len(p.exact) + len(p.wildcard)
}

// TTLFor returns the TTL override for the host of rawURL, or 0 when none
// applies. Exact hosts win over wildcards; among wildcards the longest
// suffix wins.
func (p *Policy) TTLFor(rawURL string) time.Duration {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	host := normalizeHost(u.Hostname())
	if host == "" {
		return 0
	}

	if d, ok := p.exact[host]; ok {
		return d
	}

	var best string
	for suffix := range p.wildcard {
		if strings.HasSuffix(host, suffix) && len(suffix) > len(best) {
			best = suffix
		}
	}
	if best == "" {
		return 0
	}
	return p.wildcard[best]
}

func normalizeHost(h string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(h)), ".")
}

// Active holds the policy in force. Readers never block a reload.
type Active struct {
	current atomic.Pointer[Policy]
}

// NewActive starts with p, or with an empty policy when p is nil.
func NewActive(p *Policy) *Active {
	a := &Active{}
	a.Store(p)
	return a
}

// Store swaps the active policy.
func (a *Active) Store(p *Policy) {
	if p == nil {
		p = &Policy{}
	}
	a.current.Store(p)
}

// Load returns the active policy.
func (a *Active) Load() *Policy {
	return a.current.Load()
}

// TTLFor resolves against the active policy. It has the shape of
// snapshot.Options.TTLFor.
func (a *Active) TTLFor(rawURL string) time.Duration {
	return a.Load().TTLFor(rawURL)
}
