package canon

import (
	"net"
	"net/url"
	"sort"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/PuerkitoBio/purell"
	"golang.org/x/net/idna"
)

// normalizeFlags are applied by purell to the scheme and host. purell escapes
// the decoded path, which would lose %2F, so path, query and fragment are
// normalized here.
const normalizeFlags = purell.FlagsSafe

// Result holds both forms of a canonicalized URL.
type Result struct {
	// Normalized is the cache key. It is a pure function of the raw input
	// and the active policy.
	Normalized string

	// Display is a human label. It is never used as a key.
	Display string
}

// Policy tunes canonicalization for hosts that need special handling.
type Policy struct {
	// KeepFragmentHosts lists hosts whose pages route on the URL fragment
	// (hash-routed single page apps). Their fragment is part of the key.
	KeepFragmentHosts []string
}

// Canonicalizer turns raw URL input into a stable cache key and a label.
// It never touches the network.
type Canonicalizer struct {
	keepFragment atomic.Pointer[map[string]struct{}]
}

// New creates a canonicalizer with the given policy.
func New(p Policy) *Canonicalizer {
	c := &Canonicalizer{}
	c.SetPolicy(p)
	return c
}

var defaultCanonicalizer = New(Policy{})

// Canonicalize uses the default policy (fragments always stripped).
func Canonicalize(raw string) (Result, error) {
	return defaultCanonicalizer.Canonicalize(raw)
}

// SetPolicy swaps the active policy. Safe to call while other goroutines canonicalize.
func (c *Canonicalizer) SetPolicy(p Policy) {
	hosts := make(map[string]struct{}, len(p.KeepFragmentHosts))
	for _, h := range p.KeepFragmentHosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			hosts[h] = struct{}{}
		}
	}
	c.keepFragment.Store(&hosts)
}

// Canonicalize parses raw and returns its normalized and display forms.
// It fails with *InvalidURLError unless raw is an absolute http(s) URL.
func (c *Canonicalizer) Canonicalize(raw string) (Result, error) {
	input := strings.TrimSpace(raw)
	if input == "" {
		return Result{}, invalid(raw, "empty input", nil)
	}

	u, err := url.Parse(input)
	if err != nil {
		return Result{}, invalid(raw, "unparseable", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return Result{}, invalid(raw, "scheme must be http or https", nil)
	}
	if u.Opaque != "" || u.Host == "" {
		return Result{}, invalid(raw, "missing host", nil)
	}
	if u.User != nil {
		return Result{}, invalid(raw, "credentials are not allowed", nil)
	}

	hostname, err := asciiHost(u.Hostname())
	if err != nil {
		return Result{}, invalid(raw, "invalid host", err)
	}
	if hostname == "" {
		return Result{}, invalid(raw, "missing host", nil)
	}

	host := joinHost(hostname, u.Port(), scheme)
	keepFragment := c.keepsFragment(hostname)

	path := normalizePath(u.EscapedPath())

	u.Scheme = scheme
	u.Host = host
	u.Path = ""
	u.RawPath = ""
	query := sortQuery(u.RawQuery)
	fragment := u.EscapedFragment()
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""

	base := purell.NormalizeURL(u, normalizeFlags) + path
	displayPath := path
	if p, err := url.PathUnescape(path); err == nil {
		displayPath = p
	}

	var b strings.Builder
	b.WriteString(base)
	if query != "" {
		b.WriteByte('?')
		b.WriteString(query)
	}
	if keepFragment && fragment != "" {
		b.WriteByte('#')
		b.WriteString(fragment)
	}
	normalized := b.String()

	return Result{
		Normalized: normalized,
		Display:    displayLabel(scheme, host, displayPath, query, fragment, keepFragment),
	}, nil
}

func (c *Canonicalizer) keepsFragment(hostname string) bool {
	hosts := c.keepFragment.Load()
	if hosts == nil {
		return false
	}
	_, ok := (*hosts)[hostname]
	return ok
}

// asciiHost lowercases the host and converts internationalized names to punycode.
// IP literals pass through untouched.
func asciiHost(h string) (string, error) {
	h = strings.TrimSuffix(h, ".")
	if net.ParseIP(h) != nil {
		return strings.ToLower(h), nil
	}
	if !isASCII(h) {
		a, err := idna.Lookup.ToASCII(h)
		if err != nil {
			return "", err
		}
		h = a
	}
	if strings.ContainsAny(h, " \t/\\") {
		return "", errInvalidHostChars
	}
	return strings.ToLower(h), nil
}

func joinHost(hostname, port, scheme string) string {
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if strings.Contains(hostname, ":") {
		hostname = "[" + hostname + "]"
	}
	if port == "" {
		return hostname
	}
	return hostname + ":" + port
}

// sortQuery re-encodes every parameter consistently and orders them by key
// then value. Empty parameters are dropped.
func sortQuery(raw string) string {
	if raw == "" {
		return ""
	}

	type param struct {
		key   string
		value string
		bare  bool
	}

	params := make([]param, 0, strings.Count(raw, "&")+1)
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		k, v, hasValue := strings.Cut(part, "=")
		p := param{key: unescapeQuery(k), value: unescapeQuery(v), bare: !hasValue}
		if p.key == "" && p.value == "" {
			continue
		}
		params = append(params, p)
	}

	sort.SliceStable(params, func(i, j int) bool {
		if params[i].key != params[j].key {
			return params[i].key < params[j].key
		}
		return params[i].value < params[j].value
	})

	parts := make([]string, 0, len(params))
	for _, p := range params {
		if p.bare {
			parts = append(parts, url.QueryEscape(p.key))
			continue
		}
		parts = append(parts, url.QueryEscape(p.key)+"="+url.QueryEscape(p.value))
	}
	return strings.Join(parts, "&")
}

func unescapeQuery(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}

func displayLabel(scheme, host, path, query, fragment string, keepFragment bool) string {
	var b strings.Builder
	if scheme != "https" {
		b.WriteString(scheme)
		b.WriteString("://")
	}
	b.WriteString(host)
	if path != "/" {
		b.WriteString(path)
	}
	if query != "" {
		b.WriteByte('?')
		b.WriteString(query)
	}
	if keepFragment && fragment != "" {
		b.WriteByte('#')
		b.WriteString(fragment)
	}
	return b.String()
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
