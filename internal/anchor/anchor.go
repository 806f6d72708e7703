// Package anchor relocates comment anchors inside a Markdown document that
// may have changed since the anchor was created.
//
// Recovery tries, in order: the quote at or near its stored offset, the quote
// anywhere in the document, then an approximate match around the stored
// offset. When none of them is convincing the anchor is reported absent,
// which is a normal outcome and not an error.
package anchor

import (
	"strings"
)

// Default tuning.
const (
	// ContextLength is the number of bytes of context stored on each side of a quote.
	ContextLength = 32

	// InitialWindow is the radius, in bytes, of the first search around the stored offset.
	InitialWindow = 64

	// WindowGrowth multiplies the radius after each unsuccessful search.
	WindowGrowth = 4

	// FuzzyThreshold is the minimum similarity for an approximate match.
	FuzzyThreshold = 0.7

	// MaxFuzzyQuote caps, in runes, the quote length for approximate substring search.
	MaxFuzzyQuote = 512

	maxBracketCandidates = 8
)

// Confidence is the strength of a recovered match.
type Confidence string

const (
	// ConfidenceExact: the quote is where it was, with its context intact.
	ConfidenceExact Confidence = "exact"
	// ConfidenceExactRelocated: the quote is unchanged but moved.
	ConfidenceExactRelocated Confidence = "exact-relocated"
	// ConfidenceApproximate: the quote itself was edited.
	ConfidenceApproximate Confidence = "approximate"
)

// Spec is the stored descriptor of an anchor.
type Spec struct {
	Quote  string `json:"quote"`
	Prefix string `json:"prefix,omitempty"`
	Suffix string `json:"suffix,omitempty"`

	// Offset is the byte offset of Quote in the document the anchor was made on.
	Offset int `json:"offset"`

	// Fingerprint identifies that document.
	Fingerprint string `json:"fingerprint,omitempty"`
}

// Match is a recovered span. [Start, End) is a byte range of the queried
// document on rune boundaries.
type Match struct {
	Start      int        `json:"start"`
	End        int        `json:"end"`
	Confidence Confidence `json:"confidence"`

	// Score is the similarity of an approximate match, 1 for exact ones.
	Score float64 `json:"score"`
}

// Options tunes an Engine. Zero fields take the package defaults.
type Options struct {
	InitialWindow  int
	WindowGrowth   int
	FuzzyThreshold float64
	MaxFuzzyQuote  int
}

// Engine recovers anchors. It holds no state besides its options and is safe
// for concurrent use.
type Engine struct {
	opts Options
}

// NewEngine returns an engine with opts, defaults filled in.
func NewEngine(opts Options) *Engine {
	if opts.InitialWindow <= 0 {
		opts.InitialWindow = InitialWindow
	}
	if opts.WindowGrowth < 2 {
		opts.WindowGrowth = WindowGrowth
	}
	if opts.FuzzyThreshold <= 0 || opts.FuzzyThreshold > 1 {
		opts.FuzzyThreshold = FuzzyThreshold
	}
	if opts.MaxFuzzyQuote <= 0 {
		opts.MaxFuzzyQuote = MaxFuzzyQuote
	}
	return &Engine{opts: opts}
}

var defaultEngine = NewEngine(Options{})

// Recover locates spec in markdown using the default options.
func Recover(markdown string, spec Spec) (Match, bool) {
	return defaultEngine.Recover(markdown, spec)
}

// Recover locates spec in markdown. The boolean is false when the anchor is detached.
func (e *Engine) Recover(markdown string, spec Spec) (Match, bool) {
	if spec.Quote == "" || markdown == "" {
		return Match{}, false
	}

	m, ok, seen := e.exactNear(markdown, spec)
	if ok {
		return m, true
	}
	if seen {
		return e.exactGlobal(markdown, spec)
	}
	return e.fuzzy(markdown, spec)
}

// exactNear searches a window around the stored offset that grows until it
// covers the document. seen reports whether the quote occurs at all.
func (e *Engine) exactNear(doc string, spec Spec) (m Match, ok, seen bool) {
	q := spec.Quote
	off := clamp(spec.Offset, 0, len(doc))

	for radius := e.opts.InitialWindow; ; radius *= e.opts.WindowGrowth {
		lo := floorRune(doc, off-radius)
		hi := ceilRune(doc, off+len(q)+radius)

		hits := occurrences(doc[lo:hi], q)
		if len(hits) > 0 {
			for _, h := range hits {
				start := lo + h
				if start == spec.Offset && contextIntact(doc, spec, start) {
					return exactMatch(start, len(q), ConfidenceExact), true, true
				}
			}
			if len(hits) == 1 && contextIntact(doc, spec, lo+hits[0]) {
				return exactMatch(lo+hits[0], len(q), ConfidenceExact), true, true
			}
			return Match{}, false, true
		}

		if lo == 0 && hi == len(doc) {
			return Match{}, false, false
		}
	}
}

// exactGlobal picks among all occurrences of the quote the one whose
// surroundings agree most with the stored context.
func (e *Engine) exactGlobal(doc string, spec Spec) (Match, bool) {
	hits := occurrences(doc, spec.Quote)
	if len(hits) == 0 {
		return Match{}, false
	}

	best, bestOverlap := hits[0], -1
	for _, h := range hits {
		overlap := commonSuffixLen(spec.Prefix, doc[:h]) + commonPrefixLen(spec.Suffix, doc[h+len(spec.Quote):])
		switch {
		case overlap > bestOverlap:
			best, bestOverlap = h, overlap
		case overlap == bestOverlap && distance(h, spec.Offset) < distance(best, spec.Offset):
			best = h
		}
	}
	return exactMatch(best, len(spec.Quote), ConfidenceExactRelocated), true
}

func exactMatch(start, n int, c Confidence) Match {
	return Match{Start: start, End: start + n, Confidence: c, Score: 1}
}

func contextIntact(doc string, spec Spec, start int) bool {
	end := start + len(spec.Quote)
	return strings.HasSuffix(doc[:start], spec.Prefix) && strings.HasPrefix(doc[end:], spec.Suffix)
}

func distance(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
