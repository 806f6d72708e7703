package anchor

import (
	"sort"
	"strings"
	"unicode/utf8"
)

type span struct {
	start, end int
}

// fuzzy looks for an edited version of the quote near its stored offset.
// Candidates come from the stored context (text between the prefix and the
// suffix) and from approximate substring search of the quote. Each one is
// scored by comparing prefix+quote+suffix with the candidate and its
// surroundings.
func (e *Engine) fuzzy(doc string, spec Spec) (Match, bool) {
	full := spec.Prefix + spec.Quote + spec.Suffix
	off := clamp(spec.Offset, 0, len(doc))
	radius := 2*len(full) + 128

	lo := floorRune(doc, off-radius)
	hi := ceilRune(doc, off+len(spec.Quote)+radius)

	candidates := bracketCandidates(doc, spec, lo, hi)
	if c, ok := e.approximateSubstring(doc[lo:hi], spec.Quote, off+len(spec.Quote)-lo); ok {
		candidates = append(candidates, span{start: lo + c.start, end: lo + c.end})
	}

	var best span
	bestScore := -1.0
	for _, c := range candidates {
		score := e.score(doc, spec, full, c)
		switch {
		case score > bestScore:
			best, bestScore = c, score
		case score == bestScore && distance(c.start, off) < distance(best.start, off):
			best = c
		}
	}

	if bestScore < e.opts.FuzzyThreshold {
		return Match{}, false
	}
	return Match{Start: best.start, End: best.end, Confidence: ConfidenceApproximate, Score: bestScore}, true
}

// score compares prefix+quote+suffix with candidate c and its surroundings.
// A quote longer than MaxFuzzyQuote runes is compared through its head and
// tail only, scaled by the length ratio, so the cost is bounded by
// MaxFuzzyQuote whatever the quote size.
func (e *Engine) score(doc string, spec Spec, full string, c span) float64 {
	before := doc[floorRune(doc, c.start-len(spec.Prefix)):c.start]
	after := doc[c.end:ceilRune(doc, c.end+len(spec.Suffix))]
	got := doc[c.start:c.end]

	quoteLen := utf8.RuneCountInString(spec.Quote)
	if quoteLen <= e.opts.MaxFuzzyQuote {
		return similarity(full, before+got+after)
	}

	k := e.opts.MaxFuzzyQuote / 2
	head := similarity(spec.Prefix+headRunes(spec.Quote, k), before+headRunes(got, k))
	tail := similarity(tailRunes(spec.Quote, k)+spec.Suffix, tailRunes(got, k)+after)

	gotLen := utf8.RuneCountInString(got)
	ratio := float64(min(quoteLen, gotLen)) / float64(max(quoteLen, gotLen))
	return (head + tail) / 2 * ratio
}

// bracketCandidates returns the spans enclosed by the stored prefix and
// suffix within [lo, hi), nearest to the stored offset first.
func bracketCandidates(doc string, spec Spec, lo, hi int) []span {
	maxSpan := 2*len(spec.Quote) + 2*ContextLength
	off := clamp(spec.Offset, 0, len(doc))

	var starts []int
	switch {
	case spec.Prefix != "":
		for _, h := range occurrences(doc[lo:hi], spec.Prefix) {
			starts = append(starts, lo+h+len(spec.Prefix))
		}
	case spec.Offset == 0:
		starts = append(starts, 0)
	}

	sort.SliceStable(starts, func(i, j int) bool {
		return distance(starts[i], off) < distance(starts[j], off)
	})
	if len(starts) > maxBracketCandidates {
		starts = starts[:maxBracketCandidates]
	}

	var out []span
	for _, s := range starts {
		end := -1
		if spec.Suffix == "" {
			if len(doc)-s <= maxSpan {
				end = len(doc)
			}
		} else {
			limit := clamp(s+maxSpan+len(spec.Suffix), s, len(doc))
			if j := strings.Index(doc[s:limit], spec.Suffix); j >= 0 {
				end = s + j
			}
		}
		if end > s {
			out = append(out, span{start: s, end: end})
		}
	}
	return out
}

// approximateSubstring finds the substring of text with the smallest edit
// distance to quote (Sellers' algorithm over runes). expectedEnd is the byte
// offset in text where the quote used to end; it breaks ties. Offsets in the
// result are bytes into text.
func (e *Engine) approximateSubstring(text, quote string, expectedEnd int) (span, bool) {
	p := []rune(quote)
	if len(p) == 0 || len(p) > e.opts.MaxFuzzyQuote || text == "" {
		return span{}, false
	}

	// byteAt[j] is the byte offset of the j-th rune of text.
	t := make([]rune, 0, utf8.RuneCountInString(text))
	byteAt := make([]int, 0, cap(t)+1)
	for i, r := range text {
		t = append(t, r)
		byteAt = append(byteAt, i)
	}
	byteAt = append(byteAt, len(text))

	n := len(t)
	prevD, curD := make([]int, n+1), make([]int, n+1)
	prevS, curS := make([]int, n+1), make([]int, n+1)
	for j := 0; j <= n; j++ {
		prevS[j] = j
	}

	for i := 1; i <= len(p); i++ {
		curD[0], curS[0] = i, 0
		for j := 1; j <= n; j++ {
			cost := 1
			if p[i-1] == t[j-1] {
				cost = 0
			}
			d, s := prevD[j-1]+cost, prevS[j-1]
			if prevD[j]+1 < d {
				d, s = prevD[j]+1, prevS[j]
			}
			if curD[j-1]+1 < d {
				d, s = curD[j-1]+1, curS[j-1]
			}
			curD[j], curS[j] = d, s
		}
		prevD, curD = curD, prevD
		prevS, curS = curS, prevS
	}

	bestEnd := -1
	for j := 1; j <= n; j++ {
		if prevS[j] == j {
			continue
		}
		if bestEnd < 0 || prevD[j] < prevD[bestEnd] ||
			(prevD[j] == prevD[bestEnd] && distance(byteAt[j], expectedEnd) < distance(byteAt[bestEnd], expectedEnd)) {
			bestEnd = j
		}
	}
	if bestEnd < 0 || prevD[bestEnd] >= len(p) {
		return span{}, false
	}
	return span{start: byteAt[prevS[bestEnd]], end: byteAt[bestEnd]}, true
}

// similarity is 1 - levenshtein(a, b) / max(len(a), len(b)), over runes.
func similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

func levenshtein(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j-1]+cost, prev[j]+1, cur[j-1]+1)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
