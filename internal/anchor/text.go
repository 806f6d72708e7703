package anchor

import (
	"strings"
	"unicode/utf8"
)

// occurrences returns the byte offsets of every, possibly overlapping, match of sub in s.
func occurrences(s, sub string) []int {
	var hits []int
	if sub == "" {
		return hits
	}
	for from := 0; from <= len(s)-len(sub); {
		i := strings.Index(s[from:], sub)
		if i < 0 {
			break
		}
		hits = append(hits, from+i)
		_, size := utf8.DecodeRuneInString(s[from+i:])
		from += i + size
	}
	return hits
}

// floorRune clamps i into s and moves it back to the start of a rune.
func floorRune(s string, i int) int {
	i = clamp(i, 0, len(s))
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// ceilRune clamps i into s and moves it forward to the start of a rune.
func ceilRune(s string, i int) int {
	i = clamp(i, 0, len(s))
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}

// commonSuffixLen is the length in bytes of the longest common suffix of a and b.
func commonSuffixLen(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[len(a)-1-n] == b[len(b)-1-n] {
		n++
	}
	return n
}

// commonPrefixLen is the length in bytes of the longest common prefix of a and b.
func commonPrefixLen(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

// headRunes returns the first n runes of s.
func headRunes(s string, n int) string {
	for i := range s {
		if n == 0 {
			return s[:i]
		}
		n--
	}
	return s
}

// tailRunes returns the last n runes of s.
func tailRunes(s string, n int) string {
	i := len(s)
	for ; n > 0 && i > 0; n-- {
		_, size := utf8.DecodeLastRuneInString(s[:i])
		i -= size
	}
	return s[i:]
}
