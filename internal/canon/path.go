package canon

import (
	"strings"
)

const upperHex = "0123456789ABCDEF"

// normalizePath rewrites an escaped path: escapes of unreserved characters
// are decoded, every other escape keeps its encoding with uppercase hex, bytes
// not allowed in a path are encoded, then dot segments are removed.
// An encoded slash stays encoded so a/b and a%2Fb remain distinct.
func normalizePath(escaped string) string {
	if escaped == "" {
		return "/"
	}

	var b strings.Builder
	b.Grow(len(escaped))
	for i := 0; i < len(escaped); i++ {
		c := escaped[i]
		if c == '%' && i+2 < len(escaped) && isHex(escaped[i+1]) && isHex(escaped[i+2]) {
			v := unhex(escaped[i+1])<<4 | unhex(escaped[i+2])
			if isUnreserved(v) {
				b.WriteByte(v)
			} else {
				writeEscape(&b, v)
			}
			i += 2
			continue
		}
		if c == '/' || isPathChar(c) {
			b.WriteByte(c)
			continue
		}
		writeEscape(&b, c)
	}
	return removeDotSegments(b.String())
}

// removeDotSegments resolves "." and ".." segments. ".." never climbs above the root.
func removeDotSegments(path string) string {
	segments := strings.Split(path, "/")
	out := make([]string, 0, len(segments))
	for i, s := range segments {
		last := i == len(segments)-1
		switch s {
		case ".":
			if last {
				out = append(out, "")
			}
		case "..":
			if len(out) > 1 {
				out = out[:len(out)-1]
			}
			if last {
				out = append(out, "")
			}
		default:
			out = append(out, s)
		}
	}
	p := strings.Join(out, "/")
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func writeEscape(b *strings.Builder, v byte) {
	b.WriteByte('%')
	b.WriteByte(upperHex[v>>4])
	b.WriteByte(upperHex[v&0x0F])
}

// isUnreserved reports ALPHA / DIGIT / "-" / "." / "_" / "~".
func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return c == '-' || c == '.' || c == '_' || c == '~'
}

// isPathChar reports pchar bytes that may appear unescaped in a segment.
func isPathChar(c byte) bool {
	if isUnreserved(c) {
		return true
	}
	return strings.IndexByte("!$&'()*+,;=:@", c) >= 0
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
