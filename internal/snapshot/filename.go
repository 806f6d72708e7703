package snapshot

import (
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/MrSnakeDoc/folio/internal/fingerprint"
)

const maxSlugLength = 60

// Filename derives a download name such as "getting-started-1a2b3c4d.md".
// The slug comes from the title, else the first heading, else host and path.
// The suffix is the start of the content fingerprint, so two snapshots of the
// same page with different content never share a name.
func Filename(s *Snapshot) string {
	slug := slugify(s.Title)
	if slug == "" {
		slug = slugify(firstHeading(s.Markdown))
	}
	if slug == "" {
		slug = slugify(hostAndPath(s.URL))
	}
	if slug == "" {
		slug = "snapshot"
	}

	fp := fingerprint.Short(s.Fingerprint, 8)
	if fp == "" {
		return slug + ".md"
	}
	return slug + "-" + fp + ".md"
}

func slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
		if b.Len() >= maxSlugLength {
			break
		}
	}

	slug := b.String()
	if len(slug) > maxSlugLength {
		slug = slug[:maxSlugLength]
	}
	return strings.Trim(slug, "-")
}

func firstHeading(markdown string) string {
	for _, line := range strings.Split(markdown, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
	}
	return ""
}

func hostAndPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname() + " " + u.Path
}
