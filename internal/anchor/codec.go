package anchor

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/MrSnakeDoc/folio/internal/fingerprint"
)

var (
	// ErrInvalidRange is returned by New for a selection that is empty, out
	// of bounds or splits a rune.
	ErrInvalidRange = errors.New("anchor: invalid selection range")

	// ErrMalformedToken is returned by Decode for input Encode did not produce.
	ErrMalformedToken = errors.New("anchor: malformed token")
)

// New builds the anchor for markdown[start:end].
func New(markdown string, start, end int) (Spec, error) {
	if start < 0 || end > len(markdown) || start >= end {
		return Spec{}, fmt.Errorf("%w: [%d,%d) in %d bytes", ErrInvalidRange, start, end, len(markdown))
	}
	if !onRuneBoundary(markdown, start) || !onRuneBoundary(markdown, end) {
		return Spec{}, fmt.Errorf("%w: [%d,%d) splits a character", ErrInvalidRange, start, end)
	}

	return Spec{
		Quote:       markdown[start:end],
		Prefix:      markdown[ceilRune(markdown, start-ContextLength):start],
		Suffix:      markdown[end:floorRune(markdown, end+ContextLength)],
		Offset:      start,
		Fingerprint: fingerprint.Of(markdown),
	}, nil
}

// Encode turns spec into an opaque, URL-safe token.
func Encode(spec Spec) (string, error) {
	raw, err := json.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("encode anchor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Decode parses a token produced by Encode.
func Decode(token string) (Spec, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Spec{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	var spec Spec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return Spec{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if spec.Quote == "" || spec.Offset < 0 {
		return Spec{}, fmt.Errorf("%w: missing quote or negative offset", ErrMalformedToken)
	}
	return spec, nil
}

func onRuneBoundary(s string, i int) bool {
	return i == len(s) || utf8.RuneStart(s[i])
}
