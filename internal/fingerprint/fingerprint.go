// Package fingerprint derives stable content fingerprints for snapshots and anchors.
package fingerprint

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
)

// Prefix tags the hash algorithm so the format can evolve without ambiguity.
const Prefix = "b3-"

// Of returns the BLAKE3 fingerprint of text, e.g. "b3-9f86d0...".
func Of(text string) string {
	sum := blake3.Sum256([]byte(text))
	return Prefix + hex.EncodeToString(sum[:])
}

// Short returns the first n hex characters of a fingerprint, without prefix.
func Short(fp string, n int) string {
	fp = strings.TrimPrefix(fp, Prefix)
	if n <= 0 || len(fp) <= n {
		return fp
	}
	return fp[:n]
}
