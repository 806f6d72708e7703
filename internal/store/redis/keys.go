package redis

import "fmt"

const (
	// KeyPrefixSnapshot is the prefix for snapshot keys, followed by the normalized URL
	KeyPrefixSnapshot = "folio:snapshot:"
	// KeyRecentSnapshots is a sorted set of normalized URLs scored by fetch time
	KeyRecentSnapshots = "folio:snapshots:recent"
)

// SnapshotKey returns the Redis key for the snapshot of a normalized URL
func SnapshotKey(url string) string {
	return KeyPrefixSnapshot + url
}

// ExtractSnapshotURL extracts the normalized URL from a snapshot key
func ExtractSnapshotURL(key string) (string, error) {
	if len(key) <= len(KeyPrefixSnapshot) || key[:len(KeyPrefixSnapshot)] != KeyPrefixSnapshot {
		return "", fmt.Errorf("invalid snapshot key: %s", key)
	}
	return key[len(KeyPrefixSnapshot):], nil
}
