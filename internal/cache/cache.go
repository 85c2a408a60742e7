package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache defines the interface for short-lived memoization
type Cache[V any] interface {
	Get(key string) (V, bool)
	Set(key string, value V, ttl time.Duration)
}

// ScopedKey builds a key that never collides across proposals.
// kind separates claim and paragraph queries that happen to share text.
func ScopedKey(proposalID, kind, query string) string {
	hash := sha256.Sum256([]byte(query))
	return "proposalgate:v1:" + proposalID + ":" + kind + ":" + hex.EncodeToString(hash[:])
}
