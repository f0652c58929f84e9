package util

import (
	"hash/maphash"
	"strings"
)

// --------------------------------------------------------------------------
// Hash Functions
// --------------------------------------------------------------------------

// HashString generates a FNV-1a hash value for a string mixed with a seed.
// Unlike KeyHasher the result is stable across processes for the same seed.
func HashString(s string, seed uint64) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)

	hash := uint64(offset64) ^ seed
	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= prime64
	}
	return hash
}

// KeyHasher hashes arbitrary comparable keys. The seed is fixed at creation,
// so the same key always hashes to the same value within one hasher.
type KeyHasher[K comparable] struct {
	seed maphash.Seed
}

// NewKeyHasher creates a hasher with a random seed.
func NewKeyHasher[K comparable]() KeyHasher[K] {
	return KeyHasher[K]{seed: maphash.MakeSeed()}
}

// Hash returns the hash of key.
func (h KeyHasher[K]) Hash(key K) uint64 {
	return maphash.Comparable(h.seed, key)
}

// Slot maps key onto one of n slots. n must be greater than zero.
func (h KeyHasher[K]) Slot(key K, n int) int {
	return int(h.Hash(key) % uint64(n))
}

// --------------------------------------------------------------------------
// Formatting
// --------------------------------------------------------------------------

// ParseKeyValue splits "key=value" into its parts. ok is false if there is no '='
// or the key is empty.
func ParseKeyValue(s string) (key, value string, ok bool) {
	key, value, ok = strings.Cut(s, "=")
	if !ok || key == "" {
		return "", "", false
	}
	return key, value, true
}
