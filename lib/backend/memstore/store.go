package memstore

import (
	"bytes"

	"github.com/ValentinKolb/wbKV/lib/loaderwriter"
	"github.com/ValentinKolb/wbKV/lib/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// Store is an in-memory loader-writer. Keys are spread over shards, each
// shard is a concurrent map.
//
// Thread-safety: all methods are safe for concurrent use.
type Store[K comparable, V any] struct {
	shards []*xsync.MapOf[K, V]
	hasher util.KeyHasher[K]
	clone  func(V) V
}

// compile time check
var _ loaderwriter.ILoaderWriter[string, []byte] = (*Store[string, []byte])(nil)

// New creates an empty store with the given number of shards (at least one).
// Values are stored and returned as is.
func New[K comparable, V any](shards int) *Store[K, V] {
	if shards < 1 {
		shards = 1
	}
	s := &Store[K, V]{
		shards: make([]*xsync.MapOf[K, V], shards),
		hasher: util.NewKeyHasher[K](),
	}
	for i := range s.shards {
		s.shards[i] = xsync.NewMapOf[K, V]()
	}
	return s
}

// NewBytes creates a store for byte slice values. Values are copied on the
// way in and out, so callers may reuse their buffers.
func NewBytes(shards int) *Store[string, []byte] {
	s := New[string, []byte](shards)
	s.clone = func(v []byte) []byte {
		if v == nil {
			return []byte{}
		}
		return bytes.Clone(v)
	}
	return s
}

// --------------------------------------------------------------------------
// Interface Methods (docu see loaderwriter.ILoaderWriter)
// --------------------------------------------------------------------------

func (s *Store[K, V]) Load(key K) (V, bool, error) {
	v, ok := s.shard(key).Load(key)
	if ok && s.clone != nil {
		v = s.clone(v)
	}
	return v, ok, nil
}

func (s *Store[K, V]) LoadAll(keys []K) (map[K]V, error) {
	result := make(map[K]V, len(keys))
	for _, key := range keys {
		if v, ok, _ := s.Load(key); ok {
			result[key] = v
		}
	}
	return result, nil
}

func (s *Store[K, V]) Write(key K, value V) error {
	if s.clone != nil {
		value = s.clone(value)
	}
	s.shard(key).Store(key, value)
	return nil
}

func (s *Store[K, V]) WriteAll(entries []loaderwriter.Entry[K, V]) error {
	for _, e := range entries {
		_ = s.Write(e.Key, e.Value)
	}
	return nil
}

func (s *Store[K, V]) Delete(key K) error {
	s.shard(key).Delete(key)
	return nil
}

func (s *Store[K, V]) DeleteAll(keys []K) error {
	for _, key := range keys {
		s.shard(key).Delete(key)
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// Len returns the number of stored keys.
func (s *Store[K, V]) Len() int {
	n := 0
	for _, shard := range s.shards {
		n += shard.Size()
	}
	return n
}

// Range calls f for every stored entry until f returns false. The order is unspecified.
func (s *Store[K, V]) Range(f func(key K, value V) bool) {
	for _, shard := range s.shards {
		stop := false
		shard.Range(func(k K, v V) bool {
			if !f(k, v) {
				stop = true
				return false
			}
			return true
		})
		if stop {
			return
		}
	}
}

// Clear removes all entries.
func (s *Store[K, V]) Clear() {
	for _, shard := range s.shards {
		shard.Clear()
	}
}

func (s *Store[K, V]) shard(key K) *xsync.MapOf[K, V] {
	if len(s.shards) == 1 {
		return s.shards[0]
	}
	return s.shards[s.hasher.Slot(key, len(s.shards))]
}
