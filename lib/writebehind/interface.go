package writebehind

import (
	"context"

	"github.com/ValentinKolb/wbKV/lib/loaderwriter"
)

// --------------------------------------------------------------------------
// Queue Lookup
// --------------------------------------------------------------------------

// LookupState tells what the queue knows about a key.
type LookupState uint8

const (
	// LookupUnknown means the key has no pending operation. The backend is authoritative.
	LookupUnknown LookupState = iota
	// LookupValue means the key has a pending write. Lookup.Value holds the written value.
	LookupValue
	// LookupTombstone means the key has a pending delete.
	LookupTombstone
)

// String returns the name of the state.
func (s LookupState) String() string {
	switch s {
	case LookupUnknown:
		return "unknown"
	case LookupValue:
		return "value"
	case LookupTombstone:
		return "tombstone"
	default:
		return "invalid"
	}
}

// Lookup is the result of IQueue.Load. A pending write of the zero value
// (LookupValue with an empty Value) is distinct from LookupUnknown.
type Lookup[V any] struct {
	State LookupState
	Value V
}

// Unknown returns a lookup for a key the queue does not track.
func Unknown[V any]() Lookup[V] {
	return Lookup[V]{State: LookupUnknown}
}

// Pending returns a lookup for a key with a pending write of value.
func Pending[V any](value V) Lookup[V] {
	return Lookup[V]{State: LookupValue, Value: value}
}

// Tombstone returns a lookup for a key with a pending delete.
func Tombstone[V any]() Lookup[V] {
	return Lookup[V]{State: LookupTombstone}
}

// --------------------------------------------------------------------------
// Queue Interface
// --------------------------------------------------------------------------

// IQueue is the pending-operations queue the decorator routes writes through.
// The queue applies the operations to the backend asynchronously.
//
// Requirements on implementations:
//   - Operations on the same key are applied to the backend in enqueue order.
//   - Load reflects the most recently enqueued operation of a key until that
//     operation was applied to the backend.
//   - Failures during the asynchronous apply are reported through the
//     queue's own channel (error handler, logs, metrics), never to the caller
//     of Write or Delete.
//
// Thread-safety: all methods must be safe for concurrent use.
type IQueue[K comparable, V any] interface {
	// Start begins background processing. It is called exactly once.
	Start() error
	// Load returns what the queue knows about key. A pending value must not
	// share memory the caller can mutate with the queued operation.
	Load(key K) Lookup[V]
	// Write enqueues a write. It fails if the queue can not accept more work.
	// Values that share memory (byte slices) must be copied before they are
	// queued, the caller keeps ownership of its buffer.
	Write(key K, value V) error
	// Delete enqueues a delete. It fails like Write.
	Delete(key K) error
	// Flush blocks until every operation enqueued before the call was applied
	// to the backend or permanently failed, or until ctx is done.
	Flush(ctx context.Context) error
	// Stop refuses new operations, drains the pending ones and stops background processing.
	Stop(ctx context.Context) error
	// Size returns the number of pending operations.
	Size() int
}

// QueueFactory creates the queue for a decorator. Coalescing and every other
// queue setting is part of config, so a queue never runs with a filter that
// was installed after it accepted operations.
type QueueFactory[K comparable, V any] func(backend loaderwriter.ILoaderWriter[K, V], config Config) (IQueue[K, V], error)
