package queue

import "fmt"

// OpKind is the type of a queued operation.
type OpKind uint8

const (
	// OpWrite stores Value under Key.
	OpWrite OpKind = iota
	// OpDelete removes Key.
	OpDelete
	// opBarrier is an internal marker used by Flush. It never reaches a filter or the backend.
	opBarrier
)

// String returns the name of the kind.
func (k OpKind) String() string {
	switch k {
	case OpWrite:
		return "write"
	case OpDelete:
		return "delete"
	case opBarrier:
		return "barrier"
	default:
		return fmt.Sprintf("OpKind(%d)", uint8(k))
	}
}

// Operation is a pending write or delete.
// Seq is assigned on enqueue and grows monotonically within one queue,
// a larger Seq for the same key means a newer operation.
type Operation[K comparable, V any] struct {
	Kind  OpKind
	Key   K
	Value V
	Seq   uint64

	// done is closed when a barrier was reached
	done chan struct{}
}

// String returns a short description used in logs.
func (op *Operation[K, V]) String() string {
	return fmt.Sprintf("%s(%v)#%d", op.Kind, op.Key, op.Seq)
}

func newWrite[K comparable, V any](key K, value V) *Operation[K, V] {
	return &Operation[K, V]{Kind: OpWrite, Key: key, Value: value}
}

func newDelete[K comparable, V any](key K) *Operation[K, V] {
	return &Operation[K, V]{Kind: OpDelete, Key: key}
}

func newBarrier[K comparable, V any]() *Operation[K, V] {
	return &Operation[K, V]{Kind: opBarrier, done: make(chan struct{})}
}
