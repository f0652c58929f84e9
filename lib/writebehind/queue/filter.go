package queue

// IOperationsFilter rewrites a batch of operations before it is applied to
// the backend. Implementations must keep the relative order of the
// operations they retain.
type IOperationsFilter[K comparable, V any] interface {
	Filter(ops []*Operation[K, V]) []*Operation[K, V]
}

// --------------------------------------------------------------------------
// Filters
// --------------------------------------------------------------------------

// NoopFilter keeps every operation.
type NoopFilter[K comparable, V any] struct{}

func (NoopFilter[K, V]) Filter(ops []*Operation[K, V]) []*Operation[K, V] {
	return ops
}

// CoalesceKeysFilter keeps only the last operation of every key.
// Survivors keep their relative order, so an operation is placed where the
// last operation of its key was enqueued.
type CoalesceKeysFilter[K comparable, V any] struct{}

func (CoalesceKeysFilter[K, V]) Filter(ops []*Operation[K, V]) []*Operation[K, V] {
	if len(ops) < 2 {
		return ops
	}

	last := make(map[K]int, len(ops))
	for i, op := range ops {
		last[op.Key] = i
	}
	if len(last) == len(ops) {
		return ops
	}

	out := make([]*Operation[K, V], 0, len(last))
	for i, op := range ops {
		if last[op.Key] == i {
			out = append(out, op)
		}
	}
	return out
}

// filterFor returns the filter matching the coalescing setting
func filterFor[K comparable, V any](coalesce bool) IOperationsFilter[K, V] {
	if coalesce {
		return CoalesceKeysFilter[K, V]{}
	}
	return NoopFilter[K, V]{}
}
