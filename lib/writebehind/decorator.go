package writebehind

import (
	"context"
	"io"

	"github.com/ValentinKolb/wbKV/lib/loaderwriter"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("writebehind")

// Decorator is a write-behind loader-writer. Writes and deletes are handed
// to a queue and return immediately, the queue applies them to the backend
// later. Reads see pending operations before they reach the backend.
//
// Values passed to Write or WriteAll stay owned by the caller: the queue
// keeps its own copy of byte slices, so reusing a buffer after Write returns
// changes neither the pending nor the stored value. Values returned by a
// load of a key that has already reached the backend come from the backend
// and are copied only if the backend copies them.
//
// Thread-safety: the decorator holds no mutable state of its own. It is
// safe for concurrent use because the backend and queue are.
type Decorator[K comparable, V any] struct {
	name    string
	backend loaderwriter.ILoaderWriter[K, V]
	queue   IQueue[K, V]
}

// compile time check
var _ loaderwriter.ILoaderWriter[string, []byte] = (*Decorator[string, []byte])(nil)

// NewDecorator wraps backend. The queue is created by factory with config
// (including the coalescing setting) and started before the decorator is
// returned, so no operation can reach an unconfigured or idle queue.
func NewDecorator[K comparable, V any](
	backend loaderwriter.ILoaderWriter[K, V],
	config Config,
	factory QueueFactory[K, V],
) (*Decorator[K, V], error) {
	if backend == nil {
		return nil, loaderwriter.NewError(loaderwriter.RetCInvalidOperation, "backend must not be nil")
	}
	if factory == nil {
		return nil, loaderwriter.NewError(loaderwriter.RetCInvalidOperation, "queue factory must not be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	queue, err := factory(backend, config)
	if err != nil {
		return nil, err
	}
	if err := queue.Start(); err != nil {
		return nil, err
	}

	Logger.Infof("write-behind %q started (coalescing=%t, concurrency=%d)", config.Name, config.WriteCoalescing, config.Concurrency)

	return &Decorator[K, V]{
		name:    config.Name,
		backend: backend,
		queue:   queue,
	}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see loaderwriter.ILoaderWriter)
// --------------------------------------------------------------------------

func (d *Decorator[K, V]) Load(key K) (V, bool, error) {
	lookup := d.queue.Load(key)
	switch lookup.State {
	case LookupValue:
		return lookup.Value, true, nil
	case LookupTombstone:
		var zero V
		return zero, false, nil
	}
	return d.backend.Load(key)
}

func (d *Decorator[K, V]) LoadAll(keys []K) (map[K]V, error) {
	result := make(map[K]V, len(keys))
	var unknown []K

	for _, key := range keys {
		lookup := d.queue.Load(key)
		switch lookup.State {
		case LookupValue:
			result[key] = lookup.Value
		case LookupTombstone:
			// pending delete, absent from the result
		default:
			unknown = append(unknown, key)
		}
	}

	if len(unknown) == 0 {
		return result, nil
	}

	loaded, err := d.backend.LoadAll(unknown)
	if err != nil {
		return nil, err
	}
	for key, value := range loaded {
		result[key] = value
	}
	return result, nil
}

func (d *Decorator[K, V]) Write(key K, value V) error {
	return d.queue.Write(key, value)
}

// WriteAll enqueues the entries one by one in order. The first failing
// entry stops the loop and its error is returned, entries before it stay
// enqueued.
func (d *Decorator[K, V]) WriteAll(entries []loaderwriter.Entry[K, V]) error {
	for _, entry := range entries {
		if err := d.queue.Write(entry.Key, entry.Value); err != nil {
			return err
		}
	}
	return nil
}

func (d *Decorator[K, V]) Delete(key K) error {
	return d.queue.Delete(key)
}

// DeleteAll enqueues the deletes one by one in order with the same failure
// behavior as WriteAll.
func (d *Decorator[K, V]) DeleteAll(keys []K) error {
	for _, key := range keys {
		if err := d.queue.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Flush blocks until all operations enqueued so far reached the backend.
func (d *Decorator[K, V]) Flush(ctx context.Context) error {
	return d.queue.Flush(ctx)
}

// Close stops the queue after draining it. Operations issued after Close fail
// with loaderwriter.ErrQueueClosed.
func (d *Decorator[K, V]) Close(ctx context.Context) error {
	Logger.Infof("write-behind %q stopping with %d pending operation(s)", d.name, d.queue.Size())
	return d.queue.Stop(ctx)
}

// Size returns the number of pending operations.
func (d *Decorator[K, V]) Size() int {
	return d.queue.Size()
}

// Name returns the configured name.
func (d *Decorator[K, V]) Name() string {
	return d.name
}

// metricsWriter is implemented by queues that export metrics
type metricsWriter interface {
	WritePrometheus(w io.Writer)
}

// WritePrometheus writes the queue metrics in prometheus text format.
// Nothing is written if the queue does not export metrics.
func (d *Decorator[K, V]) WritePrometheus(w io.Writer) {
	if mw, ok := d.queue.(metricsWriter); ok {
		mw.WritePrometheus(w)
	}
}
