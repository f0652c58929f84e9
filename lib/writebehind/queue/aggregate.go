package queue

import (
	"context"
	"errors"
	"io"

	"github.com/ValentinKolb/wbKV/lib/loaderwriter"
	"github.com/ValentinKolb/wbKV/lib/util"
	"github.com/ValentinKolb/wbKV/lib/writebehind"
)

// Aggregate spreads keys over several Local stripes, each with its own
// flush goroutine. A key always maps to the same stripe, which keeps the
// per-key ordering of a single stripe.
//
// Thread-safety: all exported methods are safe for concurrent use.
type Aggregate[K comparable, V any] struct {
	stripes []*Local[K, V]
	hasher  util.KeyHasher[K]
}

// compile time check
var _ writebehind.IQueue[string, []byte] = (*Aggregate[string, []byte])(nil)

// NewAggregate creates concurrency stripes over backend. Every stripe gets
// opts with its own stripe index, MaxQueueSize applies per stripe.
func NewAggregate[K comparable, V any](backend loaderwriter.ILoaderWriter[K, V], opts Options[K, V], concurrency int) (*Aggregate[K, V], error) {
	if concurrency < 1 {
		return nil, loaderwriter.NewError(loaderwriter.RetCInvalidOperation, "concurrency must be at least 1")
	}

	a := &Aggregate[K, V]{
		stripes: make([]*Local[K, V], concurrency),
		hasher:  util.NewKeyHasher[K](),
	}
	for i := range a.stripes {
		stripeOpts := opts
		stripeOpts.Stripe = i
		stripe, err := NewLocal(backend, stripeOpts)
		if err != nil {
			return nil, err
		}
		a.stripes[i] = stripe
	}
	return a, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see writebehind.IQueue)
// --------------------------------------------------------------------------

func (a *Aggregate[K, V]) Start() error {
	for i, stripe := range a.stripes {
		if err := stripe.Start(); err != nil {
			// stop what was started already, nothing was enqueued yet
			for _, started := range a.stripes[:i] {
				_ = started.Stop(context.Background())
			}
			return err
		}
	}
	return nil
}

func (a *Aggregate[K, V]) Load(key K) writebehind.Lookup[V] {
	return a.stripeFor(key).Load(key)
}

func (a *Aggregate[K, V]) Write(key K, value V) error {
	return a.stripeFor(key).Write(key, value)
}

func (a *Aggregate[K, V]) Delete(key K) error {
	return a.stripeFor(key).Delete(key)
}

func (a *Aggregate[K, V]) Flush(ctx context.Context) error {
	for _, stripe := range a.stripes {
		if err := stripe.Flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Stop stops all stripes. Every stripe is asked to stop even if an earlier one failed.
func (a *Aggregate[K, V]) Stop(ctx context.Context) error {
	var errs []error
	for _, stripe := range a.stripes {
		if err := stripe.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *Aggregate[K, V]) Size() int {
	size := 0
	for _, stripe := range a.stripes {
		size += stripe.Size()
	}
	return size
}

// WritePrometheus writes the metrics of all stripes.
func (a *Aggregate[K, V]) WritePrometheus(w io.Writer) {
	for _, stripe := range a.stripes {
		stripe.WritePrometheus(w)
	}
}

func (a *Aggregate[K, V]) stripeFor(key K) *Local[K, V] {
	if len(a.stripes) == 1 {
		return a.stripes[0]
	}
	return a.stripes[a.hasher.Slot(key, len(a.stripes))]
}
