package queue

import (
	"bytes"
	"time"

	"github.com/ValentinKolb/wbKV/lib/writebehind"
)

// ErrorHandler receives operations that could not be applied to the backend
// after all retries. It runs on the flush goroutine and must not block.
type ErrorHandler[K comparable, V any] func(op Operation[K, V], err error)

// Options configures a single queue stripe.
type Options[K comparable, V any] struct {
	// Name and Stripe label logs and metrics.
	Name   string
	Stripe int

	// Coalesce drops operations that were superseded by a newer operation on
	// the same key before they reach the backend.
	Coalesce bool

	BatchSize          int
	MaxWriteDelay      time.Duration
	MaxQueueSize       int
	RetryAttempts      int
	RetryDelay         time.Duration
	RateLimitPerSecond float64

	// OnError is called for permanently failed operations. May be nil.
	OnError ErrorHandler[K, V]

	// CloneValue copies a value when it enters the queue and when Load hands
	// a pending value out, so callers may reuse their buffers. Left nil,
	// NewLocal picks a copy for []byte values; other values are kept as is.
	CloneValue func(V) V
}

// cloneFor returns a copy function for []byte values and nil for any other
// value type.
func cloneFor[V any]() func(V) V {
	var zero V
	if _, ok := any(zero).([]byte); !ok {
		return nil
	}
	return func(v V) V {
		return any(bytes.Clone(any(v).([]byte))).(V)
	}
}

// OptionsFromConfig derives the stripe options from a decorator config.
func OptionsFromConfig[K comparable, V any](config writebehind.Config, onError ErrorHandler[K, V]) Options[K, V] {
	return Options[K, V]{
		Name:               config.Name,
		Coalesce:           config.WriteCoalescing,
		BatchSize:          config.BatchSize,
		MaxWriteDelay:      config.MaxWriteDelay,
		MaxQueueSize:       config.MaxQueueSize,
		RetryAttempts:      config.RetryAttempts,
		RetryDelay:         config.RetryDelay,
		RateLimitPerSecond: config.RateLimitPerSecond,
		OnError:            onError,
	}
}
