package queue

import (
	"github.com/ValentinKolb/wbKV/lib/loaderwriter"
	"github.com/ValentinKolb/wbKV/lib/writebehind"
)

// NewFactory returns the queue factory for writebehind.NewDecorator.
// A config with Concurrency 1 gets a single Local stripe, higher values an
// Aggregate. onError may be nil, failures are logged and counted either way.
func NewFactory[K comparable, V any](onError ErrorHandler[K, V]) writebehind.QueueFactory[K, V] {
	return func(backend loaderwriter.ILoaderWriter[K, V], config writebehind.Config) (writebehind.IQueue[K, V], error) {
		opts := OptionsFromConfig(config, onError)
		if config.Concurrency <= 1 {
			q, err := NewLocal(backend, opts)
			if err != nil {
				return nil, err
			}
			return q, nil
		}
		q, err := NewAggregate(backend, opts, config.Concurrency)
		if err != nil {
			return nil, err
		}
		return q, nil
	}
}

// NewDecorator is a shorthand for writebehind.NewDecorator with the queue of this package.
func NewDecorator[K comparable, V any](
	backend loaderwriter.ILoaderWriter[K, V],
	config writebehind.Config,
	onError ErrorHandler[K, V],
) (*writebehind.Decorator[K, V], error) {
	return writebehind.NewDecorator(backend, config, NewFactory(onError))
}
