/*
Package writebehind provides a write-behind decorator for any
loaderwriter.ILoaderWriter.

The decorator implements the same contract as the backend it wraps, but
Write, WriteAll, Delete and DeleteAll only enqueue operations into a queue
(IQueue) and return. The queue applies them to the backend later. Reads
are routed through the queue first:

	Load(key)
	  queue knows a pending write   -> return the pending value
	  queue knows a pending delete  -> return "not found"
	  queue does not know the key   -> backend.Load(key)

	LoadAll(keys)
	  keys resolved by the queue are answered from it, all other keys are
	  loaded from the backend with a single LoadAll call

A read therefore always reflects the latest enqueued write or delete of a key
until that operation was applied to the backend.

Construction:

	d, err := writebehind.NewDecorator(backend, config, queue.NewFactory[string, []byte](nil))

The queue is created from the complete config, coalescing included, and
started before NewDecorator returns. There is no way to change the filter
of a running queue.

Failure semantics:

  - Load and LoadAll return backend errors unchanged.
  - Write and Delete return the enqueue error of the queue unchanged
    (loaderwriter.ErrQueueFull, loaderwriter.ErrQueueClosed).
  - WriteAll and DeleteAll enqueue entry by entry and stop at the first
    failing entry. Entries before it stay enqueued.
  - Errors of the asynchronous flush are not visible here. The queue
    reports them through its error handler, logs and metrics.

Thread-safety:

	The decorator itself holds no mutable state. It is safe for concurrent use
	as long as backend and queue are, which holds for every implementation in
	this module.
*/
package writebehind
