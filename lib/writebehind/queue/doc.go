// Package queue implements the pending-operations queue behind the
// write-behind decorator (writebehind.IQueue).
//
// Two implementations are provided:
//
//   - Local: a single stripe. Operations are pushed into a lock-free MPSC
//     intake (util.LockFreeMPSC) and tracked in a concurrent map holding the
//     latest operation per key (xsync.MapOf). A single flush goroutine turns
//     the intake into batches, runs the operations filter and applies runs of
//     writes and deletes to the backend with WriteAll and DeleteAll.
//
//   - Aggregate: N Local stripes with keys assigned by hash. Stripes flush
//     independently, one key always lives on the same stripe.
//
// Ordering:
//
//	The push into the intake happens inside the per-key compute of the
//	pending map, so for one key the intake order equals the enqueue order.
//	Batches are applied in intake order and a key leaves the pending map
//	only when its newest operation was applied. Reads through the
//	decorator therefore never go back to an older value.
//
// Coalescing:
//
//	Coalescing is fixed when the queue is created (Options.Coalesce).
//	CoalesceKeysFilter keeps the last operation per key within a batch, and
//	operations superseded by a newer enqueued operation are dropped before
//	they reach the backend.
//
// Failures:
//
//	A failed backend call is retried up to RetryAttempts times. If the
//	backend returns a loaderwriter.BulkError only the failed keys are
//	retried. Operations that still fail are passed to Options.OnError,
//	logged and counted. Their keys leave the pending map, reads fall back
//	to the backend again.
//
// Metrics:
//
//	Every stripe exports counters, a pending gauge and histograms through a
//	private VictoriaMetrics set, see WritePrometheus.
package queue
