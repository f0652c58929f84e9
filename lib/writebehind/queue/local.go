package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/wbKV/lib/loaderwriter"
	"github.com/ValentinKolb/wbKV/lib/util"
	"github.com/ValentinKolb/wbKV/lib/writebehind"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/time/rate"
)

var Logger = logger.GetLogger("queue")

// lifecycle states of a queue
const (
	stateCreated int32 = iota
	stateRunning
	stateStopped
)

// Local is a single write-behind queue stripe.
//
// Enqueued operations go two ways: the latest operation per key is kept in
// the pending map (this is what Load answers from), and every operation is
// pushed into a lock-free intake the flush goroutine consumes. The push
// happens inside the map's per-key compute, so the intake order of one key
// equals the order its operations were enqueued in.
//
// The flush goroutine collects batches of up to BatchSize operations or
// whatever arrived within MaxWriteDelay, filters them, and applies runs of
// writes with WriteAll and runs of deletes with DeleteAll. Once an operation
// was applied, its key leaves the pending map unless a newer operation on
// the key was enqueued meanwhile.
//
// Thread-safety: all exported methods are safe for concurrent use.
type Local[K comparable, V any] struct {
	opts    Options[K, V]
	backend loaderwriter.ILoaderWriter[K, V]
	filter  IOperationsFilter[K, V]
	limiter *rate.Limiter
	burst   int

	pending *xsync.MapOf[K, *Operation[K, V]]
	intake  *util.LockFreeMPSC[Operation[K, V]]
	seq     atomic.Uint64
	size    atomic.Int64

	// lifecycle guards state against enqueues: enqueues hold the read lock,
	// Stop takes the write lock, so no push can race with closing the intake
	lifecycle sync.RWMutex
	state     int32
	stopped   chan struct{}

	metrics *queueMetrics
}

// compile time check
var _ writebehind.IQueue[string, []byte] = (*Local[string, []byte])(nil)

// NewLocal creates a queue stripe writing to backend. The queue accepts
// operations only after Start.
func NewLocal[K comparable, V any](backend loaderwriter.ILoaderWriter[K, V], opts Options[K, V]) (*Local[K, V], error) {
	if backend == nil {
		return nil, loaderwriter.NewError(loaderwriter.RetCInvalidOperation, "backend must not be nil")
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	if opts.CloneValue == nil {
		opts.CloneValue = cloneFor[V]()
	}

	q := &Local[K, V]{
		opts:    opts,
		backend: backend,
		filter:  filterFor[K, V](opts.Coalesce),
		pending: xsync.NewMapOf[K, *Operation[K, V]](),
		stopped: make(chan struct{}),
	}

	if opts.RateLimitPerSecond > 0 {
		q.burst = max(opts.BatchSize, int(opts.RateLimitPerSecond))
		q.limiter = rate.NewLimiter(rate.Limit(opts.RateLimitPerSecond), q.burst)
	}

	q.metrics = newQueueMetrics(opts.Name, opts.Stripe, func() float64 {
		return float64(q.size.Load())
	})

	return q, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see writebehind.IQueue)
// --------------------------------------------------------------------------

func (q *Local[K, V]) Start() error {
	q.lifecycle.Lock()
	defer q.lifecycle.Unlock()

	if q.state != stateCreated {
		return loaderwriter.NewError(loaderwriter.RetCInvalidOperation,
			fmt.Sprintf("queue %s already started", q.label()))
	}
	q.intake = util.NewLockFreeMPSC[Operation[K, V]]()
	q.state = stateRunning

	go q.run()

	Logger.Debugf("queue %s started", q.label())
	return nil
}

func (q *Local[K, V]) Load(key K) writebehind.Lookup[V] {
	op, ok := q.pending.Load(key)
	if !ok {
		return writebehind.Unknown[V]()
	}
	if op.Kind == OpDelete {
		return writebehind.Tombstone[V]()
	}
	return writebehind.Pending(q.clone(op.Value))
}

func (q *Local[K, V]) Write(key K, value V) error {
	return q.enqueue(newWrite(key, q.clone(value)))
}

func (q *Local[K, V]) Delete(key K) error {
	return q.enqueue(newDelete[K, V](key))
}

func (q *Local[K, V]) Flush(ctx context.Context) error {
	q.lifecycle.RLock()
	switch q.state {
	case stateCreated:
		q.lifecycle.RUnlock()
		return nil
	case stateStopped:
		q.lifecycle.RUnlock()
		return q.waitStopped(ctx)
	}
	barrier := newBarrier[K, V]()
	q.intake.Push(barrier)
	q.lifecycle.RUnlock()

	select {
	case <-barrier.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Local[K, V]) Stop(ctx context.Context) error {
	q.lifecycle.Lock()
	switch q.state {
	case stateCreated:
		q.state = stateStopped
		close(q.stopped)
		q.lifecycle.Unlock()
		return nil
	case stateRunning:
		q.state = stateStopped
		q.intake.Close()
	}
	q.lifecycle.Unlock()

	return q.waitStopped(ctx)
}

func (q *Local[K, V]) Size() int {
	return int(q.size.Load())
}

// WritePrometheus writes the metrics of the stripe in prometheus text format.
func (q *Local[K, V]) WritePrometheus(w io.Writer) {
	q.metrics.writePrometheus(w)
}

// --------------------------------------------------------------------------
// Enqueue
// --------------------------------------------------------------------------

func (q *Local[K, V]) enqueue(op *Operation[K, V]) error {
	q.lifecycle.RLock()
	defer q.lifecycle.RUnlock()

	if q.state != stateRunning {
		q.metrics.rejected.Inc()
		return loaderwriter.ErrQueueClosed
	}

	if limit := int64(q.opts.MaxQueueSize); limit > 0 {
		if q.size.Add(1) > limit {
			q.size.Add(-1)
			q.metrics.rejected.Inc()
			return loaderwriter.ErrQueueFull
		}
	} else {
		q.size.Add(1)
	}

	q.pending.Compute(op.Key, func(_ *Operation[K, V], _ bool) (*Operation[K, V], bool) {
		op.Seq = q.seq.Add(1)
		q.intake.Push(op)
		return op, false
	})

	q.metrics.enqueued.Inc()
	return nil
}

// --------------------------------------------------------------------------
// Flush goroutine
// --------------------------------------------------------------------------

// run collects batches from the intake until it is closed and drained.
// Without a MaxWriteDelay a batch holds what can be received right away and
// is flushed as soon as the intake has nothing more to hand over.
func (q *Local[K, V]) run() {
	defer close(q.stopped)

	batch := make([]*Operation[K, V], 0, q.opts.BatchSize)
	var timer *time.Timer
	var deadline <-chan time.Time

	flush := func() {
		if timer != nil {
			timer.Stop()
		}
		deadline = nil
		q.process(batch)
		clear(batch)
		batch = batch[:0]
	}

	// handle takes one received item, it returns false once the intake is drained
	handle := func(op *Operation[K, V], ok bool) bool {
		if !ok {
			flush()
			Logger.Debugf("queue %s drained", q.label())
			return false
		}

		if op.Kind == opBarrier {
			flush()
			close(op.done)
			return true
		}

		batch = append(batch, op)
		if len(batch) >= q.opts.BatchSize {
			flush()
			return true
		}

		if len(batch) == 1 && q.opts.MaxWriteDelay > 0 {
			if timer == nil {
				timer = time.NewTimer(q.opts.MaxWriteDelay)
			} else {
				timer.Reset(q.opts.MaxWriteDelay)
			}
			deadline = timer.C
		}
		return true
	}

	for {
		select {
		case op, ok := <-q.intake.Recv():
			if !handle(op, ok) {
				return
			}
		case <-deadline:
			flush()
		}

		if q.opts.MaxWriteDelay > 0 {
			continue
		}
		for len(batch) > 0 {
			select {
			case op, ok := <-q.intake.Recv():
				if !handle(op, ok) {
					return
				}
			default:
				flush()
			}
		}
	}
}

// process applies a batch to the backend and releases its operations
func (q *Local[K, V]) process(batch []*Operation[K, V]) {
	if len(batch) == 0 {
		return
	}
	start := time.Now()

	ops := q.filter.Filter(batch)
	if q.opts.Coalesce {
		ops = q.dropSuperseded(ops)
	}
	if dropped := len(batch) - len(ops); dropped > 0 {
		q.metrics.coalesced.Add(dropped)
	}

	// apply runs of the same kind with one bulk call each
	for i := 0; i < len(ops); {
		j := i + 1
		for j < len(ops) && ops[j].Kind == ops[i].Kind {
			j++
		}
		q.applyRun(ops[i:j])
		i = j
	}

	for _, op := range batch {
		q.release(op)
	}
	q.metrics.observeFlush(len(ops), start)
}

// dropSuperseded removes operations whose key already has a newer pending operation
func (q *Local[K, V]) dropSuperseded(ops []*Operation[K, V]) []*Operation[K, V] {
	out := ops[:0:0]
	for _, op := range ops {
		if cur, ok := q.pending.Load(op.Key); ok && cur.Seq > op.Seq {
			continue
		}
		out = append(out, op)
	}
	return out
}

// applyRun applies operations of one kind, retrying failed keys
func (q *Local[K, V]) applyRun(run []*Operation[K, V]) {
	for attempt := 0; ; attempt++ {
		q.throttle(len(run))

		err := q.call(run)
		if err == nil {
			q.metrics.applied.Add(len(run))
			return
		}

		failed := run
		var bulkErr *loaderwriter.BulkError[K]
		if errors.As(err, &bulkErr) {
			failed = failed[:0:0]
			for _, op := range run {
				if _, ok := bulkErr.Failures[op.Key]; ok {
					failed = append(failed, op)
				}
			}
			q.metrics.applied.Add(len(run) - len(failed))
		}
		if len(failed) == 0 {
			return
		}

		if attempt >= q.opts.RetryAttempts {
			for _, op := range failed {
				q.fail(op, errorFor(op, err, bulkErr))
			}
			return
		}

		q.metrics.retried.Add(len(failed))
		Logger.Warningf("queue %s: %d %s operation(s) failed (attempt %d/%d): %v",
			q.label(), len(failed), failed[0].Kind, attempt+1, q.opts.RetryAttempts+1, err)

		run = failed
		if q.opts.RetryDelay > 0 {
			time.Sleep(q.opts.RetryDelay)
		}
	}
}

// call issues the backend call for a run of operations of one kind
func (q *Local[K, V]) call(run []*Operation[K, V]) error {
	if run[0].Kind == OpDelete {
		if len(run) == 1 {
			return q.backend.Delete(run[0].Key)
		}
		keys := make([]K, len(run))
		for i, op := range run {
			keys[i] = op.Key
		}
		return q.backend.DeleteAll(keys)
	}

	if len(run) == 1 {
		return q.backend.Write(run[0].Key, run[0].Value)
	}
	entries := make([]loaderwriter.Entry[K, V], len(run))
	for i, op := range run {
		entries[i] = loaderwriter.Entry[K, V]{Key: op.Key, Value: op.Value}
	}
	return q.backend.WriteAll(entries)
}

// throttle waits until the rate limiter admits n operations
func (q *Local[K, V]) throttle(n int) {
	if q.limiter == nil {
		return
	}
	for n > 0 {
		chunk := min(n, q.burst)
		// cannot fail: background context and chunk <= burst
		_ = q.limiter.WaitN(context.Background(), chunk)
		n -= chunk
	}
}

// fail reports an operation that was given up on
func (q *Local[K, V]) fail(op *Operation[K, V], err error) {
	q.metrics.failed.Inc()
	Logger.Errorf("queue %s: giving up on %s: %v", q.label(), op, err)
	if q.opts.OnError != nil {
		q.opts.OnError(*op, err)
	}
}

// release removes the key from the pending map if op is still its latest operation
func (q *Local[K, V]) release(op *Operation[K, V]) {
	q.pending.Compute(op.Key, func(cur *Operation[K, V], loaded bool) (*Operation[K, V], bool) {
		return cur, !loaded || cur.Seq == op.Seq
	})
	q.size.Add(-1)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func (q *Local[K, V]) waitStopped(ctx context.Context) error {
	select {
	case <-q.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Local[K, V]) clone(v V) V {
	if q.opts.CloneValue == nil {
		return v
	}
	return q.opts.CloneValue(v)
}

func (q *Local[K, V]) label() string {
	return fmt.Sprintf("%s/%d", q.opts.Name, q.opts.Stripe)
}

// errorFor picks the per-key error out of a bulk error if there is one
func errorFor[K comparable, V any](op *Operation[K, V], err error, bulkErr *loaderwriter.BulkError[K]) error {
	if bulkErr != nil {
		if keyErr, ok := bulkErr.Failures[op.Key]; ok && keyErr != nil {
			return keyErr
		}
	}
	return err
}
