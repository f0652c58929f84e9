package queue

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/wbKV/lib/backend/memstore"
	"github.com/ValentinKolb/wbKV/lib/loaderwriter"
	"github.com/ValentinKolb/wbKV/lib/writebehind"
	"github.com/google/go-cmp/cmp"
)

// --------------------------------------------------------------------------
// Test backend
// --------------------------------------------------------------------------

var errInjected = errors.New("injected failure")

// recordingBackend records every value that reaches it, per key and in order.
// Failures can be injected per key, and calls can be held at a gate.
type recordingBackend struct {
	mu        sync.Mutex
	data      map[string]int
	history   map[string][]int
	calls     int
	failTimes map[string]int  // key fails this many more times
	failAll   map[string]bool // key always fails

	gate    chan struct{} // if set, every call waits for a receive on gate
	entered chan struct{} // if set, signaled when a call reaches the gate
}

func newRecordingBackend() *recordingBackend {
	return &recordingBackend{
		data:      make(map[string]int),
		history:   make(map[string][]int),
		failTimes: make(map[string]int),
		failAll:   make(map[string]bool),
	}
}

func (b *recordingBackend) wait() {
	if b.entered != nil {
		b.entered <- struct{}{}
	}
	if b.gate != nil {
		<-b.gate
	}
}

// shouldFail must be called with mu held
func (b *recordingBackend) shouldFail(key string) bool {
	if b.failAll[key] {
		return true
	}
	if b.failTimes[key] > 0 {
		b.failTimes[key]--
		return true
	}
	return false
}

func (b *recordingBackend) Load(key string) (int, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	return v, ok, nil
}

func (b *recordingBackend) LoadAll(keys []string) (map[string]int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]int)
	for _, k := range keys {
		if v, ok := b.data[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (b *recordingBackend) Write(key string, value int) error {
	return b.WriteAll([]loaderwriter.Entry[string, int]{{Key: key, Value: value}})
}

func (b *recordingBackend) WriteAll(entries []loaderwriter.Entry[string, int]) error {
	b.wait()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	bulkErr := loaderwriter.NewBulkError[string]()
	for _, e := range entries {
		if b.shouldFail(e.Key) {
			bulkErr.Add(e.Key, errInjected)
			continue
		}
		b.data[e.Key] = e.Value
		b.history[e.Key] = append(b.history[e.Key], e.Value)
	}
	return bulkErr.ErrorOrNil()
}

func (b *recordingBackend) Delete(key string) error {
	return b.DeleteAll([]string{key})
}

func (b *recordingBackend) DeleteAll(keys []string) error {
	b.wait()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	bulkErr := loaderwriter.NewBulkError[string]()
	for _, k := range keys {
		if b.shouldFail(k) {
			bulkErr.Add(k, errInjected)
			continue
		}
		delete(b.data, k)
		b.history[k] = append(b.history[k], -1)
	}
	return bulkErr.ErrorOrNil()
}

func (b *recordingBackend) historyOf(key string) []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int(nil), b.history[key]...)
}

func (b *recordingBackend) value(key string) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	return v, ok
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func testOptions() Options[string, int] {
	return Options[string, int]{
		Name:          "test",
		BatchSize:     16,
		MaxWriteDelay: 5 * time.Millisecond,
		RetryAttempts: 0,
	}
}

func startLocal(t *testing.T, backend *recordingBackend, opts Options[string, int]) *Local[string, int] {
	t.Helper()
	q, err := NewLocal[string, int](backend, opts)
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}
	if err := q.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = q.Stop(ctx)
	})
	return q
}

func flush(t *testing.T, q writebehind.IQueue[string, int]) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
}

func waitEntered(t *testing.T, entered chan struct{}) {
	t.Helper()
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("Timeout waiting for the backend call")
	}
}

// --------------------------------------------------------------------------
// Filters
// --------------------------------------------------------------------------

func TestCoalesceKeysFilter(t *testing.T) {
	ops := []*Operation[string, int]{
		{Kind: OpWrite, Key: "a", Value: 1, Seq: 1},
		{Kind: OpWrite, Key: "b", Value: 2, Seq: 2},
		{Kind: OpWrite, Key: "a", Value: 3, Seq: 3},
		{Kind: OpDelete, Key: "b", Seq: 4},
		{Kind: OpWrite, Key: "c", Value: 5, Seq: 5},
	}

	got := CoalesceKeysFilter[string, int]{}.Filter(ops)

	var seqs []uint64
	for _, op := range got {
		seqs = append(seqs, op.Seq)
	}
	if diff := cmp.Diff([]uint64{3, 4, 5}, seqs); diff != "" {
		t.Errorf("coalesced sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestNoopFilter(t *testing.T) {
	ops := []*Operation[string, int]{
		{Kind: OpWrite, Key: "a", Value: 1, Seq: 1},
		{Kind: OpWrite, Key: "a", Value: 2, Seq: 2},
	}
	if got := (NoopFilter[string, int]{}).Filter(ops); len(got) != 2 {
		t.Errorf("noop filter must keep all operations, got %d", len(got))
	}
}

// --------------------------------------------------------------------------
// Local queue
// --------------------------------------------------------------------------

func TestLocalLoadStates(t *testing.T) {
	backend := newRecordingBackend()
	opts := testOptions()
	opts.MaxWriteDelay = time.Hour
	q := startLocal(t, backend, opts)

	if l := q.Load("a"); l.State != writebehind.LookupUnknown {
		t.Fatalf("expected unknown before any write, got %s", l.State)
	}

	_ = q.Write("a", 1)
	_ = q.Write("z", 0)
	_ = q.Delete("b")

	if l := q.Load("a"); l.State != writebehind.LookupValue || l.Value != 1 {
		t.Errorf("expected pending value 1, got %+v", l)
	}
	if l := q.Load("z"); l.State != writebehind.LookupValue || l.Value != 0 {
		t.Errorf("expected pending zero value, got %+v", l)
	}
	if l := q.Load("b"); l.State != writebehind.LookupTombstone {
		t.Errorf("expected tombstone, got %s", l.State)
	}
	if q.Size() != 3 {
		t.Errorf("expected 3 pending operations, got %d", q.Size())
	}

	flush(t, q)

	for _, key := range []string{"a", "z", "b"} {
		if l := q.Load(key); l.State != writebehind.LookupUnknown {
			t.Errorf("expected %s to be unknown after flush, got %s", key, l.State)
		}
	}
	if v, ok := backend.value("a"); !ok || v != 1 {
		t.Errorf("backend: expected a=1, got (%d, %v)", v, ok)
	}
	if q.Size() != 0 {
		t.Errorf("expected no pending operations after flush, got %d", q.Size())
	}
}

func TestLocalFlushesAfterMaxWriteDelay(t *testing.T) {
	backend := newRecordingBackend()
	opts := testOptions()
	opts.BatchSize = 1000
	opts.MaxWriteDelay = 10 * time.Millisecond
	q := startLocal(t, backend, opts)

	_ = q.Write("a", 1)

	deadline := time.After(5 * time.Second)
	for {
		if _, ok := backend.value("a"); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("write did not reach the backend after the max write delay")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestLocalZeroDelayFlushesWithoutFullBatch(t *testing.T) {
	backend := newRecordingBackend()
	backend.gate = make(chan struct{})
	backend.entered = make(chan struct{}, 16)

	opts := testOptions()
	opts.BatchSize = 8
	opts.MaxWriteDelay = 0
	q := startLocal(t, backend, opts)

	_ = q.Write("a", 1)
	waitEntered(t, backend.entered)

	// a is held in the backend, b arrives while the flush goroutine is busy
	_ = q.Write("b", 2)
	close(backend.gate)

	deadline := time.After(5 * time.Second)
	for q.Size() != 0 {
		select {
		case <-deadline:
			t.Fatalf("queue never drained, %d operations left", q.Size())
		case <-time.After(time.Millisecond):
		}
	}
	for key, want := range map[string]int{"a": 1, "b": 2} {
		if v, ok := backend.value(key); !ok || v != want {
			t.Errorf("%s: expected %d in the backend, got %d (found=%t)", key, want, v, ok)
		}
	}

	// a single write on an idle queue must not wait for more work either
	_ = q.Write("c", 3)
	deadline = time.After(5 * time.Second)
	for {
		if _, ok := backend.value("c"); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("write on an idle queue did not reach the backend")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestLocalPreservesPerKeyOrder(t *testing.T) {
	backend := newRecordingBackend()
	opts := testOptions()
	opts.BatchSize = 7
	q := startLocal(t, backend, opts)

	want := make([]int, 100)
	for i := range want {
		want[i] = i + 1
		if err := q.Write("k", i+1); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	flush(t, q)

	if diff := cmp.Diff(want, backend.historyOf("k")); diff != "" {
		t.Errorf("backend saw writes out of order (-want +got):\n%s", diff)
	}
}

func TestLocalConcurrentWritersKeepOrder(t *testing.T) {
	backend := newRecordingBackend()
	q := startLocal(t, backend, testOptions())

	const writers = 8
	const writes = 200

	var wg sync.WaitGroup
	wg.Add(writers)
	for w := 0; w < writers; w++ {
		go func(key string) {
			defer wg.Done()
			for i := 1; i <= writes; i++ {
				if err := q.Write(key, i); err != nil {
					t.Errorf("Write failed: %v", err)
					return
				}
			}
		}(fmt.Sprintf("writer-%d", w))
	}
	wg.Wait()
	flush(t, q)

	for w := 0; w < writers; w++ {
		history := backend.historyOf(fmt.Sprintf("writer-%d", w))
		if len(history) != writes {
			t.Fatalf("writer %d: expected %d writes, got %d", w, writes, len(history))
		}
		for i, v := range history {
			if v != i+1 {
				t.Fatalf("writer %d: position %d holds %d", w, i, v)
			}
		}
	}
}

func TestLocalCoalescingAppliesOnlyLastValue(t *testing.T) {
	backend := newRecordingBackend()
	opts := testOptions()
	opts.Coalesce = true
	opts.BatchSize = 10
	opts.MaxWriteDelay = time.Hour
	q := startLocal(t, backend, opts)

	for i := 1; i <= 50; i++ {
		_ = q.Write("k", i)
	}
	_ = q.Write("other", 1)
	flush(t, q)

	if diff := cmp.Diff([]int{50}, backend.historyOf("k")); diff != "" {
		t.Errorf("coalescing must apply only the final value (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1}, backend.historyOf("other")); diff != "" {
		t.Errorf("unrelated key mismatch (-want +got):\n%s", diff)
	}
}

func TestLocalNewerWriteStaysPendingDuringFlush(t *testing.T) {
	backend := newRecordingBackend()
	backend.gate = make(chan struct{})
	backend.entered = make(chan struct{}, 1)

	opts := testOptions()
	opts.BatchSize = 1
	q := startLocal(t, backend, opts)

	_ = q.Write("k", 1)
	waitEntered(t, backend.entered)

	// the flush of k=1 is in progress, enqueue a newer value
	_ = q.Write("k", 2)
	backend.gate <- struct{}{}

	// k=1 is applied now, k=2 must still be visible as pending until its own flush
	waitEntered(t, backend.entered)
	if l := q.Load("k"); l.State != writebehind.LookupValue || l.Value != 2 {
		t.Errorf("expected pending value 2, got %+v", l)
	}
	backend.gate <- struct{}{}

	flush(t, q)
	if v, _ := backend.value("k"); v != 2 {
		t.Errorf("backend: expected k=2, got %d", v)
	}
	if l := q.Load("k"); l.State != writebehind.LookupUnknown {
		t.Errorf("expected k to be unknown after flush, got %s", l.State)
	}
}

func TestLocalRejectsWhenFull(t *testing.T) {
	backend := newRecordingBackend()
	backend.gate = make(chan struct{})
	backend.entered = make(chan struct{}, 1)

	opts := testOptions()
	opts.BatchSize = 1
	opts.MaxQueueSize = 2
	q := startLocal(t, backend, opts)

	if err := q.Write("a", 1); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	waitEntered(t, backend.entered)

	if err := q.Write("b", 2); err != nil {
		t.Fatalf("second write failed: %v", err)
	}
	if err := q.Write("c", 3); !errors.Is(err, loaderwriter.ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
	if l := q.Load("c"); l.State != writebehind.LookupUnknown {
		t.Errorf("rejected write must not be visible, got %s", l.State)
	}

	// release both pending flushes
	backend.gate <- struct{}{}
	waitEntered(t, backend.entered)
	backend.gate <- struct{}{}
	flush(t, q)

	if err := q.Write("c", 3); err != nil {
		t.Errorf("write after draining failed: %v", err)
	}
}

func TestLocalStop(t *testing.T) {
	backend := newRecordingBackend()
	opts := testOptions()
	opts.MaxWriteDelay = time.Hour
	q, err := NewLocal[string, int](backend, opts)
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}

	if err := q.Write("early", 1); !errors.Is(err, loaderwriter.ErrQueueClosed) {
		t.Errorf("write before Start must fail, got %v", err)
	}

	if err := q.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := q.Start(); err == nil {
		t.Error("second Start must fail")
	}

	for i := 0; i < 10; i++ {
		_ = q.Write(fmt.Sprintf("k%d", i), i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	for i := 0; i < 10; i++ {
		if v, ok := backend.value(fmt.Sprintf("k%d", i)); !ok || v != i {
			t.Errorf("k%d was not drained on Stop", i)
		}
	}

	if err := q.Write("late", 1); !errors.Is(err, loaderwriter.ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed, got %v", err)
	}
	if err := q.Delete("late"); !errors.Is(err, loaderwriter.ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed, got %v", err)
	}
	if err := q.Stop(ctx); err != nil {
		t.Errorf("second Stop must succeed, got %v", err)
	}
	if err := q.Flush(ctx); err != nil {
		t.Errorf("Flush after Stop must succeed, got %v", err)
	}
}

func TestLocalRetriesFailedSubset(t *testing.T) {
	backend := newRecordingBackend()
	backend.failTimes["b"] = 2

	opts := testOptions()
	opts.RetryAttempts = 3
	opts.RetryDelay = time.Millisecond
	opts.MaxWriteDelay = time.Hour
	q := startLocal(t, backend, opts)

	_ = q.Write("a", 1)
	_ = q.Write("b", 2)
	_ = q.Write("c", 3)
	flush(t, q)

	for key, want := range map[string][]int{"a": {1}, "b": {2}, "c": {3}} {
		if diff := cmp.Diff(want, backend.historyOf(key)); diff != "" {
			t.Errorf("%s: history mismatch (-want +got):\n%s", key, diff)
		}
	}
	if q.metrics.retried.Get() != 2 {
		t.Errorf("expected 2 retries, got %d", q.metrics.retried.Get())
	}
}

func TestLocalRetriesRepeatedKeyInOrder(t *testing.T) {
	backend := newRecordingBackend()
	backend.failTimes["a"] = 2 // both entries of a fail in the first bulk call

	opts := testOptions()
	opts.RetryAttempts = 1
	opts.RetryDelay = 0
	opts.MaxWriteDelay = time.Hour
	q := startLocal(t, backend, opts)

	_ = q.Write("a", 1)
	_ = q.Write("b", 2)
	_ = q.Write("a", 3)
	flush(t, q)

	if diff := cmp.Diff([]int{1, 3}, backend.historyOf("a")); diff != "" {
		t.Errorf("a: both entries must be retried in order (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{2}, backend.historyOf("b")); diff != "" {
		t.Errorf("b: history mismatch (-want +got):\n%s", diff)
	}
	if v, _ := backend.value("a"); v != 3 {
		t.Errorf("expected a=3 in the backend, got %d", v)
	}
	backend.mu.Lock()
	calls := backend.calls
	backend.mu.Unlock()
	if calls != 2 {
		t.Errorf("expected one bulk call and one retry, got %d calls", calls)
	}
	if q.metrics.failed.Get() != 0 {
		t.Errorf("expected no failures, got %d", q.metrics.failed.Get())
	}
}

func TestLocalReportsPermanentFailure(t *testing.T) {
	backend := newRecordingBackend()
	backend.failAll["bad"] = true

	var mu sync.Mutex
	var failed []Operation[string, int]
	var failErr error

	opts := testOptions()
	opts.RetryAttempts = 1
	opts.MaxWriteDelay = time.Hour
	opts.OnError = func(op Operation[string, int], err error) {
		mu.Lock()
		defer mu.Unlock()
		failed = append(failed, op)
		failErr = err
	}
	q := startLocal(t, backend, opts)

	_ = q.Write("good", 1)
	_ = q.Write("bad", 2)
	flush(t, q)

	mu.Lock()
	defer mu.Unlock()
	if len(failed) != 1 || failed[0].Key != "bad" || failed[0].Value != 2 {
		t.Fatalf("expected exactly the bad write to fail, got %v", failed)
	}
	if !errors.Is(failErr, errInjected) {
		t.Errorf("expected the per-key error, got %v", failErr)
	}
	if l := q.Load("bad"); l.State != writebehind.LookupUnknown {
		t.Errorf("failed key must leave the queue, got %s", l.State)
	}
	if v, ok := backend.value("good"); !ok || v != 1 {
		t.Error("good write must be applied")
	}
	if q.metrics.failed.Get() != 1 {
		t.Errorf("expected 1 failure, got %d", q.metrics.failed.Get())
	}
}

func TestLocalGroupsRunsIntoBulkCalls(t *testing.T) {
	backend := newRecordingBackend()
	opts := testOptions()
	opts.MaxWriteDelay = time.Hour
	q := startLocal(t, backend, opts)

	_ = q.Write("a", 1)
	_ = q.Write("b", 2)
	_ = q.Delete("a")
	_ = q.Delete("c")
	_ = q.Write("d", 4)
	flush(t, q)

	backend.mu.Lock()
	calls := backend.calls
	backend.mu.Unlock()
	if calls != 3 {
		t.Errorf("expected 3 backend calls (write run, delete run, write run), got %d", calls)
	}
	if _, ok := backend.value("a"); ok {
		t.Error("a must be deleted")
	}
}

func TestLocalRateLimit(t *testing.T) {
	backend := newRecordingBackend()
	opts := testOptions()
	opts.BatchSize = 1
	opts.RateLimitPerSecond = 1000
	q := startLocal(t, backend, opts)

	for i := 0; i < 20; i++ {
		_ = q.Write(fmt.Sprintf("k%d", i), i)
	}
	flush(t, q)

	for i := 0; i < 20; i++ {
		if _, ok := backend.value(fmt.Sprintf("k%d", i)); !ok {
			t.Errorf("k%d missing", i)
		}
	}
}

func TestLocalFlushHonorsContext(t *testing.T) {
	backend := newRecordingBackend()
	backend.gate = make(chan struct{})
	backend.entered = make(chan struct{}, 1)

	opts := testOptions()
	opts.BatchSize = 1
	q := startLocal(t, backend, opts)

	_ = q.Write("a", 1)
	waitEntered(t, backend.entered)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Flush(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}

	backend.gate <- struct{}{}
}

func TestLocalMetrics(t *testing.T) {
	q := startLocal(t, newRecordingBackend(), testOptions())
	_ = q.Write("a", 1)
	flush(t, q)

	var buf bytes.Buffer
	q.WritePrometheus(&buf)
	out := buf.String()
	for _, want := range []string{
		`wbkv_queue_enqueued_total{queue="test",stripe="0"} 1`,
		`wbkv_queue_applied_total{queue="test",stripe="0"} 1`,
		`wbkv_queue_pending{queue="test",stripe="0"} 0`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output is missing %q:\n%s", want, out)
		}
	}
}

func TestLocalCopiesByteValues(t *testing.T) {
	opts := Options[string, []byte]{Name: "bytes", BatchSize: 16, MaxWriteDelay: time.Hour}
	q, err := NewLocal[string, []byte](memstore.NewBytes(1), opts)
	if err != nil {
		t.Fatal(err)
	}
	if err := q.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = q.Stop(ctx)
	})

	buf := []byte("first")
	_ = q.Write("k", buf)
	copy(buf, "XXXXX")

	l := q.Load("k")
	if l.State != writebehind.LookupValue || string(l.Value) != "first" {
		t.Fatalf("pending value changed with the caller's buffer: %+v", l)
	}
	copy(l.Value, "YYYYY")
	if l := q.Load("k"); string(l.Value) != "first" {
		t.Errorf("pending value changed through a loaded value: %q", l.Value)
	}

	_ = q.Write("nil", nil)
	if l := q.Load("nil"); l.State != writebehind.LookupValue || l.Value != nil {
		t.Errorf("expected a pending nil value, got %+v", l)
	}
}

func TestCloneValueDefaults(t *testing.T) {
	if cloneFor[int]() != nil {
		t.Error("int values must not get a copy function")
	}
	if cloneFor[[]byte]() == nil {
		t.Error("byte slice values must get a copy function")
	}

	calls := 0
	opts := testOptions()
	opts.MaxWriteDelay = time.Hour
	opts.CloneValue = func(v int) int {
		calls++
		return v
	}
	q := startLocal(t, newRecordingBackend(), opts)
	_ = q.Write("k", 1)
	_ = q.Load("k")
	if calls != 2 {
		t.Errorf("expected the custom copy on write and load, got %d calls", calls)
	}
}

// --------------------------------------------------------------------------
// Aggregate queue
// --------------------------------------------------------------------------

func TestAggregateRoutesKeysToStripes(t *testing.T) {
	backend := newRecordingBackend()
	q, err := NewAggregate[string, int](backend, testOptions(), 4)
	if err != nil {
		t.Fatalf("NewAggregate failed: %v", err)
	}
	if err := q.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() { _ = q.Stop(context.Background()) }()

	for round := 1; round <= 5; round++ {
		for i := 0; i < 50; i++ {
			if err := q.Write(fmt.Sprintf("k%d", i), round); err != nil {
				t.Fatalf("Write failed: %v", err)
			}
		}
	}
	if l := q.Load("k7"); l.State == writebehind.LookupTombstone {
		t.Errorf("unexpected tombstone")
	}

	flush(t, q)

	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("k%d", i)
		if diff := cmp.Diff([]int{1, 2, 3, 4, 5}, backend.historyOf(key)); diff != "" {
			t.Errorf("%s: history mismatch (-want +got):\n%s", key, diff)
		}
	}
	if q.Size() != 0 {
		t.Errorf("expected empty queue, got %d", q.Size())
	}

	var buf bytes.Buffer
	q.WritePrometheus(&buf)
	if !strings.Contains(buf.String(), `stripe="3"`) {
		t.Error("metrics of every stripe must be written")
	}
}

func TestAggregateRejectsInvalidConcurrency(t *testing.T) {
	if _, err := NewAggregate[string, int](newRecordingBackend(), testOptions(), 0); err == nil {
		t.Error("expected error for zero concurrency")
	}
}

func TestAggregateStopRejectsWrites(t *testing.T) {
	backend := newRecordingBackend()
	q, _ := NewAggregate[string, int](backend, testOptions(), 3)
	_ = q.Start()
	_ = q.Write("a", 1)

	if err := q.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if v, ok := backend.value("a"); !ok || v != 1 {
		t.Error("Stop must drain all stripes")
	}
	if err := q.Write("b", 1); !errors.Is(err, loaderwriter.ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed, got %v", err)
	}
}

// --------------------------------------------------------------------------
// Factory
// --------------------------------------------------------------------------

func TestFactoryPicksImplementation(t *testing.T) {
	factory := NewFactory[string, int](nil)

	config := writebehind.DefaultConfig()
	single, err := factory(newRecordingBackend(), config)
	if err != nil {
		t.Fatalf("factory failed: %v", err)
	}
	if _, ok := single.(*Local[string, int]); !ok {
		t.Errorf("expected *Local for concurrency 1, got %T", single)
	}

	config.Concurrency = 4
	config.WriteCoalescing = true
	striped, err := factory(newRecordingBackend(), config)
	if err != nil {
		t.Fatalf("factory failed: %v", err)
	}
	agg, ok := striped.(*Aggregate[string, int])
	if !ok {
		t.Fatalf("expected *Aggregate for concurrency 4, got %T", striped)
	}
	if len(agg.stripes) != 4 || !agg.stripes[0].opts.Coalesce {
		t.Error("aggregate must carry the configured stripes and coalescing")
	}
	if _, ok := agg.stripes[0].filter.(CoalesceKeysFilter[string, int]); !ok {
		t.Errorf("expected coalescing filter, got %T", agg.stripes[0].filter)
	}
}
