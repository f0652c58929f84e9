package writebehind_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/wbKV/lib/backend/memstore"
	"github.com/ValentinKolb/wbKV/lib/loaderwriter"
	lwtesting "github.com/ValentinKolb/wbKV/lib/loaderwriter/testing"
	"github.com/ValentinKolb/wbKV/lib/writebehind"
	"github.com/ValentinKolb/wbKV/lib/writebehind/queue"
	"github.com/google/go-cmp/cmp"
)

// countingStore counts how many values reach a memstore per key
type countingStore struct {
	*memstore.Store[string, []byte]
	mu     sync.Mutex
	writes map[string]int
}

func newCountingStore() *countingStore {
	return &countingStore{Store: memstore.NewBytes(4), writes: map[string]int{}}
}

func (s *countingStore) Write(key string, value []byte) error {
	s.mu.Lock()
	s.writes[key]++
	s.mu.Unlock()
	return s.Store.Write(key, value)
}

func (s *countingStore) WriteAll(entries []loaderwriter.Entry[string, []byte]) error {
	s.mu.Lock()
	for _, e := range entries {
		s.writes[e.Key]++
	}
	s.mu.Unlock()
	return s.Store.WriteAll(entries)
}

func (s *countingStore) count(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[key]
}

func newDecorator(t testing.TB, backend loaderwriter.ILoaderWriter[string, []byte], config writebehind.Config) *writebehind.Decorator[string, []byte] {
	t.Helper()
	d, err := queue.NewDecorator(backend, config, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = d.Close(context.Background()) })
	return d
}

func Test(t *testing.T) {
	configs := map[string]func(*writebehind.Config){
		"local":          func(c *writebehind.Config) {},
		"local-coalesce": func(c *writebehind.Config) { c.WriteCoalescing = true },
		"aggregate":      func(c *writebehind.Config) { c.Concurrency = 4 },
		"no-delay":       func(c *writebehind.Config) { c.MaxWriteDelay = 0; c.BatchSize = 1 },
		"no-delay-batch": func(c *writebehind.Config) { c.MaxWriteDelay = 0; c.BatchSize = 64 },
	}
	for name, modify := range configs {
		lwtesting.RunLoaderWriterTests(t, name, func(t testing.TB) (lwtesting.LoaderWriter, func()) {
			config := writebehind.DefaultConfig()
			config.Name = name
			config.MaxWriteDelay = time.Millisecond
			modify(&config)
			d, err := queue.NewDecorator[string, []byte](memstore.NewBytes(4), config, nil)
			if err != nil {
				t.Fatal(err)
			}
			return d, func() { _ = d.Close(context.Background()) }
		})
	}
}

func TestBackendMatchesAfterFlush(t *testing.T) {
	backend := memstore.NewBytes(4)
	config := writebehind.DefaultConfig()
	config.Concurrency = 3
	config.BatchSize = 7
	d := newDecorator(t, backend, config)

	want := map[string][]byte{}
	for i := range 100 {
		key := fmt.Sprintf("key-%d", i%30)
		if i%5 == 4 {
			if err := d.Delete(key); err != nil {
				t.Fatal(err)
			}
			delete(want, key)
			continue
		}
		value := []byte(fmt.Sprintf("v%d", i))
		if err := d.Write(key, value); err != nil {
			t.Fatal(err)
		}
		want[key] = value
	}

	if err := d.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if d.Size() != 0 {
		t.Errorf("expected an empty queue after flush, got %d", d.Size())
	}

	got := map[string][]byte{}
	backend.Range(func(k string, v []byte) bool {
		got[k] = v
		return true
	})
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("backend state mismatch (-want +got):\n%s", diff)
	}
}

func TestCoalescingReachesBackendOnce(t *testing.T) {
	for _, coalesce := range []bool{true, false} {
		t.Run(fmt.Sprintf("coalesce=%t", coalesce), func(t *testing.T) {
			backend := newCountingStore()
			config := writebehind.DefaultConfig()
			config.WriteCoalescing = coalesce
			config.BatchSize = 1000
			config.MaxWriteDelay = time.Hour
			d := newDecorator(t, backend, config)

			for i := range 100 {
				if err := d.Write("k", []byte(fmt.Sprint(i))); err != nil {
					t.Fatal(err)
				}
			}
			if err := d.Flush(context.Background()); err != nil {
				t.Fatal(err)
			}

			want := 100
			if coalesce {
				want = 1
			}
			if got := backend.count("k"); got != want {
				t.Errorf("expected %d backend writes, got %d", want, got)
			}
			v, _, _ := backend.Load("k")
			if string(v) != "99" {
				t.Errorf("expected the last value to win, got %q", v)
			}
		})
	}
}

func TestCloseDrainsIntoBackend(t *testing.T) {
	backend := memstore.NewBytes(4)
	config := writebehind.DefaultConfig()
	config.MaxWriteDelay = time.Hour
	config.BatchSize = 1000
	d, err := queue.NewDecorator[string, []byte](backend, config, nil)
	if err != nil {
		t.Fatal(err)
	}

	for i := range 10 {
		if err := d.Write(fmt.Sprint(i), []byte("x")); err != nil {
			t.Fatal(err)
		}
	}
	if err := d.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if backend.Len() != 10 {
		t.Errorf("expected 10 keys in the backend, got %d", backend.Len())
	}
	if err := d.Write("late", nil); !errors.Is(err, loaderwriter.ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed, got %v", err)
	}
}

func TestQueueFullIsReported(t *testing.T) {
	config := writebehind.DefaultConfig()
	config.MaxQueueSize = 2
	config.BatchSize = 1000
	config.MaxWriteDelay = time.Hour
	d := newDecorator(t, memstore.NewBytes(1), config)

	_ = d.Write("a", nil)
	_ = d.Write("b", nil)
	if err := d.Write("c", nil); !errors.Is(err, loaderwriter.ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}

	if err := d.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := d.Write("c", nil); err != nil {
		t.Errorf("expected room after flush, got %v", err)
	}
}
