package testing

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/wbKV/lib/loaderwriter"
	"github.com/google/go-cmp/cmp"
)

// LoaderWriter is the instantiation of the contract every wbKV backend serves
type LoaderWriter = loaderwriter.ILoaderWriter[string, []byte]

// Factory creates a fresh, empty loader-writer. The returned cleanup
// function is called when the test is done with the instance.
type Factory func(t testing.TB) (lw LoaderWriter, cleanup func())

// RunLoaderWriterTests runs the conformance suite against a loader-writer implementation.
func RunLoaderWriterTests(t *testing.T, name string, factory Factory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Write&Load", func(t *testing.T) {
			testWriteLoad(t, factory)
		})

		t.Run("EmptyValue", func(t *testing.T) {
			testEmptyValue(t, factory)
		})

		t.Run("BufferReuse", func(t *testing.T) {
			testBufferReuse(t, factory)
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory)
		})

		t.Run("LoadAll", func(t *testing.T) {
			testLoadAll(t, factory)
		})

		t.Run("WriteAll", func(t *testing.T) {
			testWriteAll(t, factory)
		})

		t.Run("DeleteAll", func(t *testing.T) {
			testDeleteAll(t, factory)
		})

		t.Run("EmptyBulk", func(t *testing.T) {
			testEmptyBulk(t, factory)
		})

		t.Run("Concurrent", func(t *testing.T) {
			testConcurrent(t, factory)
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func mustLoad(t *testing.T, lw LoaderWriter, key string) ([]byte, bool) {
	t.Helper()
	value, found, err := lw.Load(key)
	if err != nil {
		t.Fatalf("Load(%q) failed: %v", key, err)
	}
	return value, found
}

func expectValue(t *testing.T, lw LoaderWriter, key string, want []byte) {
	t.Helper()
	got, found := mustLoad(t, lw, key)
	if !found {
		t.Fatalf("Expected key %q to be found", key)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("Key %q: expected value %q, got %q", key, want, got)
	}
}

func expectMissing(t *testing.T, lw LoaderWriter, key string) {
	t.Helper()
	if got, found := mustLoad(t, lw, key); found {
		t.Fatalf("Expected key %q to be missing, got %q", key, got)
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testWriteLoad(t *testing.T, factory Factory) {
	lw, cleanup := factory(t)
	defer cleanup()

	if err := lw.Write("key", []byte("value1")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	expectValue(t, lw, "key", []byte("value1"))

	if err := lw.Write("key", []byte("value2")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	expectValue(t, lw, "key", []byte("value2"))

	expectMissing(t, lw, "nonexistent-key")
}

func testEmptyValue(t *testing.T, factory Factory) {
	lw, cleanup := factory(t)
	defer cleanup()

	if err := lw.Write("empty", []byte{}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, found := mustLoad(t, lw, "empty")
	if !found {
		t.Fatal("A key with an empty value must be found")
	}
	if len(got) != 0 {
		t.Fatalf("Expected empty value, got %q", got)
	}
}

// testBufferReuse checks that neither the written buffer nor a loaded value
// shares memory with what the loader-writer holds.
func testBufferReuse(t *testing.T, factory Factory) {
	lw, cleanup := factory(t)
	defer cleanup()

	buf := []byte("value-1")
	if err := lw.Write("single", buf); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	copy(buf, "XXXXXXX")
	expectValue(t, lw, "single", []byte("value-1"))

	bulk := []byte("value-2")
	if err := lw.WriteAll([]loaderwriter.Entry[string, []byte]{{Key: "bulk", Value: bulk}}); err != nil {
		t.Fatalf("WriteAll failed: %v", err)
	}
	copy(bulk, "XXXXXXX")
	expectValue(t, lw, "bulk", []byte("value-2"))

	loaded, _ := mustLoad(t, lw, "single")
	copy(loaded, "YYYYYYY")
	expectValue(t, lw, "single", []byte("value-1"))

	all, err := lw.LoadAll([]string{"bulk"})
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	copy(all["bulk"], "YYYYYYY")
	expectValue(t, lw, "bulk", []byte("value-2"))
}

func testDelete(t *testing.T, factory Factory) {
	lw, cleanup := factory(t)
	defer cleanup()

	if err := lw.Write("key", []byte("value")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := lw.Delete("key"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	expectMissing(t, lw, "key")

	if err := lw.Delete("never-written"); err != nil {
		t.Fatalf("Deleting a missing key must not fail: %v", err)
	}

	if err := lw.Write("key", []byte("again")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	expectValue(t, lw, "key", []byte("again"))
}

func testLoadAll(t *testing.T, factory Factory) {
	lw, cleanup := factory(t)
	defer cleanup()

	for i := 0; i < 5; i++ {
		if err := lw.Write(fmt.Sprintf("k%d", i), []byte(fmt.Sprintf("v%d", i))); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	got, err := lw.LoadAll([]string{"k0", "k2", "k4", "missing"})
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}

	want := map[string][]byte{
		"k0": []byte("v0"),
		"k2": []byte("v2"),
		"k4": []byte("v4"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LoadAll mismatch (-want +got):\n%s", diff)
	}
}

func testWriteAll(t *testing.T, factory Factory) {
	lw, cleanup := factory(t)
	defer cleanup()

	entries := []loaderwriter.Entry[string, []byte]{
		{Key: "a", Value: []byte("1")},
		{Key: "b", Value: []byte("2")},
		{Key: "a", Value: []byte("3")},
	}
	if err := lw.WriteAll(entries); err != nil {
		t.Fatalf("WriteAll failed: %v", err)
	}

	// later entries for the same key win
	expectValue(t, lw, "a", []byte("3"))
	expectValue(t, lw, "b", []byte("2"))
}

func testDeleteAll(t *testing.T, factory Factory) {
	lw, cleanup := factory(t)
	defer cleanup()

	for _, k := range []string{"a", "b", "c"} {
		if err := lw.Write(k, []byte(k)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	if err := lw.DeleteAll([]string{"a", "c", "missing"}); err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}

	expectMissing(t, lw, "a")
	expectValue(t, lw, "b", []byte("b"))
	expectMissing(t, lw, "c")
}

func testEmptyBulk(t *testing.T, factory Factory) {
	lw, cleanup := factory(t)
	defer cleanup()

	if err := lw.WriteAll(nil); err != nil {
		t.Errorf("WriteAll(nil) failed: %v", err)
	}
	if err := lw.DeleteAll(nil); err != nil {
		t.Errorf("DeleteAll(nil) failed: %v", err)
	}
	got, err := lw.LoadAll(nil)
	if err != nil {
		t.Errorf("LoadAll(nil) failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("LoadAll(nil) returned %d entries", len(got))
	}
}

func testConcurrent(t *testing.T, factory Factory) {
	lw, cleanup := factory(t)
	defer cleanup()

	const workers = 8
	const keysPerWorker = 50

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < keysPerWorker; i++ {
				key := fmt.Sprintf("w%d-k%d", worker, i)
				if err := lw.Write(key, []byte(key)); err != nil {
					t.Errorf("Write(%q) failed: %v", key, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	for w := 0; w < workers; w++ {
		for i := 0; i < keysPerWorker; i++ {
			key := fmt.Sprintf("w%d-k%d", w, i)
			expectValue(t, lw, key, []byte(key))
		}
	}
}
