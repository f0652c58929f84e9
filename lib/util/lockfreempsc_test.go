package util

import (
	"runtime"
	"sync"
	"testing"
	"time"
)

// TestBasicOperations tests basic push and consume functionality
func TestBasicOperations(t *testing.T) {
	q := NewLockFreeMPSC[int]()
	defer q.Close()

	for i := 0; i < 10; i++ {
		v := i
		if !q.Push(&v) {
			t.Fatalf("Failed to push item %d", i)
		}
	}

	for i := 0; i < 10; i++ {
		select {
		case val := <-q.Recv():
			if *val != i {
				t.Errorf("Expected %d, got %d", i, *val)
			}
		case <-time.After(time.Second):
			t.Fatalf("Timeout waiting for item %d", i)
		}
	}

	select {
	case val := <-q.Recv():
		t.Errorf("Queue should be empty, but got %v", *val)
	case <-time.After(10 * time.Millisecond):
	}
}

// TestPushNil verifies that nil items are rejected
func TestPushNil(t *testing.T) {
	q := NewLockFreeMPSC[int]()
	defer q.Close()

	if q.Push(nil) {
		t.Error("Push(nil) should return false")
	}
}

// TestConcurrentProducers verifies that every item of every producer arrives
// exactly once and that the items of one producer keep their order
func TestConcurrentProducers(t *testing.T) {
	q := NewLockFreeMPSC[[2]int]()
	defer q.Close()

	const numProducers = 8
	const itemsPerProducer = 1000
	totalItems := numProducers * itemsPerProducer

	done := make(chan struct{})
	lastSeen := make([]int, numProducers)
	for i := range lastSeen {
		lastSeen[i] = -1
	}

	go func() {
		defer close(done)
		for received := 0; received < totalItems; received++ {
			select {
			case val := <-q.Recv():
				producer, seq := val[0], val[1]
				if seq != lastSeen[producer]+1 {
					t.Errorf("Producer %d: expected seq %d, got %d", producer, lastSeen[producer]+1, seq)
					return
				}
				lastSeen[producer] = seq
			case <-time.After(5 * time.Second):
				t.Errorf("Timeout waiting for items, received %d of %d", received, totalItems)
				return
			}
		}
	}()

	var wg sync.WaitGroup
	wg.Add(numProducers)
	for p := 0; p < numProducers; p++ {
		go func(producer int) {
			defer wg.Done()
			for i := 0; i < itemsPerProducer; i++ {
				item := [2]int{producer, i}
				if !q.Push(&item) {
					t.Errorf("Producer %d failed to push item %d", producer, i)
				}
				if i%100 == 0 {
					runtime.Gosched()
				}
			}
		}(p)
	}
	wg.Wait()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Timeout waiting for consumer to finish")
	}
}

// TestCloseQueue verifies that pushed items survive Close and that the
// output channel is closed afterwards
func TestCloseQueue(t *testing.T) {
	q := NewLockFreeMPSC[int]()

	for i := 0; i < 5; i++ {
		v := i
		q.Push(&v)
	}
	q.Close()

	val := 100
	if q.Push(&val) {
		t.Error("Should not be able to push after queue is closed")
	}

	for i := 0; i < 5; i++ {
		select {
		case v, ok := <-q.Recv():
			if !ok {
				t.Fatalf("Channel closed before item %d was delivered", i)
			}
			if *v != i {
				t.Errorf("Expected %d, got %d", i, *v)
			}
		case <-time.After(time.Second):
			t.Fatalf("Timeout waiting for item %d", i)
		}
	}

	select {
	case _, ok := <-q.Recv():
		if ok {
			t.Error("Expected channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for channel close")
	}
}

// BenchmarkPush measures the cost of concurrent pushes
func BenchmarkPush(b *testing.B) {
	q := NewLockFreeMPSC[int]()
	defer q.Close()

	go func() {
		for range q.Recv() {
		}
	}()

	b.RunParallel(func(pb *testing.PB) {
		v := 1
		for pb.Next() {
			q.Push(&v)
		}
	})
}
