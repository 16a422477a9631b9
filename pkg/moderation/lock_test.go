package moderation

import (
	"sync"
	"testing"
	"time"
)

func TestLockManagerExclusion(t *testing.T) {
	lm := NewLockManager()
	var counter int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := lm.Acquire("g1", "u1")
			defer h.Release()

			mu.Lock()
			counter++
			local := counter
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			if counter != local {
				t.Errorf("expected exclusive access, counter changed under lock: %d != %d", counter, local)
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if lm.Len() != 0 {
		t.Fatalf("expected lock map to be empty after all holders release, got %d", lm.Len())
	}
}

func TestLockManagerFIFOOrdering(t *testing.T) {
	lm := NewLockManager()
	var order []int
	var mu sync.Mutex

	first := lm.Acquire("g1", "u1")

	var wg sync.WaitGroup
	for i := 1; i <= 5; i++ {
		wg.Add(1)
		i := i
		// stagger acquisition attempts so they queue in order.
		time.Sleep(time.Millisecond)
		go func() {
			defer wg.Done()
			h := lm.Acquire("g1", "u1")
			defer h.Release()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}()
	}

	time.Sleep(10 * time.Millisecond)
	first.Release()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for idx, v := range order {
		if v != idx+1 {
			t.Fatalf("expected FIFO order 1..5, got %v", order)
		}
	}
}

func TestLockManagerIndependentKeysDoNotBlock(t *testing.T) {
	lm := NewLockManager()
	h1 := lm.Acquire("g1", "u1")
	done := make(chan struct{})
	go func() {
		h2 := lm.Acquire("g1", "u2")
		defer h2.Release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("distinct (guild,user) keys should not contend")
	}
	h1.Release()
}
