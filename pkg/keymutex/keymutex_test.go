package keymutex

import (
	"sync"
	"testing"
	"time"
)

func TestSameKeySerialized(t *testing.T) {
	k := New()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("a")
			defer unlock()
			mu.Lock()
			inside++
			maxSeen = max(maxSeen, inside)
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("%d goroutines held the same key", maxSeen)
	}
	if k.Len() != 0 {
		t.Fatalf("entries leaked: %d", k.Len())
	}
}

func TestDifferentKeysConcurrent(t *testing.T) {
	k := New()
	unlockA := k.Lock("a")
	done := make(chan struct{})
	go func() {
		unlock := k.Lock("b")
		unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("key b blocked by key a")
	}
	unlockA()
	// unlocking twice is a no-op
	unlockA()
	if k.Len() != 0 {
		t.Fatalf("entries leaked: %d", k.Len())
	}
}
