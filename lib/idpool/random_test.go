package idpool

import (
	"errors"
	"sync"
	"testing"
)

// TestFreshUnique tests that ids are unique while in use and never None
func TestFreshUnique(t *testing.T) {
	p := NewRandomPool()
	seen := make(map[uint32]bool)

	for i := 0; i < 1000; i++ {
		id, err := p.Fresh()
		if err != nil {
			t.Fatalf("Fresh failed: %v", err)
		}
		if id == None {
			t.Fatal("Fresh returned None")
		}
		if seen[id] {
			t.Fatalf("id %d handed out twice", id)
		}
		seen[id] = true
		if !p.InUse(id) {
			t.Errorf("id %d should be in use", id)
		}
	}
}

// TestRelease tests that released ids are no longer in use
func TestRelease(t *testing.T) {
	p := NewRandomPool()
	id, err := p.Fresh()
	if err != nil {
		t.Fatal(err)
	}
	p.Release(id)
	if p.InUse(id) {
		t.Error("released id still in use")
	}
	p.Release(id) // no-op
}

// TestExhausted tests the give-up path with a source that keeps repeating one id
func TestExhausted(t *testing.T) {
	p := &randomPool{
		used: NewRandomPool().(*randomPool).used,
		read: func(b []byte) (int, error) {
			copy(b, []byte{0, 0, 0, 42})
			return len(b), nil
		},
	}
	if id, err := p.Fresh(); err != nil || id != 42 {
		t.Fatalf("first draw should succeed with 42, got %d %v", id, err)
	}
	if _, err := p.Fresh(); !errors.Is(err, ErrExhausted) {
		t.Errorf("expected ErrExhausted, got %v", err)
	}
}

// TestConcurrentFresh tests that a shared pool hands out distinct ids across goroutines
func TestConcurrentFresh(t *testing.T) {
	p := NewRandomPool()
	var mu sync.Mutex
	seen := make(map[uint32]bool)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id, err := p.Fresh()
				if err != nil {
					t.Errorf("Fresh failed: %v", err)
					return
				}
				mu.Lock()
				if seen[id] {
					t.Errorf("duplicate id %d", id)
				}
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
}
