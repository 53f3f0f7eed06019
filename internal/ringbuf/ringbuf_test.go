package ringbuf

import (
	"sync"
	"testing"
	"time"

	"tick-collectorv1/internal/model"
)

func TestRing_BasicPushPop(t *testing.T) {
	r := New(4) // rounds to 4

	e1 := model.TickEvent{Symbol: "A", Price: 100}
	e2 := model.TickEvent{Symbol: "B", Price: 200}

	if !r.Push(e1) {
		t.Fatal("push e1 should succeed")
	}
	if !r.Push(e2) {
		t.Fatal("push e2 should succeed")
	}

	if r.Len() != 2 {
		t.Fatalf("expected len=2, got %d", r.Len())
	}

	got, ok := r.Pop()
	if !ok || got.Symbol != "A" {
		t.Fatalf("expected A, got %v ok=%v", got.Symbol, ok)
	}

	got, ok = r.Pop()
	if !ok || got.Symbol != "B" {
		t.Fatalf("expected B, got %v ok=%v", got.Symbol, ok)
	}

	_, ok = r.Pop()
	if ok {
		t.Fatal("pop from empty should return false")
	}
}

func TestRing_Overflow(t *testing.T) {
	r := New(2) // capacity = 2

	r.Push(model.TickEvent{Symbol: "1"})
	r.Push(model.TickEvent{Symbol: "2"})

	// Buffer is full
	ok := r.Push(model.TickEvent{Symbol: "3"})
	if ok {
		t.Fatal("push to full buffer should return false")
	}
	if r.Overflow() != 1 {
		t.Fatalf("expected overflow=1, got %d", r.Overflow())
	}
}

func TestRing_Wraparound(t *testing.T) {
	r := New(4)

	// Fill and drain multiple times to test wraparound
	for round := 0; round < 5; round++ {
		for i := 0; i < 4; i++ {
			if !r.Push(model.TickEvent{Symbol: "X", Time: int64(round*10 + i)}) {
				t.Fatalf("round %d push %d failed", round, i)
			}
		}
		for i := 0; i < 4; i++ {
			ev, ok := r.Pop()
			if !ok {
				t.Fatalf("round %d pop %d failed", round, i)
			}
			if ev.Time != int64(round*10+i) {
				t.Fatalf("round %d pop %d: expected time=%d, got %d", round, i, round*10+i, ev.Time)
			}
		}
	}
}

func TestRing_SPSC_Concurrent(t *testing.T) {
	const count = 100_000
	r := New(1024)

	var wg sync.WaitGroup
	wg.Add(2)

	// Producer
	go func() {
		defer wg.Done()
		for i := 0; i < count; i++ {
			for !r.Push(model.TickEvent{Time: int64(i)}) {
				// spin-wait (busy loop for test only)
			}
		}
	}()

	// Consumer
	received := make([]int64, 0, count)
	go func() {
		defer wg.Done()
		for len(received) < count {
			ev, ok := r.Pop()
			if ok {
				received = append(received, ev.Time)
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("SPSC test timed out")
	}

	// Verify ordering
	for i, v := range received {
		if v != int64(i) {
			t.Fatalf("at index %d: expected %d, got %d", i, i, v)
		}
	}
}
