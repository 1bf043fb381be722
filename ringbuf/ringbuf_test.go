package ringbuf

import (
	"sync"
	"testing"
)

func TestPushPopOrder(t *testing.T) {
	var b Buffer

	n := Size - 1 // one slot is always sacrificed to tell full from empty
	for i := 0; i < n; i++ {
		if !b.Push(byte(i)) {
			t.Fatalf("push %d failed with %d slots free", i, b.Free())
		}
	}
	if got := b.Len(); got != uint32(n) {
		t.Fatalf("Len() = %d, want %d", got, n)
	}

	for i := 0; i < n; i++ {
		v, ok := b.Pop()
		if !ok {
			t.Fatalf("pop %d failed", i)
		}
		if v != byte(i) {
			t.Fatalf("pop %d = %#x, want %#x", i, v, byte(i))
		}
	}
	if _, ok := b.Pop(); ok {
		t.Fatal("pop on empty buffer succeeded")
	}
}

func TestPushWhenFull(t *testing.T) {
	var b Buffer

	for i := 0; i < Size-1; i++ {
		b.Push(byte(i))
	}

	if b.Push(0xFF) {
		t.Fatal("push on full buffer succeeded")
	}
	if got := b.Overflows(); got != 1 {
		t.Fatalf("Overflows() = %d, want 1", got)
	}
	if got := b.Len(); got != Size-1 {
		t.Fatalf("Len() after overflow = %d, want %d", got, Size-1)
	}

	// existing contents must be untouched
	for i := 0; i < Size-1; i++ {
		v, ok := b.Pop()
		if !ok || v != byte(i) {
			t.Fatalf("pop %d = %#x,%v after overflow, want %#x,true", i, v, ok, byte(i))
		}
	}
}

func TestFreeAccounting(t *testing.T) {
	var b Buffer

	if got := b.Free(); got != Size-1 {
		t.Fatalf("Free() on empty = %d, want %d", got, Size-1)
	}
	b.Push(1)
	b.Push(2)
	if got := b.Free(); got != Size-3 {
		t.Fatalf("Free() = %d, want %d", got, Size-3)
	}
	b.Pop()
	if got := b.Free(); got != Size-2 {
		t.Fatalf("Free() = %d, want %d", got, Size-2)
	}
}

func TestPeek(t *testing.T) {
	var b Buffer
	b.Push(0xAA)
	b.Push(0xBB)

	v, ok := b.Peek(1)
	if !ok || v != 0xBB {
		t.Fatalf("Peek(1) = %#x,%v, want 0xBB,true", v, ok)
	}
	if got := b.Len(); got != 2 {
		t.Fatalf("Peek consumed data: Len() = %d", got)
	}
	if _, ok := b.Peek(2); ok {
		t.Fatal("Peek past available data succeeded")
	}
}

func TestSliceVariants(t *testing.T) {
	var b Buffer

	in := []byte{1, 2, 3, 4, 5}
	if n := b.PushSlice(in); n != len(in) {
		t.Fatalf("PushSlice = %d, want %d", n, len(in))
	}

	out := make([]byte, 3)
	if n := b.PopSlice(out); n != 3 {
		t.Fatalf("PopSlice = %d, want 3", n)
	}
	if out[0] != 1 || out[2] != 3 {
		t.Fatalf("PopSlice order wrong: %v", out)
	}
}

func TestReset(t *testing.T) {
	var b Buffer
	for i := 0; i < Size; i++ {
		b.Push(byte(i)) // last one overflows
	}
	b.Reset()
	if b.Len() != 0 || b.Overflows() != 0 {
		t.Fatalf("Reset left Len=%d Overflows=%d", b.Len(), b.Overflows())
	}
}

// TestWrapAround exercises index wrapping well past one full cycle.
func TestWrapAround(t *testing.T) {
	var b Buffer
	for i := 0; i < Size*5; i++ {
		if !b.Push(byte(i)) {
			t.Fatalf("push %d failed", i)
		}
		v, ok := b.Pop()
		if !ok || v != byte(i) {
			t.Fatalf("pop %d = %#x,%v", i, v, ok)
		}
	}
}

// TestConcurrentSPSC runs a real producer/consumer pair and checks that the
// consumer observes the exact produced sequence with no holes or corruption.
func TestConcurrentSPSC(t *testing.T) {
	var b Buffer
	const total = 100000

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < total; {
			if b.Push(byte(i)) {
				i++
			}
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < total; {
			v, ok := b.Pop()
			if !ok {
				continue
			}
			if v != byte(i) {
				t.Errorf("consumer saw %#x at %d, want %#x", v, i, byte(i))
				return
			}
			i++
		}
	}()

	wg.Wait()
}
