package detect

import "testing"

func TestRingBuffer_PushEvictsFront(t *testing.T) {
	r := NewRingBuffer[int](3)
	r.Push(1)
	r.Push(2)
	r.Push(3)
	r.Push(4)

	if r.Len() != 3 {
		t.Fatalf("expected len 3, got %d", r.Len())
	}
	front, ok := r.Get(0)
	if !ok || front != 2 {
		t.Fatalf("expected front=2, got %v ok=%v", front, ok)
	}
	back, ok := r.Get(-1)
	if !ok || back != 4 {
		t.Fatalf("expected back=4, got %v ok=%v", back, ok)
	}
}

func TestRingBuffer_NegativeIndexing(t *testing.T) {
	r := NewRingBuffer[string](3)
	r.Push("a")
	r.Push("b")
	r.Push("c")

	cases := []struct {
		idx  int
		want string
	}{
		{0, "a"}, {1, "b"}, {2, "c"},
		{-1, "c"}, {-2, "b"}, {-3, "a"},
	}
	for _, c := range cases {
		got, ok := r.Get(c.idx)
		if !ok || got != c.want {
			t.Errorf("Get(%d) = %q, %v; want %q", c.idx, got, ok, c.want)
		}
	}
}

func TestRingBuffer_GetOutOfRange(t *testing.T) {
	r := NewRingBuffer[int](2)
	r.Push(1)
	if _, ok := r.Get(5); ok {
		t.Fatal("expected out-of-range Get to report absence")
	}
	if _, ok := r.Get(-5); ok {
		t.Fatal("expected out-of-range negative Get to report absence")
	}
}

func TestRingBuffer_PopFrontBack(t *testing.T) {
	r := NewRingBuffer[int](3)
	r.Push(1)
	r.Push(2)
	r.Push(3)

	front, ok := r.PopFront()
	if !ok || front != 1 {
		t.Fatalf("PopFront() = %v, %v; want 1, true", front, ok)
	}
	back, ok := r.PopBack()
	if !ok || back != 3 {
		t.Fatalf("PopBack() = %v, %v; want 3, true", back, ok)
	}
	if r.Len() != 1 {
		t.Fatalf("expected len 1, got %d", r.Len())
	}
}

func TestRingBuffer_PopEmpty(t *testing.T) {
	r := NewRingBuffer[int](2)
	if _, ok := r.PopFront(); ok {
		t.Fatal("expected PopFront on empty buffer to report absence")
	}
	if _, ok := r.PopBack(); ok {
		t.Fatal("expected PopBack on empty buffer to report absence")
	}
}

func TestRingBuffer_Clear(t *testing.T) {
	r := NewRingBuffer[int](3)
	r.Push(1)
	r.Push(2)
	r.Clear()
	if r.Len() != 0 {
		t.Fatalf("expected len 0 after Clear, got %d", r.Len())
	}
	r.Push(9)
	got, ok := r.Get(0)
	if !ok || got != 9 {
		t.Fatalf("expected buffer usable after Clear, got %v, %v", got, ok)
	}
}

func TestRingBuffer_GetMut(t *testing.T) {
	r := NewRingBuffer[int](3)
	r.Push(1)
	r.Push(2)
	if p := r.GetMut(-1); p != nil {
		*p = 20
	}
	got, _ := r.Get(-1)
	if got != 20 {
		t.Fatalf("expected mutation through GetMut to stick, got %d", got)
	}
}
