package bytestream

import "testing"

func TestPushAndPopRoundtrip(t *testing.T) {
	bs := New(15)
	w := bs.Writer()
	r := bs.Reader()

	w.Push([]byte("cat"))
	if r.BytesBuffered() != 3 {
		t.Fatalf("BytesBuffered() = %d, want 3", r.BytesBuffered())
	}
	if got := string(r.Peek()); got != "cat" {
		t.Fatalf("Peek() = %q, want %q", got, "cat")
	}
	r.Pop(3)
	if r.BytesBuffered() != 0 {
		t.Fatalf("BytesBuffered() = %d after Pop, want 0", r.BytesBuffered())
	}
	if w.BytesPushed() != 3 || r.BytesPopped() != 3 {
		t.Fatalf("BytesPushed()=%d BytesPopped()=%d, want 3 and 3", w.BytesPushed(), r.BytesPopped())
	}
}

func TestPushBeyondCapacityIsTruncated(t *testing.T) {
	bs := New(2)
	w := bs.Writer()
	r := bs.Reader()

	w.Push([]byte("cat"))
	if r.BytesBuffered() != 2 {
		t.Fatalf("BytesBuffered() = %d, want 2 (excess silently dropped)", r.BytesBuffered())
	}
	if got := string(r.Peek()); got != "ca" {
		t.Fatalf("Peek() = %q, want %q", got, "ca")
	}
}

func TestCloseAndIsFinished(t *testing.T) {
	bs := New(10)
	w := bs.Writer()
	r := bs.Reader()

	w.Push([]byte("hi"))
	w.Close()
	if r.IsFinished() {
		t.Fatal("IsFinished() = true before buffered bytes are drained")
	}
	r.Pop(2)
	if !r.IsFinished() {
		t.Fatal("IsFinished() = false after close and full drain")
	}
}

func TestSetErrorIsMonotonic(t *testing.T) {
	bs := New(10)
	w := bs.Writer()
	r := bs.Reader()

	if r.HasError() {
		t.Fatal("HasError() = true before SetError")
	}
	w.SetError()
	if !r.HasError() {
		t.Fatal("HasError() = false after SetError")
	}
}

func TestPopBeyondBufferedPanics(t *testing.T) {
	bs := New(10)
	w := bs.Writer()
	r := bs.Reader()
	w.Push([]byte("x"))

	defer func() {
		if recover() == nil {
			t.Fatal("Pop beyond BytesBuffered did not panic")
		}
	}()
	r.Pop(2)
}

func TestAvailableCapacityTracksInFlightBytes(t *testing.T) {
	bs := New(4)
	w := bs.Writer()
	r := bs.Reader()

	w.Push([]byte("ab"))
	if w.AvailableCapacity() != 2 {
		t.Fatalf("AvailableCapacity() = %d, want 2", w.AvailableCapacity())
	}
	r.Pop(1)
	if w.AvailableCapacity() != 3 {
		t.Fatalf("AvailableCapacity() = %d after partial pop, want 3", w.AvailableCapacity())
	}
}

func TestBufferReclaimedAfterLongRun(t *testing.T) {
	bs := New(4)
	w := bs.Writer()
	r := bs.Reader()

	for i := 0; i < 100; i++ {
		w.Push([]byte("ab"))
		r.Pop(2)
	}
	if r.s.readIdx != 0 {
		t.Fatalf("internal buffer never reclaimed after long run: readIdx=%d len(buf)=%d", r.s.readIdx, len(r.s.buf))
	}
}
