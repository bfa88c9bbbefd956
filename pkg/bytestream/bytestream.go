// Package bytestream implements a bounded, single-producer/single-consumer
// in-memory byte pipe with EOF and error signaling.
package bytestream

import "fmt"

// state is the shared storage behind a ByteStream's Writer and Reader half.
// Both halves hold a pointer to the same state so neither needs a back
// reference to the other.
type state struct {
	capacity uint64
	buf      []byte
	readIdx  int
	pushed   uint64
	popped   uint64
	closed   bool
	errored  bool
}

// ByteStream owns the shared state and hands out its two halves.
type ByteStream struct {
	s *state
}

// New constructs a ByteStream with a fixed capacity in bytes.
func New(capacity uint64) *ByteStream {
	return &ByteStream{s: &state{capacity: capacity}}
}

// Writer returns the producer half of the stream.
func (b *ByteStream) Writer() *Writer { return &Writer{s: b.s} }

// Reader returns the consumer half of the stream.
func (b *ByteStream) Reader() *Reader { return &Reader{s: b.s} }

func (b *ByteStream) bytesBuffered() uint64 { return b.s.pushed - b.s.popped }

// Writer is the producer half of a ByteStream.
type Writer struct{ s *state }

// Push appends up to AvailableCapacity bytes of data, silently discarding
// the rest.
func (w *Writer) Push(data []byte) {
	accept := w.AvailableCapacity()
	if accept == 0 {
		return
	}
	if uint64(len(data)) < accept {
		accept = uint64(len(data))
	}
	w.s.buf = append(w.s.buf, data[:accept]...)
	w.s.pushed += accept
}

// Close marks the stream closed. Idempotent.
func (w *Writer) Close() { w.s.closed = true }

// SetError marks the stream as errored. Monotonic: never clears.
func (w *Writer) SetError() { w.s.errored = true }

// IsClosed reports whether Close has been called.
func (w *Writer) IsClosed() bool { return w.s.closed }

// AvailableCapacity is how many more bytes Push will currently accept.
func (w *Writer) AvailableCapacity() uint64 {
	return w.s.capacity - (w.s.pushed - w.s.popped)
}

// BytesPushed is the cumulative count of bytes accepted by Push.
func (w *Writer) BytesPushed() uint64 { return w.s.pushed }

// Reader is the consumer half of a ByteStream.
type Reader struct{ s *state }

// Peek returns a contiguous view of the currently buffered bytes. The
// returned slice aliases internal storage and is invalidated by the next
// Pop or Push.
func (r *Reader) Peek() []byte { return r.s.buf[r.s.readIdx:] }

// IsFinished reports whether the stream is closed and fully drained.
func (r *Reader) IsFinished() bool { return r.s.closed && r.BytesBuffered() == 0 }

// HasError reports whether the writer called SetError.
func (r *Reader) HasError() bool { return r.s.errored }

// Pop removes n bytes from the front of the buffer. Calling it with
// n > BytesBuffered() is a precondition violation (spec §7, assertion-class
// failure): it panics rather than returning an error, since it indicates a
// bug in the caller, not a runtime condition.
func (r *Reader) Pop(n uint64) {
	buffered := r.BytesBuffered()
	if n > buffered {
		panic(fmt.Sprintf("bytestream: Pop(%d) exceeds bytes buffered (%d)", n, buffered))
	}
	r.s.readIdx += int(n)
	r.s.popped += n

	// Reuse the backing array from the start whenever the reader has
	// drained everything, and otherwise reclaim the consumed prefix once the
	// backing array has grown well past capacity, so a long-lived stream
	// doesn't retain every byte ever pushed.
	if r.s.readIdx == len(r.s.buf) {
		r.s.buf = r.s.buf[:0]
		r.s.readIdx = 0
	} else if uint64(len(r.s.buf)) > 4*r.s.capacity {
		rest := make([]byte, len(r.s.buf)-r.s.readIdx)
		copy(rest, r.s.buf[r.s.readIdx:])
		r.s.buf = rest
		r.s.readIdx = 0
	}
}

// BytesBuffered is the number of bytes currently waiting to be popped.
func (r *Reader) BytesBuffered() uint64 { return r.s.pushed - r.s.popped }

// BytesPopped is the cumulative count of bytes removed by Pop.
func (r *Reader) BytesPopped() uint64 { return r.s.popped }
