// Package wrap32 implements the bijection between 32-bit wrapping sequence
// numbers and 64-bit absolute stream indices, anchored by a checkpoint.
package wrap32

const band = uint64(1) << 32

// Wrap32 is a 32-bit wrapping sequence number. Operations are pure value
// operations; Wrap32 carries no other state.
type Wrap32 struct {
	raw uint32
}

// New wraps a raw 32-bit value directly (no offset from a zero point).
func New(raw uint32) Wrap32 { return Wrap32{raw: raw} }

// Raw returns the underlying 32-bit value.
func (w Wrap32) Raw() uint32 { return w.raw }

// Wrap computes the sequence number for absolute index n relative to
// zeroPoint: wrap(n, zero_point) = zero_point + (n mod 2^32).
func Wrap(n uint64, zeroPoint Wrap32) Wrap32 {
	return Wrap32{raw: zeroPoint.raw + uint32(n)}
}

// Add returns w advanced by n (mod 2^32), used when computing the sequence
// number of the next byte to send.
func (w Wrap32) Add(n uint64) Wrap32 {
	return Wrap32{raw: w.raw + uint32(n)}
}

// Unwrap returns the unique absolute index n such that Wrap(n, zeroPoint)
// equals w and n is within 2^31 of checkpoint, clamped to non-negative. The
// candidate is built by placing the raw offset (w - zeroPoint) mod 2^32 into
// the same 2^32-aligned band as checkpoint, then comparing against the
// neighboring band; an exact tie resolves to the higher band.
func (w Wrap32) Unwrap(zeroPoint Wrap32, checkpoint uint64) uint64 {
	offset := uint64(w.raw - zeroPoint.raw) // mod 2^32, since both are uint32

	if offset >= checkpoint {
		// offset already sits within 2^31 of a checkpoint of 0; since
		// checkpoint <= offset here, offset is already the closest (or
		// only) candidate, as the next band down would be negative.
		return offset
	}

	// checkpoint > offset: find the band-aligned candidate nearest checkpoint.
	bandsBelow := (checkpoint - offset) / band
	candidate := offset + bandsBelow*band

	next := candidate + band
	if checkpoint-candidate < next-checkpoint {
		return candidate
	}
	// Equidistant bands resolve to the higher one.
	return next
}
