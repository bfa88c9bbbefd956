// Package reassembler merges out-of-order, possibly-overlapping indexed
// substrings into a bytestream.ByteStream under that stream's own capacity
// window.
package reassembler

import (
	"vtcp/pkg/bytestream"

	"github.com/google/btree"
)

// interval is a pending substring not yet contiguous with the stream, keyed
// by its absolute start index l. btreeDegree of 32 keeps rebalancing cheap
// for the small number of outstanding gaps a TCP receiver typically holds.
type interval struct {
	l, r uint64
	data []byte
}

const btreeDegree = 32

func less(a, b interval) bool { return a.l < b.l }

// Reassembler holds the pending-substring store for a single inbound
// stream. The spec's draft sources modeled this with a raw priority queue
// of (l, r, storage-index) tuples across several incompatible variants; an
// ordered map keyed by l makes coalescing, and an exact bytes_pending,
// straightforward instead.
type Reassembler struct {
	store    *btree.BTreeG[interval]
	lastSeen bool
	lastEnd  uint64
}

// New constructs an empty Reassembler.
func New() *Reassembler {
	return &Reassembler{store: btree.NewG(btreeDegree, less)}
}

// Insert merges [firstIndex, firstIndex+len(data)) into writer. isLast marks
// data as containing (or ending at) the final byte of the stream.
func (re *Reassembler) Insert(firstIndex uint64, data []byte, isLast bool, writer *bytestream.Writer) {
	expected := writer.BytesPushed()
	window := writer.AvailableCapacity()

	lo := firstIndex
	if expected > lo {
		lo = expected
	}
	hi := firstIndex + uint64(len(data))
	if bound := expected + window; bound < hi {
		hi = bound
	}

	if lo < hi {
		trimmed := data[lo-firstIndex : hi-firstIndex]
		if lo == expected {
			writer.Push(trimmed)
			re.drain(writer)
		} else {
			re.storeOrKeepLonger(interval{l: lo, r: hi, data: trimmed})
		}
	}

	if isLast {
		re.lastSeen = true
		if end := firstIndex + uint64(len(data)); end > re.lastEnd {
			re.lastEnd = end
		}
	}
	if re.lastSeen && re.store.Len() == 0 && writer.BytesPushed() >= re.lastEnd {
		writer.Close()
	}
}

// storeOrKeepLonger stores iv, unless a piece already stored at the same
// start index carries at least as much data — the first bytes to arrive at
// a given index win ties, but a later, longer piece covering the same
// prefix still supersedes a shorter one.
func (re *Reassembler) storeOrKeepLonger(iv interval) {
	if existing, ok := re.store.Get(interval{l: iv.l}); ok {
		if existing.r-existing.l >= iv.r-iv.l {
			return
		}
	}
	re.store.ReplaceOrInsert(iv)
}

// drain pushes every stored substring contiguous with (or redundant with)
// the writer's current expected index, stopping at the first gap.
func (re *Reassembler) drain(writer *bytestream.Writer) {
	for {
		head, ok := re.store.Min()
		if !ok {
			return
		}
		expected := writer.BytesPushed()
		if head.l > expected {
			return
		}
		re.store.DeleteMin()
		if head.r <= expected {
			continue // fully subsumed by what's already pushed
		}
		writer.Push(head.data[expected-head.l:])
	}
}

// BytesPending is the count of distinct bytes currently held in the pending
// store — the union of stored intervals, not the sum of their raw lengths
// (which double-counts overlaps).
func (re *Reassembler) BytesPending() uint64 {
	var total, coveredEnd uint64
	re.store.Ascend(func(iv interval) bool {
		start := iv.l
		if coveredEnd > start {
			start = coveredEnd
		}
		if start < iv.r {
			total += iv.r - start
			coveredEnd = iv.r
		}
		return true
	})
	return total
}
