package wire

import (
	"encoding/binary"

	"github.com/tmthrgd/go-popcount"
)

// MaskForPrefixLen returns the IPv4 netmask with the top length bits set.
func MaskForPrefixLen(length int) uint32 {
	if length <= 0 {
		return 0
	}
	if length >= 32 {
		return 0xffffffff
	}
	return ^uint32(0) << uint(32-length)
}

// PrefixLenOfMask returns the number of set bits in mask, computed via a
// population count of its big-endian byte form rather than a manual bit
// loop. For a contiguous netmask this is its prefix length; a
// non-contiguous mask is not rejected and yields its total bit count.
func PrefixLenOfMask(mask uint32) int {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], mask)
	return int(popcount.CountBytes(buf[:]))
}
