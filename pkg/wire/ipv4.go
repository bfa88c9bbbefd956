// Package wire codecs the on-wire formats this stack speaks: IPv4, TCP,
// ARP, and Ethernet, plus the checksum and prefix-length helpers they share.
package wire

import (
	"net/netip"

	ipv4header "github.com/brown-csci1680/iptcp-headers"
	"github.com/google/netstack/tcpip/header"
	"github.com/pkg/errors"
)

// ProtocolTCP and ProtocolTest are the IP protocol numbers this stack
// dispatches on; ProtocolTest carries plain text for REPL-driven send/recv
// testing independent of TCP.
const (
	ProtocolTest = 0
	ProtocolTCP  = 6
)

// DefaultTTL matches the teacher's own fixed outgoing TTL.
const DefaultTTL = 16

// EncodeIPv4 marshals an IPv4 header plus payload, computing and filling in
// the header checksum.
func EncodeIPv4(src, dst netip.Addr, protocol int, ttl int, payload []byte) ([]byte, error) {
	hdr := ipv4header.IPv4Header{
		Version:  4,
		Len:      ipv4header.HeaderLen,
		TOS:      0,
		TotalLen: ipv4header.HeaderLen + len(payload),
		ID:       0,
		Flags:    0,
		FragOff:  0,
		TTL:      ttl,
		Protocol: protocol,
		Checksum: 0,
		Src:      src,
		Dst:      dst,
		Options:  []byte{},
	}
	hdrBytes, err := hdr.Marshal()
	if err != nil {
		return nil, errors.Wrap(err, "marshal ipv4 header")
	}
	hdr.Checksum = int(ComputeChecksum(hdrBytes))
	hdrBytes, err = hdr.Marshal()
	if err != nil {
		return nil, errors.Wrap(err, "marshal ipv4 header with checksum")
	}
	out := make([]byte, 0, len(hdrBytes)+len(payload))
	out = append(out, hdrBytes...)
	out = append(out, payload...)
	return out, nil
}

// DecodeIPv4 parses a raw datagram into its header and payload.
func DecodeIPv4(raw []byte) (ipv4header.IPv4Header, []byte, error) {
	hdr, err := ipv4header.ParseHeader(raw)
	if err != nil {
		return ipv4header.IPv4Header{}, nil, errors.Wrap(err, "parse ipv4 header")
	}
	if hdr.Len > len(raw) {
		return ipv4header.IPv4Header{}, nil, errors.New("ipv4 header length exceeds datagram")
	}
	return *hdr, raw[hdr.Len:], nil
}

// ComputeChecksum computes the IPv4 header checksum the way the teacher
// does: netstack's running checksum, complemented.
func ComputeChecksum(hdrBytes []byte) uint16 {
	return header.Checksum(hdrBytes, 0) ^ 0xffff
}
