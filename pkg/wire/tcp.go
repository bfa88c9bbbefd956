package wire

import (
	"net/netip"

	"github.com/google/netstack/tcpip"
	"github.com/google/netstack/tcpip/header"
	"github.com/pkg/errors"

	"vtcp/pkg/tcpseg"
	"vtcp/pkg/wrap32"
)

// TCPFlags mirrors the flag bits a Segment maps to and from.
const (
	flagFin = header.TCPFlagFin
	flagSyn = header.TCPFlagSyn
	flagAck = header.TCPFlagAck
)

func addrOf(a netip.Addr) tcpip.Address {
	b := a.As4()
	return tcpip.Address(b[:])
}

// EncodeTCP marshals seg as a TCP segment from srcPort/src to dstPort/dst,
// with the checksum computed over the IPv4 pseudo-header. Segment itself
// carries no ports; the caller supplies them (pkg/adapter takes them from
// the connection's four-tuple).
func EncodeTCP(seg tcpseg.Segment, srcPort, dstPort uint16, src, dst netip.Addr) []byte {
	var flags uint8
	if seg.SYN {
		flags |= flagSyn
	}
	if seg.FIN {
		flags |= flagFin
	}
	if seg.ACK {
		flags |= flagAck
	}

	fields := header.TCPFields{
		SrcPort:       srcPort,
		DstPort:       dstPort,
		SeqNum:        seg.Seqno.Raw(),
		AckNum:        seg.Ackno.Raw(),
		DataOffset:    header.TCPMinimumSize,
		Flags:         flags,
		WindowSize:    seg.WindowSize,
		Checksum:      0,
		UrgentPointer: 0,
	}
	buf := make(header.TCP, header.TCPMinimumSize+len(seg.Payload))
	buf.Encode(&fields)
	copy(buf[header.TCPMinimumSize:], seg.Payload)

	checksum := header.PseudoHeaderChecksum(tcpip.TransportProtocolNumber(ProtocolTCP), addrOf(src), addrOf(dst), uint16(len(buf)))
	checksum = header.Checksum(buf, checksum)
	buf.SetChecksum(^checksum)
	return buf
}

// DecodeTCP parses a raw TCP segment into its Segment form plus the ports
// it carries.
func DecodeTCP(raw []byte) (seg tcpseg.Segment, srcPort, dstPort uint16, err error) {
	if len(raw) < header.TCPMinimumSize {
		return tcpseg.Segment{}, 0, 0, errors.New("tcp segment shorter than minimum header")
	}
	hdr := header.TCP(raw)
	flags := hdr.Flags()

	seg = tcpseg.Segment{
		Seqno:      wrap32.New(hdr.SequenceNumber()),
		SYN:        flags&flagSyn != 0,
		FIN:        flags&flagFin != 0,
		Payload:    append([]byte(nil), hdr.Payload()...),
		ACK:        flags&flagAck != 0,
		Ackno:      wrap32.New(hdr.AckNumber()),
		WindowSize: hdr.WindowSize(),
	}
	return seg, hdr.SourcePort(), hdr.DestinationPort(), nil
}
