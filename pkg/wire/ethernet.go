package wire

import (
	"net"

	"github.com/google/netstack/tcpip"
	"github.com/google/netstack/tcpip/header"
	"github.com/pkg/errors"
)

// Broadcast is the Ethernet broadcast address.
var Broadcast = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// EtherType identifies the payload carried by an Ethernet frame.
type EtherType uint16

const (
	EtherTypeIPv4 = EtherType(header.IPv4ProtocolNumber)
	EtherTypeARP  = EtherType(header.ARPProtocolNumber)
)

func linkAddrOf(mac net.HardwareAddr) tcpip.LinkAddress { return tcpip.LinkAddress(mac) }

// EncodeEthernet wraps payload in an Ethernet II frame.
func EncodeEthernet(dst, src net.HardwareAddr, etherType EtherType, payload []byte) []byte {
	buf := make(header.Ethernet, header.EthernetMinimumSize+len(payload))
	buf.Encode(&header.EthernetFields{
		SrcAddr: linkAddrOf(src),
		DstAddr: linkAddrOf(dst),
		Type:    tcpip.NetworkProtocolNumber(etherType),
	})
	copy(buf[header.EthernetMinimumSize:], payload)
	return buf
}

// EthernetFrame is a parsed Ethernet II frame.
type EthernetFrame struct {
	Dst, Src  net.HardwareAddr
	EtherType EtherType
	Payload   []byte
}

// DecodeEthernet parses a raw frame.
func DecodeEthernet(raw []byte) (EthernetFrame, error) {
	if len(raw) < header.EthernetMinimumSize {
		return EthernetFrame{}, errors.New("ethernet frame shorter than minimum header")
	}
	hdr := header.Ethernet(raw)
	return EthernetFrame{
		Dst:       net.HardwareAddr(hdr.DestinationAddress()),
		Src:       net.HardwareAddr(hdr.SourceAddress()),
		EtherType: EtherType(hdr.Type()),
		Payload:   raw[header.EthernetMinimumSize:],
	}, nil
}
