package wire

import (
	"net"
	"net/netip"

	"github.com/google/netstack/tcpip/header"
	"github.com/pkg/errors"
)

// ARPOp is an ARP operation code (request or reply).
type ARPOp uint16

const (
	ARPRequest = ARPOp(header.ARPRequest)
	ARPReply   = ARPOp(header.ARPReply)
)

// EncodeARP builds an IPv4-over-Ethernet ARP packet.
func EncodeARP(op ARPOp, senderMAC net.HardwareAddr, senderIP netip.Addr, targetMAC net.HardwareAddr, targetIP netip.Addr) []byte {
	buf := make(header.ARP, header.ARPSize)
	buf.SetIPv4OverEthernet()
	buf.SetOp(header.ARPOp(op))
	senderIPBytes := senderIP.As4()
	targetIPBytes := targetIP.As4()
	copy(buf.HardwareAddressSender(), senderMAC)
	copy(buf.ProtocolAddressSender(), senderIPBytes[:])
	copy(buf.HardwareAddressTarget(), targetMAC)
	copy(buf.ProtocolAddressTarget(), targetIPBytes[:])
	return buf
}

// ARPPacket is a parsed IPv4-over-Ethernet ARP packet.
type ARPPacket struct {
	Op        ARPOp
	SenderMAC net.HardwareAddr
	SenderIP  netip.Addr
	TargetMAC net.HardwareAddr
	TargetIP  netip.Addr
}

// DecodeARP parses a raw ARP packet, rejecting anything that isn't
// IPv4-over-Ethernet.
func DecodeARP(raw []byte) (ARPPacket, error) {
	if len(raw) < header.ARPSize {
		return ARPPacket{}, errors.New("arp packet shorter than minimum size")
	}
	buf := header.ARP(raw)
	if !buf.IsValid() {
		return ARPPacket{}, errors.New("arp packet is not ipv4-over-ethernet")
	}
	senderIP, ok := netip.AddrFromSlice(buf.ProtocolAddressSender())
	if !ok {
		return ARPPacket{}, errors.New("bad arp sender protocol address")
	}
	targetIP, ok := netip.AddrFromSlice(buf.ProtocolAddressTarget())
	if !ok {
		return ARPPacket{}, errors.New("bad arp target protocol address")
	}
	return ARPPacket{
		Op:        ARPOp(buf.Op()),
		SenderMAC: net.HardwareAddr(buf.HardwareAddressSender()),
		SenderIP:  senderIP,
		TargetMAC: net.HardwareAddr(buf.HardwareAddressTarget()),
		TargetIP:  targetIP,
	}, nil
}
