// Package netlink implements the link layer this stack runs TCP over: one
// ARP-caching, frame-queuing NetworkInterface per attached link, and a
// Router that forwards between them by longest-prefix match.
package netlink

import (
	"bytes"
	"net"
	"net/netip"

	ipv4header "github.com/brown-csci1680/iptcp-headers"

	"vtcp/pkg/wire"
)

const (
	arpCacheTTLMs       = 30000
	arpSuppressWindowMs = 5000
)

type arpCacheEntry struct {
	mac        net.HardwareAddr
	learnedAtMs uint64
}

// Link delivers a raw frame to whichever neighbor is reachable at ip. The
// interface addresses frames by IP, not by a resolved transport endpoint;
// an Adapter (pkg/adapter) implements Link over UDP sockets the way the
// teacher simulates a tun/tap device over UDP between virtual hosts.
type Link interface {
	SendFrame(ip netip.Addr, raw []byte) error
}

// outboundFrame is a frame queued for delivery via Link, along with the IP
// of the neighbor it should reach.
type outboundFrame struct {
	ip  netip.Addr
	raw []byte
}

// Interface is one of a host or router's attached links: an IP/prefix/MAC
// triple, an ARP cache, ARP-request suppression, and a one-per-destination
// pending-datagram slot.
type Interface struct {
	Name   string
	IP     netip.Addr
	Prefix netip.Prefix
	MAC    net.HardwareAddr
	Down   bool

	link Link

	cache            map[netip.Addr]arpCacheEntry
	lastARPRequestMs map[netip.Addr]uint64
	pending          map[netip.Addr][]byte
	outbound         []outboundFrame

	nowMs uint64
}

// NewInterface constructs an Interface addressed by ip/prefix/mac, sending
// frames via link.
func NewInterface(name string, ip netip.Addr, prefix netip.Prefix, mac net.HardwareAddr, link Link) *Interface {
	return &Interface{
		Name:             name,
		IP:               ip,
		Prefix:           prefix,
		MAC:              mac,
		link:             link,
		cache:            make(map[netip.Addr]arpCacheEntry),
		lastARPRequestMs: make(map[netip.Addr]uint64),
		pending:          make(map[netip.Addr][]byte),
	}
}

// SendDatagram frames dgram for delivery to ip. If the MAC for ip is
// cached, the frame is queued immediately; otherwise an ARP request is
// queued (subject to 5s suppression) and dgram is held as the one pending
// datagram for ip, overwriting whatever was pending before.
func (i *Interface) SendDatagram(ip netip.Addr, dgram []byte) {
	if i.Down {
		return
	}
	if entry, ok := i.cache[ip]; ok {
		i.queueFrame(ip, entry.mac, wire.EtherTypeIPv4, dgram)
		return
	}

	if last, ok := i.lastARPRequestMs[ip]; !ok || i.nowMs-last >= arpSuppressWindowMs {
		req := wire.EncodeARP(wire.ARPRequest, i.MAC, i.IP, wire.Broadcast, ip)
		i.queueFrame(ip, wire.Broadcast, wire.EtherTypeARP, req)
		i.lastARPRequestMs[ip] = i.nowMs
	}
	i.pending[ip] = dgram
}

// RecvFrame processes one inbound Ethernet frame: ARP is handled entirely
// within the interface (cache learning, suppression, pending flush, reply
// generation); an IPv4 frame is parsed and handed back to the caller — a
// host's protocol dispatch, or a Router's forwarding decision.
func (i *Interface) RecvFrame(raw []byte) (ipv4header.IPv4Header, []byte, bool, error) {
	if i.Down {
		return ipv4header.IPv4Header{}, nil, false, nil
	}
	frame, err := wire.DecodeEthernet(raw)
	if err != nil {
		return ipv4header.IPv4Header{}, nil, false, err
	}
	if !isForUs(frame.Dst, i.MAC) {
		return ipv4header.IPv4Header{}, nil, false, nil
	}

	switch frame.EtherType {
	case wire.EtherTypeARP:
		i.handleARP(frame.Payload)
		return ipv4header.IPv4Header{}, nil, false, nil
	case wire.EtherTypeIPv4:
		hdr, payload, err := wire.DecodeIPv4(frame.Payload)
		if err != nil {
			return ipv4header.IPv4Header{}, nil, false, err
		}
		return hdr, payload, true, nil
	default:
		return ipv4header.IPv4Header{}, nil, false, nil
	}
}

func isForUs(dst, self net.HardwareAddr) bool {
	return bytes.Equal(dst, wire.Broadcast) || bytes.Equal(dst, self)
}

func (i *Interface) handleARP(raw []byte) {
	pkt, err := wire.DecodeARP(raw)
	if err != nil {
		return
	}
	i.cache[pkt.SenderIP] = arpCacheEntry{mac: pkt.SenderMAC, learnedAtMs: i.nowMs}

	switch pkt.Op {
	case wire.ARPReply:
		if dgram, ok := i.pending[pkt.SenderIP]; ok {
			i.queueFrame(pkt.SenderIP, pkt.SenderMAC, wire.EtherTypeIPv4, dgram)
			delete(i.pending, pkt.SenderIP)
		}
	case wire.ARPRequest:
		if pkt.TargetIP == i.IP {
			reply := wire.EncodeARP(wire.ARPReply, i.MAC, i.IP, pkt.SenderMAC, pkt.SenderIP)
			i.queueFrame(pkt.SenderIP, pkt.SenderMAC, wire.EtherTypeARP, reply)
		}
	}
}

func (i *Interface) queueFrame(ip netip.Addr, dstMAC net.HardwareAddr, etherType wire.EtherType, payload []byte) {
	raw := wire.EncodeEthernet(dstMAC, i.MAC, etherType, payload)
	i.outbound = append(i.outbound, outboundFrame{ip: ip, raw: raw})
}

// Tick advances the interface's clock and evicts ARP cache entries and
// request-suppression timestamps older than their TTLs.
func (i *Interface) Tick(ms uint64) {
	i.nowMs += ms
	for ip, entry := range i.cache {
		if i.nowMs-entry.learnedAtMs > arpCacheTTLMs {
			delete(i.cache, ip)
		}
	}
	for ip, t := range i.lastARPRequestMs {
		if i.nowMs-t > arpSuppressWindowMs {
			delete(i.lastARPRequestMs, ip)
		}
	}
}

// MaybeSend pops and sends the head of the outbound frame queue via Link.
// sent is false when the queue was already empty.
func (i *Interface) MaybeSend() (sent bool, err error) {
	if len(i.outbound) == 0 {
		return false, nil
	}
	f := i.outbound[0]
	i.outbound = i.outbound[1:]
	return true, i.link.SendFrame(f.ip, f.raw)
}

// DrainOutbound sends every currently queued outbound frame.
func (i *Interface) DrainOutbound() error {
	for {
		sent, err := i.MaybeSend()
		if err != nil {
			return err
		}
		if !sent {
			return nil
		}
	}
}
