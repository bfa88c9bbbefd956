package adapter

import (
	"net"
	"net/netip"
	"time"

	ipv4header "github.com/brown-csci1680/iptcp-headers"
	"github.com/pkg/errors"

	"vtcp/pkg/config"
	"vtcp/pkg/netlink"
	"vtcp/pkg/wire"
)

// HandlerFunc processes one IPv4 datagram addressed to this node, the way
// the teacher's Handler_table dispatches by protocol number.
type HandlerFunc func(hdr ipv4header.IPv4Header, payload []byte, ifaceIndex int)

// IPStack is one node's complete IP layer: its interfaces, their UDP
// links, a router for forwarding, and a protocol-number dispatch table for
// datagrams addressed to itself.
type IPStack struct {
	Interfaces  []*netlink.Interface
	links       []*UDPLink
	nameToIndex map[string]int
	router      *netlink.Router
	handlers    map[int]HandlerFunc
	neighbors   []config.NeighborConfig
}

// NewIPStack brings up every interface named in cfg, wires static routes
// (direct-attachment routes for each interface's own prefix, plus any
// `route` lines), and returns a stack ready to RegisterHandler and Listen.
func NewIPStack(cfg config.Config) (*IPStack, error) {
	stack := &IPStack{nameToIndex: make(map[string]int), handlers: make(map[int]HandlerFunc), neighbors: cfg.Neighbors}

	for _, ic := range cfg.Interfaces {
		neighbors := make(map[netip.Addr]string)
		for _, nc := range cfg.Neighbors {
			if nc.InterfaceName == ic.Name {
				neighbors[nc.IP] = nc.UDPAddr
			}
		}
		link, err := NewUDPLink(ic.UDPAddr, neighbors)
		if err != nil {
			return nil, errors.Wrapf(err, "bring up interface %s", ic.Name)
		}
		iface := netlink.NewInterface(ic.Name, ic.IP, ic.Prefix, macForIP(ic.IP), link)
		stack.nameToIndex[ic.Name] = len(stack.Interfaces)
		stack.Interfaces = append(stack.Interfaces, iface)
		stack.links = append(stack.links, link)
	}

	stack.router = netlink.NewRouter(stack.Interfaces)
	for idx, ic := range cfg.Interfaces {
		stack.router.AddRoute(netlink.Route{Prefix: ic.Prefix, InterfaceIndex: idx, Source: netlink.RouteDirect})
	}
	for _, sr := range cfg.StaticRoutes {
		idx, ok := stack.interfaceTowards(sr.NextHop)
		if !ok {
			return nil, errors.Errorf("no attached interface reaches next hop %s", sr.NextHop)
		}
		nextHop := sr.NextHop
		stack.router.AddRoute(netlink.Route{Prefix: sr.Prefix, NextHop: &nextHop, InterfaceIndex: idx, Source: netlink.RouteStatic})
	}
	return stack, nil
}

// macForIP synthesizes a deterministic, locally-administered MAC from an
// interface's IPv4 address. The .lnx config format carries no MAC field —
// the teacher's own link simulation addresses everything by IP alone — so
// this stack needs a stand-in MAC purely to drive the ARP/Ethernet framing
// spec §4.6/§6 require.
func macForIP(ip netip.Addr) net.HardwareAddr {
	b := ip.As4()
	return net.HardwareAddr{0x02, 0x00, b[0], b[1], b[2], b[3]}
}

func (s *IPStack) interfaceTowards(nextHop netip.Addr) (int, bool) {
	for idx, iface := range s.Interfaces {
		if iface.Prefix.Contains(nextHop) {
			return idx, true
		}
	}
	return 0, false
}

// RegisterHandler installs h as the dispatch target for protocol.
func (s *IPStack) RegisterHandler(protocol int, h HandlerFunc) {
	s.handlers[protocol] = h
}

// Router exposes the underlying Router, for RIP and CLI listings.
func (s *IPStack) Router() *netlink.Router { return s.router }

// Neighbors returns the configured neighbor list, for "ln" CLI listings.
func (s *IPStack) Neighbors() []config.NeighborConfig { return s.neighbors }

// InterfaceIndex looks up an interface by name.
func (s *IPStack) InterfaceIndex(name string) (int, bool) {
	idx, ok := s.nameToIndex[name]
	return idx, ok
}

// SendIP sends payload to dst under protocol, resolving the outgoing
// interface and next hop via the router's forwarding table.
func (s *IPStack) SendIP(dst netip.Addr, protocol int, payload []byte) error {
	route, ok := s.router.Resolve(dst)
	if !ok {
		return errors.Errorf("no route to %s", dst)
	}
	iface := s.Interfaces[route.InterfaceIndex]
	nextHop := dst
	if route.NextHop != nil {
		nextHop = *route.NextHop
	}
	raw, err := wire.EncodeIPv4(iface.IP, dst, protocol, wire.DefaultTTL, payload)
	if err != nil {
		return errors.Wrap(err, "encode ipv4 datagram")
	}
	iface.SendDatagram(nextHop, raw)
	return iface.DrainOutbound()
}

// Listen starts one goroutine per interface that reads frames off its UDP
// link forever, plus the clock-tick goroutine, and returns immediately.
// Each frame is dispatched: ARP is handled inside RecvFrame; an IPv4 datagram
// addressed to one of this node's own interfaces goes to the registered
// protocol handler, otherwise it's handed to the router for forwarding.
func (s *IPStack) Listen() {
	for idx := range s.Interfaces {
		go s.listenOn(idx)
	}
	go s.tickLoop()
}

func (s *IPStack) listenOn(idx int) {
	iface := s.Interfaces[idx]
	link := s.links[idx]
	for {
		raw, err := link.ReadFrame()
		if err != nil {
			return
		}
		hdr, payload, ok, err := iface.RecvFrame(raw)
		if err != nil || !ok {
			iface.DrainOutbound()
			continue
		}
		if s.isLocal(hdr.Dst) {
			if h, ok := s.handlers[hdr.Protocol]; ok {
				h(hdr, payload, idx)
			}
		} else {
			s.router.Route(hdr, payload)
		}
		for _, other := range s.Interfaces {
			other.DrainOutbound()
		}
	}
}

func (s *IPStack) isLocal(ip netip.Addr) bool {
	for _, iface := range s.Interfaces {
		if iface.IP == ip {
			return true
		}
	}
	return false
}

func (s *IPStack) tickLoop() {
	const tick = 1000 * time.Millisecond
	for range time.Tick(tick) {
		s.router.Tick(uint64(tick / time.Millisecond))
	}
}
