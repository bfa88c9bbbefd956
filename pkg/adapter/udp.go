// Package adapter wires netlink's Interfaces and Router to real UDP
// sockets — the teacher's own way of simulating a tun/tap device between
// virtual hosts — and drives the per-connection TCP worker loop on top.
package adapter

import (
	"net"
	"net/netip"

	"github.com/pkg/errors"
)

// UDPLink implements netlink.Link over a UDP socket, the way the teacher's
// Interface.Conn/iface.Udp pair simulates a point-to-point link.
type UDPLink struct {
	conn      *net.UDPConn
	neighbors map[netip.Addr]*net.UDPAddr
}

// NewUDPLink binds a UDP socket at bindAddr and resolves every neighbor's
// UDP address up front.
func NewUDPLink(bindAddr string, neighbors map[netip.Addr]string) (*UDPLink, error) {
	laddr, err := net.ResolveUDPAddr("udp4", bindAddr)
	if err != nil {
		return nil, errors.Wrap(err, "resolve bind address")
	}
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, errors.Wrap(err, "listen udp")
	}

	resolved := make(map[netip.Addr]*net.UDPAddr, len(neighbors))
	for ip, addr := range neighbors {
		ua, err := net.ResolveUDPAddr("udp4", addr)
		if err != nil {
			return nil, errors.Wrapf(err, "resolve neighbor address %q", addr)
		}
		resolved[ip] = ua
	}
	return &UDPLink{conn: conn, neighbors: resolved}, nil
}

// SendFrame implements netlink.Link.
func (l *UDPLink) SendFrame(ip netip.Addr, raw []byte) error {
	addr, ok := l.neighbors[ip]
	if !ok {
		return errors.Errorf("no neighbor reachable at %s", ip)
	}
	_, err := l.conn.WriteToUDP(raw, addr)
	return errors.Wrapf(err, "write frame to %s", ip)
}

// AddNeighbor learns a new neighbor's UDP address at runtime (used when a
// peer's address is supplied outside of the static config, e.g. a RIP
// neighbor discovered dynamically).
func (l *UDPLink) AddNeighbor(ip netip.Addr, addr *net.UDPAddr) {
	l.neighbors[ip] = addr
}

// ReadFrame blocks for the next datagram and returns its raw bytes.
func (l *UDPLink) ReadFrame() ([]byte, error) {
	buf := make([]byte, 65535)
	n, _, err := l.conn.ReadFromUDP(buf)
	if err != nil {
		return nil, errors.Wrap(err, "read frame")
	}
	return buf[:n], nil
}

// Close releases the underlying socket.
func (l *UDPLink) Close() error { return l.conn.Close() }
