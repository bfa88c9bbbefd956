package netlink

import (
	"net/netip"

	ipv4header "github.com/brown-csci1680/iptcp-headers"

	"vtcp/pkg/wire"
)

// RouteSource distinguishes how a route entry was learned, for CLI
// listings and for RIP's split-horizon/expiry bookkeeping.
type RouteSource int

const (
	RouteDirect RouteSource = iota
	RouteStatic
	RouteRIP
)

func (s RouteSource) String() string {
	switch s {
	case RouteDirect:
		return "L"
	case RouteStatic:
		return "S"
	case RouteRIP:
		return "R"
	default:
		return "?"
	}
}

// Route is one forwarding-table entry: a destination prefix, an optional
// next hop (nil means the destination itself is the next hop, i.e. a
// directly attached network), and the interface to forward out of.
type Route struct {
	Prefix         netip.Prefix
	NextHop        *netip.Addr
	InterfaceIndex int
	Source         RouteSource

	// Cost and LastRefreshMs are meaningful only for RouteRIP entries:
	// Cost is the advertised distance-vector hop count, LastRefreshMs is
	// when this entry was last confirmed by an update.
	Cost          int
	LastRefreshMs uint64
}

// Router forwards IPv4 datagrams between a fixed set of interfaces by
// longest-prefix match, decrementing TTL and recomputing the checksum on
// every hop.
type Router struct {
	interfaces []*Interface
	routes     []Route
}

// NewRouter constructs a Router over the given interfaces, in index order.
func NewRouter(interfaces []*Interface) *Router {
	return &Router{interfaces: interfaces}
}

// AddRoute appends a route. Ties in prefix length are broken by insertion
// order, so routes added earlier win a tie.
func (r *Router) AddRoute(route Route) {
	r.routes = append(r.routes, route)
}

// Routes returns the current forwarding table, for CLI "lr" listings.
func (r *Router) Routes() []Route { return r.routes }

// UpsertRoute inserts route, or — if both route and an existing route to
// the same prefix are RouteRIP entries — replaces that existing route in
// place (preserving its position, and so its tie-break priority) when
// route has lower cost, or equal cost via the same next hop (a refresh);
// otherwise the existing route is kept and route is dropped. A route that
// is not RouteRIP, or whose prefix has no RouteRIP entry yet, is appended. Used by RIP, whose routes must
// be able to improve or expire rather than only ever accumulate.
func (r *Router) UpsertRoute(route Route) {
	for i, existing := range r.routes {
		if existing.Prefix != route.Prefix || existing.Source != RouteRIP || route.Source != RouteRIP {
			continue
		}
		sameNextHop := existing.NextHop != nil && route.NextHop != nil && *existing.NextHop == *route.NextHop
		if route.Cost < existing.Cost || (route.Cost == existing.Cost && sameNextHop) {
			r.routes[i] = route
		}
		return
	}
	r.routes = append(r.routes, route)
}

// RemoveRoute deletes the route to prefix learned from source, if any.
func (r *Router) RemoveRoute(prefix netip.Prefix, source RouteSource) {
	out := r.routes[:0]
	for _, route := range r.routes {
		if route.Prefix == prefix && route.Source == source {
			continue
		}
		out = append(out, route)
	}
	r.routes = out
}

// Interfaces returns the router's attached interfaces, for CLI "li" listings.
func (r *Router) Interfaces() []*Interface { return r.interfaces }

// Route applies the forwarding decision to one datagram received from the
// wire: decrement TTL (dropping if it was or becomes zero),
// recompute the header checksum, find the longest-prefix-match route, and
// forward via that route's interface. It is called once per datagram as
// the adapter's event loop reads frames off the wire — equivalent to
// repeatedly draining each interface's maybe_receive() in a batch poll.
func (r *Router) Route(hdr ipv4header.IPv4Header, payload []byte) error {
	if hdr.TTL == 0 {
		return nil
	}
	hdr.TTL--
	if hdr.TTL == 0 {
		return nil
	}

	route, ok := r.longestMatch(hdr.Dst)
	if !ok {
		return nil
	}

	nextHop := hdr.Dst
	if route.NextHop != nil {
		nextHop = *route.NextHop
	}

	raw, err := wire.EncodeIPv4(hdr.Src, hdr.Dst, hdr.Protocol, hdr.TTL, payload)
	if err != nil {
		return err
	}
	r.interfaces[route.InterfaceIndex].SendDatagram(nextHop, raw)
	return nil
}

// Resolve performs the same longest-prefix-match lookup Route uses
// internally, exposed for locally originated datagrams that need to know
// which interface and next hop to send through without the TTL/forwarding
// bookkeeping that only applies to datagrams received from the wire.
func (r *Router) Resolve(dst netip.Addr) (Route, bool) {
	return r.longestMatch(dst)
}

func (r *Router) longestMatch(dst netip.Addr) (Route, bool) {
	var best Route
	found := false
	for _, route := range r.routes {
		if !route.Prefix.Contains(dst) {
			continue
		}
		if !found || route.Prefix.Bits() > best.Prefix.Bits() {
			best = route
			found = true
		}
	}
	return best, found
}

// Tick advances every attached interface's clock.
func (r *Router) Tick(ms uint64) {
	for _, iface := range r.interfaces {
		iface.Tick(ms)
	}
}
