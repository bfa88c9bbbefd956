// Package config parses the .lnx-style interface/neighbor/route description
// files used to bring up a vhost or vrouter, in the teacher's own plain
// bufio.Scanner line-parsing idiom (no third-party config library appears
// anywhere in the retrieval pack for this purpose).
package config

import (
	"bufio"
	"net/netip"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"vtcp/pkg/wire"
)

// RoutingMode selects how a node populates its forwarding table.
type RoutingMode int

const (
	RoutingNone RoutingMode = iota
	RoutingStatic
	RoutingRIP
)

// InterfaceConfig describes one attached link.
type InterfaceConfig struct {
	Name     string
	IP       netip.Addr
	Prefix   netip.Prefix
	UDPAddr  string // host:port this interface listens on
}

// NeighborConfig describes a reachable peer over a named interface.
type NeighborConfig struct {
	InterfaceName string
	IP            netip.Addr
	UDPAddr       string
}

// StaticRoute is one `route` line under `routing static`.
type StaticRoute struct {
	Prefix  netip.Prefix
	NextHop netip.Addr
}

// Config is everything parsed out of one .lnx file.
type Config struct {
	Interfaces    []InterfaceConfig
	Neighbors     []NeighborConfig
	RoutingMode   RoutingMode
	StaticRoutes  []StaticRoute
	RIPNeighbors  []netip.Addr // `rip advertise-to <ip>` lines
	RIPPeriodicMs uint64
}

// Parse reads and parses a .lnx file from path.
func Parse(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "open config file")
	}
	defer f.Close()

	var cfg Config
	cfg.RIPPeriodicMs = 5000

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)

		switch fields[0] {
		case "interface":
			ic, err := parseInterface(fields)
			if err != nil {
				return Config{}, errors.Wrapf(err, "line %d", lineNo)
			}
			cfg.Interfaces = append(cfg.Interfaces, ic)

		case "neighbor":
			nc, err := parseNeighbor(fields)
			if err != nil {
				return Config{}, errors.Wrapf(err, "line %d", lineNo)
			}
			cfg.Neighbors = append(cfg.Neighbors, nc)

		case "routing":
			if len(fields) < 2 {
				return Config{}, errors.Errorf("line %d: routing needs a mode", lineNo)
			}
			switch fields[1] {
			case "static":
				cfg.RoutingMode = RoutingStatic
			case "rip":
				cfg.RoutingMode = RoutingRIP
			default:
				return Config{}, errors.Errorf("line %d: unknown routing mode %q", lineNo, fields[1])
			}

		case "route":
			sr, err := parseRoute(fields)
			if err != nil {
				return Config{}, errors.Wrapf(err, "line %d", lineNo)
			}
			cfg.StaticRoutes = append(cfg.StaticRoutes, sr)

		case "rip":
			ip, err := parseRIPAdvertiseTo(fields)
			if err != nil {
				return Config{}, errors.Wrapf(err, "line %d", lineNo)
			}
			cfg.RIPNeighbors = append(cfg.RIPNeighbors, ip)

		default:
			return Config{}, errors.Errorf("line %d: unrecognized directive %q", lineNo, fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return Config{}, errors.Wrap(err, "scan config file")
	}
	return cfg, nil
}

// parseInterface handles: interface <name> <ip>/<prefix-or-dotted-mask> <udp-host:port>
func parseInterface(fields []string) (InterfaceConfig, error) {
	if len(fields) != 4 {
		return InterfaceConfig{}, errors.New("interface needs name, ip/mask, and udp address")
	}
	ip, prefix, err := parseIPAndMask(fields[2])
	if err != nil {
		return InterfaceConfig{}, err
	}
	return InterfaceConfig{Name: fields[1], IP: ip, Prefix: prefix, UDPAddr: fields[3]}, nil
}

// parseNeighbor handles: neighbor <ip> at <udp-host:port> via <ifname>
func parseNeighbor(fields []string) (NeighborConfig, error) {
	if len(fields) != 6 || fields[2] != "at" || fields[4] != "via" {
		return NeighborConfig{}, errors.New("expected: neighbor <ip> at <udp-addr> via <ifname>")
	}
	ip, err := netip.ParseAddr(fields[1])
	if err != nil {
		return NeighborConfig{}, errors.Wrap(err, "parse neighbor ip")
	}
	return NeighborConfig{IP: ip, UDPAddr: fields[3], InterfaceName: fields[5]}, nil
}

// parseRoute handles: route <prefix> via <nexthop-ip>
func parseRoute(fields []string) (StaticRoute, error) {
	if len(fields) != 4 || fields[2] != "via" {
		return StaticRoute{}, errors.New("expected: route <prefix> via <nexthop-ip>")
	}
	prefix, err := netip.ParsePrefix(fields[1])
	if err != nil {
		return StaticRoute{}, errors.Wrap(err, "parse route prefix")
	}
	nextHop, err := netip.ParseAddr(fields[3])
	if err != nil {
		return StaticRoute{}, errors.Wrap(err, "parse route next hop")
	}
	return StaticRoute{Prefix: prefix, NextHop: nextHop}, nil
}

// parseRIPAdvertiseTo handles: rip advertise-to <ip>
func parseRIPAdvertiseTo(fields []string) (netip.Addr, error) {
	if len(fields) != 3 || fields[1] != "advertise-to" {
		return netip.Addr{}, errors.New("expected: rip advertise-to <ip>")
	}
	return netip.ParseAddr(fields[2])
}

// parseIPAndMask accepts either CIDR form (10.0.0.1/24) or a dotted-decimal
// mask (10.0.0.1/255.255.255.0), recovering the prefix length from the
// dotted form via a population count of the mask's bytes.
func parseIPAndMask(s string) (netip.Addr, netip.Prefix, error) {
	slash := strings.IndexByte(s, '/')
	if slash < 0 {
		return netip.Addr{}, netip.Prefix{}, errors.Errorf("expected ip/mask, got %q", s)
	}
	ip, err := netip.ParseAddr(s[:slash])
	if err != nil {
		return netip.Addr{}, netip.Prefix{}, errors.Wrap(err, "parse interface ip")
	}

	maskPart := s[slash+1:]
	var length int
	if maskAddr, err := netip.ParseAddr(maskPart); err == nil && maskAddr.Is4() {
		b := maskAddr.As4()
		mask := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
		length = wire.PrefixLenOfMask(mask)
	} else {
		length, err = strconv.Atoi(maskPart)
		if err != nil {
			return netip.Addr{}, netip.Prefix{}, errors.Wrapf(err, "parse prefix length %q", maskPart)
		}
	}

	prefix, err := netip.ParsePrefix(ip.String() + "/" + strconv.Itoa(length))
	if err != nil {
		return netip.Addr{}, netip.Prefix{}, errors.Wrap(err, "build prefix")
	}
	return ip, prefix, nil
}
