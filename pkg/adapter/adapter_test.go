package adapter

import (
	"net"
	"net/netip"
	"testing"
	"time"

	ipv4header "github.com/brown-csci1680/iptcp-headers"

	"vtcp/pkg/config"
)

// freePort binds an ephemeral UDP port, closes it, and returns its address
// so two stacks under test can be configured to talk to each other before
// either is actually listening.
func freePort(t *testing.T) string {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("reserve ephemeral port: %v", err)
	}
	addr := conn.LocalAddr().String()
	conn.Close()
	return addr
}

func TestNewIPStackWiresDirectRoute(t *testing.T) {
	cfg := config.Config{
		Interfaces: []config.InterfaceConfig{
			{Name: "eth0", IP: netip.MustParseAddr("10.0.0.1"), Prefix: netip.MustParsePrefix("10.0.0.0/24"), UDPAddr: freePort(t)},
		},
	}
	stack, err := NewIPStack(cfg)
	if err != nil {
		t.Fatalf("NewIPStack: %v", err)
	}
	defer stack.links[0].Close()

	routes := stack.Router().Routes()
	if len(routes) != 1 || routes[0].Prefix.String() != "10.0.0.0/24" {
		t.Fatalf("routes = %+v, want one direct route for 10.0.0.0/24", routes)
	}
}

func TestSendIPFailsWithNoRoute(t *testing.T) {
	cfg := config.Config{
		Interfaces: []config.InterfaceConfig{
			{Name: "eth0", IP: netip.MustParseAddr("10.0.0.1"), Prefix: netip.MustParsePrefix("10.0.0.0/24"), UDPAddr: freePort(t)},
		},
	}
	stack, err := NewIPStack(cfg)
	if err != nil {
		t.Fatalf("NewIPStack: %v", err)
	}
	defer stack.links[0].Close()

	err = stack.SendIP(netip.MustParseAddr("192.168.9.9"), 10, []byte("x"))
	if err == nil {
		t.Fatal("SendIP succeeded with no matching route, want an error")
	}
}

func TestSendIPDeliversAcrossStacksViaARP(t *testing.T) {
	addrA := freePort(t)
	addrB := freePort(t)

	cfgA := config.Config{
		Interfaces: []config.InterfaceConfig{
			{Name: "eth0", IP: netip.MustParseAddr("10.0.0.1"), Prefix: netip.MustParsePrefix("10.0.0.0/24"), UDPAddr: addrA},
		},
		Neighbors: []config.NeighborConfig{
			{InterfaceName: "eth0", IP: netip.MustParseAddr("10.0.0.2"), UDPAddr: addrB},
		},
	}
	cfgB := config.Config{
		Interfaces: []config.InterfaceConfig{
			{Name: "eth0", IP: netip.MustParseAddr("10.0.0.2"), Prefix: netip.MustParsePrefix("10.0.0.0/24"), UDPAddr: addrB},
		},
		Neighbors: []config.NeighborConfig{
			{InterfaceName: "eth0", IP: netip.MustParseAddr("10.0.0.1"), UDPAddr: addrA},
		},
	}

	stackA, err := NewIPStack(cfgA)
	if err != nil {
		t.Fatalf("NewIPStack(A): %v", err)
	}
	stackB, err := NewIPStack(cfgB)
	if err != nil {
		t.Fatalf("NewIPStack(B): %v", err)
	}
	defer stackA.links[0].Close()
	defer stackB.links[0].Close()

	received := make(chan string, 1)
	stackB.RegisterHandler(10, func(hdr ipv4header.IPv4Header, payload []byte, ifaceIndex int) {
		received <- string(payload)
	})

	stackA.Listen()
	stackB.Listen()

	if err := stackA.SendIP(netip.MustParseAddr("10.0.0.2"), 10, []byte("hello")); err != nil {
		t.Fatalf("SendIP: %v", err)
	}

	select {
	case got := <-received:
		if got != "hello" {
			t.Fatalf("received payload %q, want %q", got, "hello")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the datagram to arrive (ARP resolution or delivery failed)")
	}
}
