package adapter

import (
	"net/netip"
	"testing"
	"time"

	"vtcp/pkg/config"
)

func newLoopbackStackPair(t *testing.T) (*TCPStack, *TCPStack) {
	t.Helper()
	addrA := freePort(t)
	addrB := freePort(t)
	ipA := netip.MustParseAddr("10.0.0.1")
	ipB := netip.MustParseAddr("10.0.0.2")

	cfgA := config.Config{
		Interfaces: []config.InterfaceConfig{{Name: "eth0", IP: ipA, Prefix: netip.MustParsePrefix("10.0.0.0/24"), UDPAddr: addrA}},
		Neighbors:  []config.NeighborConfig{{InterfaceName: "eth0", IP: ipB, UDPAddr: addrB}},
	}
	cfgB := config.Config{
		Interfaces: []config.InterfaceConfig{{Name: "eth0", IP: ipB, Prefix: netip.MustParsePrefix("10.0.0.0/24"), UDPAddr: addrB}},
		Neighbors:  []config.NeighborConfig{{InterfaceName: "eth0", IP: ipA, UDPAddr: addrA}},
	}

	ipStackA, err := NewIPStack(cfgA)
	if err != nil {
		t.Fatalf("NewIPStack(A): %v", err)
	}
	ipStackB, err := NewIPStack(cfgB)
	if err != nil {
		t.Fatalf("NewIPStack(B): %v", err)
	}
	ipStackA.Listen()
	ipStackB.Listen()

	return NewTCPStack(ipStackA, ipA), NewTCPStack(ipStackB, ipB)
}

func TestTCPStackConnectAcceptAndTransfer(t *testing.T) {
	client, server := newLoopbackStackPair(t)

	listener, err := server.VListen(7000)
	if err != nil {
		t.Fatalf("VListen: %v", err)
	}

	accepted := make(chan *Conn, 1)
	go func() {
		conn, err := listener.VAccept()
		if err != nil {
			t.Errorf("VAccept: %v", err)
			return
		}
		accepted <- conn
	}()

	serverAddr := netip.MustParseAddr("10.0.0.2")
	clientConn, err := client.VConnect(serverAddr, 7000)
	if err != nil {
		t.Fatalf("VConnect: %v", err)
	}

	var serverConn *Conn
	select {
	case serverConn = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the server to accept the connection")
	}

	if _, err := clientConn.VWrite([]byte("hello there")); err != nil {
		t.Fatalf("VWrite: %v", err)
	}
	clientConn.VClose()

	buf := make([]byte, 64)
	total := 0
	deadline := time.After(2 * time.Second)
	for total < len("hello there") {
		readCh := make(chan int, 1)
		go func() {
			n, _ := serverConn.VRead(buf[total:])
			readCh <- n
		}()
		select {
		case n := <-readCh:
			total += n
		case <-deadline:
			t.Fatalf("timed out reading; got %q so far", buf[:total])
		}
	}
	if got := string(buf[:total]); got != "hello there" {
		t.Fatalf("server read %q, want %q", got, "hello there")
	}
}

func TestTCPStackVListenDuplicatePortFails(t *testing.T) {
	_, server := newLoopbackStackPair(t)
	if _, err := server.VListen(8000); err != nil {
		t.Fatalf("first VListen: %v", err)
	}
	if _, err := server.VListen(8000); err == nil {
		t.Fatal("second VListen on the same port succeeded, want an error")
	}
}
