package adapter

import (
	"fmt"
	"log"
	"math/rand/v2"
	"net/netip"
	"os"
	"sync"
	"time"

	ipv4header "github.com/brown-csci1680/iptcp-headers"
	"github.com/pkg/errors"

	"vtcp/pkg/tcpproto"
	"vtcp/pkg/tcpseg"
	"vtcp/pkg/wire"
)

var logger = log.New(os.Stderr, "vtcp: ", log.LstdFlags)

const workerTickMs = 10

type fourTuple struct {
	localAddr  netip.Addr
	localPort  uint16
	remoteAddr netip.Addr
	remotePort uint16
}

// Conn is one established or in-progress TCP connection: a Peer plus the
// addressing needed to frame and route its segments.
type Conn struct {
	ID    uint16
	tuple fourTuple
	stack *TCPStack

	mu   sync.Mutex
	peer *tcpproto.Peer

	established     chan struct{}
	establishedOnce sync.Once
	done            chan struct{}
}

// Listener is a passive-open socket accepting inbound connections on one
// local port.
type Listener struct {
	ID      uint16
	port    uint16
	backlog chan *Conn
}

// VAccept blocks for the next inbound connection.
func (l *Listener) VAccept() (*Conn, error) {
	conn, ok := <-l.backlog
	if !ok {
		return nil, errors.New("listener closed")
	}
	return conn, nil
}

// TCPStack is one node's TCP layer: the socket registry (connections and
// listeners, keyed the way the teacher's ConnectionsTable/ListenTable are)
// sitting on top of an IPStack.
type TCPStack struct {
	ip     *IPStack
	selfIP netip.Addr

	mu              sync.Mutex
	nextSocketID    uint32
	socketIDToTuple map[uint32]fourTuple
	connections     map[fourTuple]*Conn
	listeners       map[uint16]*Listener
}

// NewTCPStack registers TCP's protocol handler on ip and returns a fresh,
// empty socket registry.
func NewTCPStack(ip *IPStack, selfIP netip.Addr) *TCPStack {
	s := &TCPStack{
		ip:              ip,
		selfIP:          selfIP,
		socketIDToTuple: make(map[uint32]fourTuple),
		connections:     make(map[fourTuple]*Conn),
		listeners:       make(map[uint16]*Listener),
	}
	ip.RegisterHandler(wire.ProtocolTCP, s.handleSegment)
	return s
}

func (s *TCPStack) handleSegment(hdr ipv4header.IPv4Header, payload []byte, _ int) {
	seg, srcPort, dstPort, err := wire.DecodeTCP(payload)
	if err != nil {
		logger.Printf("drop malformed tcp segment from %s: %v", hdr.Src, err)
		return
	}
	tuple := fourTuple{localAddr: hdr.Dst, localPort: dstPort, remoteAddr: hdr.Src, remotePort: srcPort}

	s.mu.Lock()
	conn, exists := s.connections[tuple]
	listener, listening := s.listeners[dstPort]
	s.mu.Unlock()

	if exists {
		conn.mu.Lock()
		conn.peer.Receive(seg)
		conn.mu.Unlock()
		conn.checkEstablished()
		return
	}

	if listening && seg.SYN {
		conn = s.newConn(tuple, tcpproto.DefaultConfig())
		conn.mu.Lock()
		conn.peer.Receive(seg)
		conn.mu.Unlock()
		go s.workerLoop(conn)
		select {
		case listener.backlog <- conn:
		default:
			logger.Printf("listener backlog full for port %d, dropping connection from %s:%d", dstPort, hdr.Src, srcPort)
		}
		return
	}

	logger.Printf("drop segment for unknown connection %+v", tuple)
}

func (c *Conn) checkEstablished() {
	c.mu.Lock()
	active := c.peer.SenderState() != tcpproto.StateSynSent && c.peer.SenderState() != tcpproto.StateClosed
	c.mu.Unlock()
	if active {
		c.establishedOnce.Do(func() { close(c.established) })
	}
}

func (s *TCPStack) newConn(tuple fourTuple, cfg tcpproto.Config) *Conn {
	conn := &Conn{
		tuple:       tuple,
		stack:       s,
		peer:        tcpproto.NewPeer(cfg),
		established: make(chan struct{}),
		done:        make(chan struct{}),
	}
	s.mu.Lock()
	conn.ID = uint16(s.nextSocketID)
	s.socketIDToTuple[s.nextSocketID] = tuple
	s.nextSocketID++
	s.connections[tuple] = conn
	s.mu.Unlock()
	return conn
}

// VListen opens a passive socket on port.
func (s *TCPStack) VListen(port uint16) (*Listener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.listeners[port]; exists {
		return nil, errors.Errorf("port %d already listening", port)
	}
	l := &Listener{ID: uint16(s.nextSocketID), port: port, backlog: make(chan *Conn, 16)}
	s.socketIDToTuple[s.nextSocketID] = fourTuple{localPort: port}
	s.nextSocketID++
	s.listeners[port] = l
	return l, nil
}

// VConnect opens an active socket to ip:port and blocks until the
// handshake completes.
func (s *TCPStack) VConnect(ip netip.Addr, port uint16) (*Conn, error) {
	localPort := uint16(1024 + rand.IntN(64512))
	tuple := fourTuple{localAddr: s.selfIP, localPort: localPort, remoteAddr: ip, remotePort: port}
	conn := s.newConn(tuple, tcpproto.DefaultConfig())

	conn.mu.Lock()
	conn.peer.Connect()
	conn.mu.Unlock()
	go s.workerLoop(conn)

	<-conn.established
	return conn, nil
}

// VWrite pushes as much of data as the outbound stream currently has room
// for, returning the number of bytes accepted.
func (c *Conn) VWrite(data []byte) (int, error) {
	c.mu.Lock()
	w := c.peer.OutboundWriter()
	avail := w.AvailableCapacity()
	n := uint64(len(data))
	if n > avail {
		n = avail
	}
	w.Push(data[:n])
	c.mu.Unlock()
	return int(n), nil
}

// VRead blocks until at least one byte (or EOF) is available, then copies
// up to len(buf) bytes into it.
func (c *Conn) VRead(buf []byte) (int, error) {
	for {
		c.mu.Lock()
		r := c.peer.InboundReader()
		buffered := r.BytesBuffered()
		finished := r.IsFinished()
		if buffered > 0 || finished {
			n := uint64(len(buf))
			if n > buffered {
				n = buffered
			}
			copy(buf, r.Peek()[:n])
			r.Pop(n)
			c.mu.Unlock()
			if n == 0 && finished {
				return 0, errors.New("connection closed")
			}
			return int(n), nil
		}
		c.mu.Unlock()
		time.Sleep(workerTickMs * time.Millisecond)
	}
}

// VClose half-closes the outbound side, triggering a FIN once everything
// already written has been sent.
func (c *Conn) VClose() {
	c.mu.Lock()
	c.peer.OutboundWriter().Close()
	c.mu.Unlock()
}

func (s *TCPStack) workerLoop(conn *Conn) {
	ticker := time.NewTicker(workerTickMs * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		conn.mu.Lock()
		conn.peer.Tick(workerTickMs)
		segs := conn.peer.Send()
		active := conn.peer.Active()
		conn.mu.Unlock()

		conn.checkEstablished()
		for _, seg := range segs {
			if err := s.transmit(conn.tuple, seg); err != nil {
				logger.Printf("transmit error on %+v: %v", conn.tuple, err)
			}
		}
		if !active {
			close(conn.done)
			s.mu.Lock()
			delete(s.connections, conn.tuple)
			s.mu.Unlock()
			return
		}
	}
}

func (s *TCPStack) transmit(tuple fourTuple, seg tcpseg.Segment) error {
	raw := wire.EncodeTCP(seg, tuple.localPort, tuple.remotePort, tuple.localAddr, tuple.remoteAddr)
	return s.ip.SendIP(tuple.remoteAddr, wire.ProtocolTCP, raw)
}

// ListSockets renders the socket table the way the teacher's "ls" command
// does.
func (s *TCPStack) ListSockets() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := "SID  LAddr           LPort  RAddr           RPort  Status"
	for id := uint32(0); id < s.nextSocketID; id++ {
		tuple := s.socketIDToTuple[id]
		if conn, ok := s.connections[tuple]; ok {
			conn.mu.Lock()
			status := conn.peer.SenderState()
			conn.mu.Unlock()
			res += fmt.Sprintf("\n%-4d %-15s %-6d %-15s %-6d %v",
				id, tuple.localAddr, tuple.localPort, tuple.remoteAddr, tuple.remotePort, status)
			continue
		}
		if l, ok := s.listeners[tuple.localPort]; ok {
			res += fmt.Sprintf("\n%-4d %-15s %-6d %-15s %-6d LISTEN", id, "0.0.0.0", l.port, "0.0.0.0", 0)
		}
	}
	return res
}
