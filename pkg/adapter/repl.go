package adapter

import (
	"fmt"
	"net/netip"
	"os"
	"time"

	"github.com/pkg/errors"
)

// ACommand is the "a <port>" REPL verb: listen and accept forever, printing
// each accepted connection.
func (s *TCPStack) ACommand(port uint16) {
	listener, err := s.VListen(port)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println("Created listen socket")
	for {
		conn, err := listener.VAccept()
		if err != nil {
			fmt.Println(err)
			return
		}
		fmt.Printf("New connection on socket %d\n", conn.ID)
	}
}

// CCommand is the "c <ip> <port>" REPL verb.
func (s *TCPStack) CCommand(ip netip.Addr, port uint16) {
	conn, err := s.VConnect(ip, port)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("Connected on socket %d\n", conn.ID)
}

// SCommand is the "s <socket id> <data>" REPL verb.
func (s *TCPStack) SCommand(socketID uint32, data string) {
	conn, err := s.connByID(socketID)
	if err != nil {
		fmt.Println(err)
		return
	}
	n, err := conn.VWrite([]byte(data))
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("Sent %d bytes\n", n)
}

// RCommand is the "r <socket id> <n bytes>" REPL verb.
func (s *TCPStack) RCommand(socketID uint32, numBytes uint32) {
	conn, err := s.connByID(socketID)
	if err != nil {
		fmt.Println(err)
		return
	}
	buf := make([]byte, numBytes)
	n, err := conn.VRead(buf)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("Read %d bytes: %s\n", n, string(buf[:n]))
}

// CloseCommand is the "cl <socket id>" REPL verb.
func (s *TCPStack) CloseCommand(socketID uint32) {
	conn, err := s.connByID(socketID)
	if err != nil {
		fmt.Println(err)
		return
	}
	conn.VClose()
}

func (s *TCPStack) connByID(socketID uint32) (*Conn, error) {
	s.mu.Lock()
	tuple, ok := s.socketIDToTuple[socketID]
	s.mu.Unlock()
	if !ok {
		return nil, errors.Errorf("no socket %d", socketID)
	}
	s.mu.Lock()
	conn, ok := s.connections[tuple]
	s.mu.Unlock()
	if !ok {
		return nil, errors.Errorf("socket %d is not an open connection", socketID)
	}
	return conn, nil
}

// SfCommand is the "sf <path> <ip> <port>" send-file REPL verb: connect,
// stream the file through VWrite, then close. Not implemented by the
// teacher's dispatcher despite being wired into its command table; built
// here as a thin wrapper over the already-specified byte-pipe API.
func (s *TCPStack) SfCommand(path string, ip netip.Addr, port uint16) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Println(err)
		return
	}
	conn, err := s.VConnect(ip, port)
	if err != nil {
		fmt.Println(err)
		return
	}
	for written := 0; written < len(data); {
		n, err := conn.VWrite(data[written:])
		if err != nil {
			fmt.Println(err)
			return
		}
		if n == 0 {
			time.Sleep(workerTickMs * time.Millisecond)
			continue
		}
		written += n
	}
	conn.VClose()
	fmt.Printf("Sent file %s (%d bytes)\n", path, len(data))
}

// RfCommand is the "rf <path> <port>" receive-file REPL verb: listen,
// accept once, drain the inbound stream to EOF, and write it to path.
func (s *TCPStack) RfCommand(path string, port uint16) {
	listener, err := s.VListen(port)
	if err != nil {
		fmt.Println(err)
		return
	}
	conn, err := listener.VAccept()
	if err != nil {
		fmt.Println(err)
		return
	}

	var out []byte
	buf := make([]byte, 4096)
	for {
		n, err := conn.VRead(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err != nil {
			break
		}
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("Received file %s (%d bytes)\n", path, len(out))
}
