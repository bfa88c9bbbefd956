// Command vhost brings up a single-interface virtual host: an IPStack for
// routing/ARP and a TCPStack on top, driven by the same REPL command set
// the teacher's vhost binary exposes.
package main

import (
	"bufio"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"

	ipv4header "github.com/brown-csci1680/iptcp-headers"

	"vtcp/pkg/adapter"
	"vtcp/pkg/config"
)

func main() {
	if len(os.Args) != 3 || os.Args[1] != "--config" {
		fmt.Println("Usage: vhost --config <lnx file>")
		os.Exit(1)
	}

	cfg, err := config.Parse(os.Args[2])
	if err != nil {
		fmt.Println("error parsing config file:", err)
		os.Exit(1)
	}
	if len(cfg.Interfaces) == 0 {
		fmt.Println("vhost config needs at least one interface")
		os.Exit(1)
	}

	ipStack, err := adapter.NewIPStack(cfg)
	if err != nil {
		fmt.Println("error bringing up ip stack:", err)
		os.Exit(1)
	}
	ipStack.RegisterHandler(0, testPacketHandler)
	ipStack.Listen()

	tcpStack := adapter.NewTCPStack(ipStack, cfg.Interfaces[0].IP)

	repl(ipStack, tcpStack)
}

func testPacketHandler(hdr ipv4header.IPv4Header, payload []byte, ifaceIndex int) {
	fmt.Printf("Received test packet: Src: %s, Dst: %s, TTL: %d, Data: %s\n",
		hdr.Src, hdr.Dst, hdr.TTL, string(payload))
}

func repl(ipStack *adapter.IPStack, tcpStack *adapter.TCPStack) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("Enter command:")
	for scanner.Scan() {
		userInput := strings.TrimSpace(scanner.Text())
		fields := strings.Fields(userInput)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "li":
			printInterfaces(ipStack)
		case "ln":
			printNeighbors(ipStack)
		case "lr":
			printRoutes(ipStack)
		case "up", "down":
			idx, ok := ipStack.InterfaceIndex(fields[1])
			if !ok {
				fmt.Println("unknown interface", fields[1])
				continue
			}
			ipStack.Interfaces[idx].Down = fields[0] == "down"
		case "send":
			if len(fields) < 3 {
				fmt.Println("usage: send <ip> <message...>")
				continue
			}
			dst, err := netip.ParseAddr(fields[1])
			if err != nil {
				fmt.Println(err)
				continue
			}
			message := strings.Join(fields[2:], " ")
			if err := ipStack.SendIP(dst, 0, []byte(message)); err != nil {
				fmt.Println(err)
			}
		case "ls":
			fmt.Println(tcpStack.ListSockets())
		case "a":
			port, err := strconv.ParseUint(fields[1], 10, 16)
			if err != nil {
				fmt.Println(err)
				continue
			}
			go tcpStack.ACommand(uint16(port))
		case "c":
			ip, err := netip.ParseAddr(fields[1])
			if err != nil {
				fmt.Println(err)
				continue
			}
			port, err := strconv.ParseUint(fields[2], 10, 16)
			if err != nil {
				fmt.Println(err)
				continue
			}
			tcpStack.CCommand(ip, uint16(port))
		case "s":
			socketID, _ := strconv.ParseUint(fields[1], 10, 32)
			tcpStack.SCommand(uint32(socketID), strings.Join(fields[2:], " "))
		case "r":
			socketID, _ := strconv.ParseUint(fields[1], 10, 32)
			numBytes, _ := strconv.ParseUint(fields[2], 10, 32)
			tcpStack.RCommand(uint32(socketID), uint32(numBytes))
		case "sf":
			ip, err := netip.ParseAddr(fields[2])
			if err != nil {
				fmt.Println(err)
				continue
			}
			port, _ := strconv.ParseUint(fields[3], 10, 16)
			tcpStack.SfCommand(fields[1], ip, uint16(port))
		case "rf":
			port, _ := strconv.ParseUint(fields[2], 10, 16)
			tcpStack.RfCommand(fields[1], uint16(port))
		case "cl":
			socketID, _ := strconv.ParseUint(fields[1], 10, 32)
			tcpStack.CloseCommand(uint32(socketID))
		default:
			fmt.Println("invalid command")
		}
	}
}

func printInterfaces(s *adapter.IPStack) {
	fmt.Println("Name  Addr/Prefix  State")
	for _, iface := range s.Interfaces {
		state := "up"
		if iface.Down {
			state = "down"
		}
		fmt.Printf("%-5s %-15s %s\n", iface.Name, iface.Prefix, state)
	}
}

func printNeighbors(s *adapter.IPStack) {
	fmt.Println("Iface  VIP              UDPAddr")
	for _, n := range s.Neighbors() {
		fmt.Printf("%-6s %-16s %s\n", n.InterfaceName, n.IP, n.UDPAddr)
	}
}

func printRoutes(s *adapter.IPStack) {
	fmt.Println("T  Prefix       Next hop  Cost")
	for _, route := range s.Router().Routes() {
		nextHop := "local"
		if route.NextHop != nil {
			nextHop = route.NextHop.String()
		}
		fmt.Printf("%v  %-12s %-9s %d\n", route.Source, route.Prefix, nextHop, route.Cost)
	}
}
