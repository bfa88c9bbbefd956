// Command vrouter brings up a multi-interface router node: an IPStack for
// forwarding/ARP, and — when the config says "routing rip" — a RIP
// distance-vector process that keeps the forwarding table populated
// dynamically instead of from `route` lines alone.
package main

import (
	"bufio"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	ipv4header "github.com/brown-csci1680/iptcp-headers"

	"vtcp/pkg/adapter"
	"vtcp/pkg/config"
	"vtcp/pkg/rip"
)

func main() {
	if len(os.Args) != 3 || os.Args[1] != "--config" {
		fmt.Println("Usage: vrouter --config <lnx file>")
		os.Exit(1)
	}

	cfg, err := config.Parse(os.Args[2])
	if err != nil {
		fmt.Println("error parsing config file:", err)
		os.Exit(1)
	}

	ipStack, err := adapter.NewIPStack(cfg)
	if err != nil {
		fmt.Println("error bringing up ip stack:", err)
		os.Exit(1)
	}
	ipStack.RegisterHandler(0, testPacketHandler)

	if cfg.RoutingMode == config.RoutingRIP {
		ripInstance := rip.NewInstance(ipStack.Router(), ipStack, cfg.RIPNeighbors)
		ipStack.RegisterHandler(rip.ProtocolNumber, func(hdr ipv4header.IPv4Header, payload []byte, _ int) {
			if err := ripInstance.HandlePacket(hdr.Src, payload); err != nil {
				fmt.Println("rip:", err)
			}
		})
		ipStack.Listen()
		if err := ripInstance.SendRequests(); err != nil {
			fmt.Println("rip: error sending initial requests:", err)
		}
		stop := make(chan struct{})
		go ripInstance.RunPeriodic(stop)
	} else {
		ipStack.Listen()
	}

	fmt.Println("Router forwarding table:")
	printRoutes(ipStack)
	repl(ipStack)
}

func testPacketHandler(hdr ipv4header.IPv4Header, payload []byte, ifaceIndex int) {
	fmt.Printf("Received test packet: Src: %s, Dst: %s, TTL: %d, Data: %s\n",
		hdr.Src, hdr.Dst, hdr.TTL, string(payload))
}

func repl(ipStack *adapter.IPStack) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("Enter command")
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
				fmt.Println("Please enter a valid IP address after send")
				continue
			}
			message := strings.Join(fields[2:], " ")
			if err := ipStack.SendIP(dst, 0, []byte(message)); err != nil {
				fmt.Println(err)
			}
		default:
			fmt.Println("Invalid command.")
		}

		// give a brief window for a just-issued send/route update to drain
		// and for RIP triggered updates to be observed before the next prompt
		time.Sleep(5 * time.Millisecond)
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
