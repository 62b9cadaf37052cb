package main

import (
	"Go2NetGuard/pkg/pcapgen"
	"flag"
	"log"
	"net"
	"sort"
	"time"
)

func main() {
	outputFile := flag.String("o", "test.pcap", "Output pcap file path")
	mode := flag.String("mode", "mixed", "Traffic to generate: normal, synflood, portscan or mixed")
	packetCount := flag.Int("c", 1000, "Number of packets to generate")
	seed := flag.Uint64("seed", 1, "Seed for normal traffic")
	flag.Parse()

	start := time.Now().UTC().Truncate(time.Second)
	attacker := net.IPv4(203, 0, 113, 9)
	target := net.IPv4(10, 1, 0, 80)

	var packets []pcapgen.Packet
	switch *mode {
	case "normal":
		packets = pcapgen.Normal(start, *packetCount, *seed)
	case "synflood":
		packets = pcapgen.SynFlood(start, *packetCount, time.Second, attacker, target, 31337, 80)
	case "portscan":
		packets = portScan(start, *packetCount, attacker, target)
	case "mixed":
		n := *packetCount / 2
		packets = pcapgen.Normal(start, *packetCount-n, *seed)
		packets = append(packets, pcapgen.SynFlood(start.Add(2*time.Second), n, time.Second, attacker, target, 31337, 80)...)
		sort.SliceStable(packets, func(i, j int) bool { return packets[i].Timestamp.Before(packets[j].Timestamp) })
	default:
		log.Fatalf("Unknown mode %q", *mode)
	}

	log.Printf("Generating %d %s packets into %s...", len(packets), *mode, *outputFile)
	if err := pcapgen.WriteFile(*outputFile, packets); err != nil {
		log.Fatalf("Failed to write pcap: %v", err)
	}
	log.Println("Done.")
}

// portScan probes one port per packet from a single source port, 2ms apart.
func portScan(start time.Time, n int, src, dst net.IP) []pcapgen.Packet {
	packets := make([]pcapgen.Packet, n)
	for i := range packets {
		packets[i] = pcapgen.Packet{
			Timestamp: start.Add(time.Duration(i) * 2 * time.Millisecond),
			SrcIP:     src,
			DstIP:     dst,
			SrcPort:   40000,
			DstPort:   uint16(1 + i%65535),
			Flags:     "S",
		}
	}
	return packets
}
