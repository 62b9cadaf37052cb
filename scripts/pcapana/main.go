package main

import (
	"Go2NetGuard/internal/model"
	"Go2NetGuard/pkg/pcap"
	"flag"
	"fmt"
	"log"
	"os"
)

func main() {
	limit := flag.Int("n", 0, "Stop after this many packets (0 prints all)")
	flag.Parse()
	if flag.NArg() < 1 {
		fmt.Println("Usage: go run ./scripts/pcapana [-n 10] <path_to_pcap_file>")
		os.Exit(1)
	}

	r, err := pcap.NewReader(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}
	defer r.Close()

	i := 0
	rejected, err := r.ReadPackets(func(p *model.PacketInfo) bool {
		i++
		fmt.Printf("%6d %s %s:%d -> %s:%d len=%d flags=%s\n", i, p.Timestamp.Format("15:04:05.000000"),
			p.FiveTuple.SrcIP, p.FiveTuple.SrcPort, p.FiveTuple.DstIP, p.FiveTuple.DstPort, p.Length, p.TCPFlags)
		return *limit == 0 || i < *limit
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Parsed %d IPv4/TCP packets, skipped %d other frames.\n", i, rejected)
}
