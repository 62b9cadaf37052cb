package main

import (
	"Go2NetGuard/internal/snapshot"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

func main() {
	limit := flag.Int("n", 20, "Number of flows to print")
	flag.Parse()
	if flag.NArg() < 1 {
		fmt.Println("Usage: go run ./scripts/gobana [-n 20] <snapshot_dir>")
		os.Exit(1)
	}
	dir := flag.Arg(0)

	entries, err := snapshot.Read(dir)
	if err != nil {
		log.Fatalf("Unable to read snapshot: %v", err)
	}
	if summary, err := os.ReadFile(filepath.Join(dir, "summary.json")); err == nil {
		fmt.Printf("Summary: %s\n", summary)
	}

	fmt.Printf("%-48s %10s %12s %24s %24s\n", "FLOW", "PACKETS", "BYTES", "START", "LAST")
	for i, e := range entries {
		if i == *limit {
			fmt.Printf("... %d more flows\n", len(entries)-i)
			break
		}
		fmt.Printf("%-48s %10d %12d %24s %24s\n", e.Key, e.State.PacketCount, e.State.ByteCount,
			e.State.StartTime.Format("15:04:05.000000"), e.State.LastTime.Format("15:04:05.000000"))
	}
}
