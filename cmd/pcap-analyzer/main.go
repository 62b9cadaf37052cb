package main

import (
	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/engine/manager"
	"flag"
	"fmt"
	"log"
	"os"
	"time"
)

func main() {
	configFile := flag.String("config", "configs/config.yaml", "Path to the configuration file")
	lossy := flag.Bool("lossy", false, "Drop packets when the queue is full instead of waiting")
	flag.Parse()

	// 1. Get pcap file path from command-line arguments
	if flag.NArg() < 1 {
		fmt.Println("Usage: pcap-analyzer [-config configs/config.yaml] [-lossy] <path_to_pcap_file>")
		os.Exit(1)
	}

	// 2. Load configuration, switched to file replay
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.Capture.Mode = "file"
	cfg.Capture.File = flag.Arg(0)
	cfg.Capture.Lossless = !*lossy
	log.Println("Configuration loaded successfully.")

	// 3. Initialize modules
	m, err := manager.Build(cfg)
	if err != nil {
		log.Fatalf("Failed to create manager: %v", err)
	}
	src, release, err := manager.Source(cfg)
	if err != nil {
		log.Fatalf("Failed to open pcap file: %v", err)
	}
	defer release()

	// 4. Replay the file and wait until every packet has been analyzed
	started := time.Now()
	if err := m.Start(src); err != nil {
		log.Fatalf("Failed to start manager: %v", err)
	}
	log.Printf("Reading packets from '%s'...", cfg.Capture.File)
	<-m.SourceDone()
	if err := m.SourceErr(); err != nil {
		log.Printf("ERROR: reading %s: %v", cfg.Capture.File, err)
	}
	log.Println("Finished reading all packets from pcap file.")
	if !m.WaitEmpty(config.Duration(cfg.Pipeline.DrainTimeout)) {
		log.Println("Warning: queue not empty before drain timeout")
	}

	// 5. Graceful shutdown
	m.Stop()
	s := m.Stats()
	log.Printf("Analyzed %d packets in %s: %d threats, %d flows, %d dropped, %d discarded.",
		s.Processed, time.Since(started).Round(time.Millisecond), s.Threats, s.Flows, s.QueueDropped, s.Discarded)
}
