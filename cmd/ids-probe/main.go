package main

import (
	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/model"
	"Go2NetGuard/internal/probe"
	"Go2NetGuard/pkg/sniffer"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	configFile := flag.String("config", "configs/config.yaml", "Path to the configuration file")
	iface := flag.String("iface", "", "Interface to capture packets from (overrides capture.interface)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *iface != "" {
		cfg.Capture.Interface = *iface
	}
	log.Printf("Starting ids-probe on interface %s, publishing to %s", cfg.Capture.Interface, cfg.Probe.Subject)

	pub, err := probe.NewPublisher(cfg.Probe)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer pub.Close()

	s, err := sniffer.New(cfg.Capture)
	if err != nil {
		log.Fatalf("Failed to create sniffer: %v", err)
	}

	stop := make(chan struct{})
	done := make(chan error, 1)
	published := 0
	go func() {
		done <- s.Capture(stop, func(pkt *model.PacketInfo) {
			if err := pub.Publish(pkt); err != nil {
				log.Printf("Failed to publish packet: %v", err)
				return
			}
			published++
			if published%1000 == 0 {
				log.Printf("%d packets published...", published)
			}
		})
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Println("Shutdown signal received, cleaning up...")
		close(stop)
		<-done
	case err := <-done:
		if err != nil {
			log.Printf("ERROR: capture stopped: %v", err)
		}
	}
	log.Println("Shutdown complete.")
}
