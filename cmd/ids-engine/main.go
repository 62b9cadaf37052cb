package main

import (
	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/engine/manager"
	"Go2NetGuard/internal/metrics"
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	configFile := flag.String("config", "configs/config.yaml", "Path to the configuration file")
	flag.Parse()

	log.Println("Starting ids-engine...")

	// 1. Load configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Configuration loaded successfully, capture mode %s.", cfg.Capture.Mode)

	// 2. Wire the pipeline and its packet source
	m, err := manager.Build(cfg)
	if err != nil {
		log.Fatalf("Failed to create manager: %v", err)
	}
	src, release, err := manager.Source(cfg)
	if err != nil {
		log.Fatalf("Failed to open packet source: %v", err)
	}
	defer release()

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		metricsSrv = &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: metrics.Handler()}
		go func() {
			log.Printf("Metrics listening on %s", cfg.Metrics.ListenAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("ERROR: metrics server failed: %v", err)
			}
		}()
	}

	// 3. Start the pipeline
	if err := m.Start(src); err != nil {
		log.Fatalf("Failed to start manager: %v", err)
	}

	// 4. Report until a shutdown signal arrives or the source ends
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	ticker := time.NewTicker(config.Duration(cfg.Pipeline.StatsInterval))
	defer ticker.Stop()

loop:
	for {
		select {
		case <-sigChan:
			log.Println("Shutdown signal received, stopping manager...")
			break loop
		case <-m.SourceDone():
			if err := m.SourceErr(); err != nil {
				log.Printf("Packet source ended with error: %v", err)
			} else {
				log.Println("Packet source finished.")
			}
			break loop
		case <-ticker.C:
			s := m.Stats()
			log.Printf("Stats: processed=%d threats=%d flows=%d queue=%d dropped=%d",
				s.Processed, s.Threats, s.Flows, s.QueueLen, s.QueueDropped)
		}
	}

	m.Stop()
	if metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsSrv.Shutdown(ctx)
	}
	log.Println("Shutdown complete.")
}
