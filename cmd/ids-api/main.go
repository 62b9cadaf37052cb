package main

import (
	"Go2NetGuard/internal/ai"
	"Go2NetGuard/internal/api"
	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/query"
	"Go2NetGuard/internal/store"
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	configFile := flag.String("config", "configs/config.yaml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	st, err := store.Open(cfg.API.StorePath, cfg.API.MaxList)
	if err != nil {
		log.Fatalf("Failed to open alert store: %v", err)
	}
	defer st.Close()

	srv := api.NewServer(st, cfg.API.MaxList)
	if cfg.API.ClickHouse.Host != "" {
		q, err := query.NewClickHouseQuerier(cfg.API.ClickHouse)
		if err != nil {
			log.Printf("Warning: ClickHouse querier unavailable, using the local store: %v", err)
		} else {
			srv.Querier = q
			log.Println("ClickHouse querier enabled.")
		}
	}
	if cfg.AI.APIKey != "" {
		analyzer, err := ai.NewAnalyzer(cfg.AI)
		if err != nil {
			log.Printf("Warning: AI analysis disabled: %v", err)
		} else {
			srv.Analyzer = analyzer
		}
	}

	// Run gRPC health server
	grpcServer, health := api.NewGRPCServer()
	if cfg.API.GRPCListenAddr != "" {
		lis, err := net.Listen("tcp", cfg.API.GRPCListenAddr)
		if err != nil {
			log.Fatalf("Failed to listen on %s: %v", cfg.API.GRPCListenAddr, err)
		}
		go func() {
			log.Printf("gRPC health server starting on %s", cfg.API.GRPCListenAddr)
			if err := grpcServer.Serve(lis); err != nil {
				log.Printf("ERROR: gRPC server stopped: %v", err)
			}
		}()
	}

	// Run HTTP server
	httpServer := &http.Server{
		Addr:    cfg.API.ListenAddr,
		Handler: srv.Router(),
	}
	go func() {
		log.Printf("Alert API starting on %s", cfg.API.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Servers shutting down...")

	health.Shutdown()
	grpcServer.GracefulStop()
	srv.Hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	httpServer.Shutdown(ctx)

	log.Println("All servers exited.")
}
