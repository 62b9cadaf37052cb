package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
)

func main() {
	// 1. Parse command-line flags
	address := flag.String("api", "http://localhost:5000", "Base URL of the alert API")
	flag.Parse()

	// 2. Ask the API to analyze its most recent alerts
	url := strings.TrimRight(*address, "/") + "/api/v1/alerts/analysis"
	log.Println("Requesting AI analysis of recent alerts... (waiting for stream)")
	resp, err := http.Post(url, "application/json", nil)
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Fatalf("API returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	// 3. Print the stream as it arrives
	fmt.Println("--- AI Response ---")
	if _, err := io.Copy(os.Stdout, resp.Body); err != nil {
		log.Fatalf("Stream interrupted: %v", err)
	}
	fmt.Println("\n--- End of Stream ---")
}
