package main

import (
	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/query"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

func main() {
	mode := flag.String("mode", "api", "Query mode: 'api' to query via HTTP API, 'direct' to query ClickHouse directly.")
	apiURL := flag.String("api", "http://localhost:5000", "Base URL of the alert API (api mode).")
	configFile := flag.String("config", "configs/config.yaml", "Configuration with api.clickhouse (direct mode).")
	since := flag.Duration("since", 24*time.Hour, "How far back to summarize.")
	severity := flag.String("severity", "", "Minimum severity of listed alerts (api mode).")
	limit := flag.Int("limit", 10, "Number of alerts or sources to print.")
	flag.Parse()

	log.Printf("Running in '%s' mode.", *mode)

	switch *mode {
	case "api":
		queryViaAPI(*apiURL, *since, *severity, *limit)
	case "direct":
		directQueryClickHouse(*configFile, *since, *limit)
	default:
		log.Fatalf("Invalid mode: %s. Use 'api' or 'direct'.", *mode)
	}
}

func queryViaAPI(base string, since time.Duration, severity string, limit int) {
	printJSON(base + "/api/v1/alerts/summary?since=" + url.QueryEscape(since.String()))

	q := url.Values{"limit": {fmt.Sprint(limit)}}
	if severity != "" {
		q.Set("severity", severity)
	}
	printJSON(base + "/api/v1/alerts?" + q.Encode())
}

func printJSON(u string) {
	resp, err := http.Get(u)
	if err != nil {
		log.Fatalf("Error sending request: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Error reading response body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("API returned non-200 status code: %d\nResponse: %s", resp.StatusCode, string(body))
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		log.Printf("Could not prettify JSON, printing raw response:")
		fmt.Println(string(body))
		return
	}
	log.Printf("--- %s ---", u)
	fmt.Println(pretty.String())
}

func directQueryClickHouse(configFile string, since time.Duration, limit int) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	q, err := query.NewClickHouseQuerier(cfg.API.ClickHouse)
	if err != nil {
		log.Fatalf("Error connecting to ClickHouse: %v", err)
	}
	log.Println("Successfully connected to ClickHouse.")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	from := time.Now().Add(-since)

	summary, err := q.Summary(ctx, from)
	if err != nil {
		log.Fatalf("Error executing query: %v", err)
	}
	fmt.Printf("Alerts since %s: %d\n", from.Format(time.RFC3339), summary.Total)
	for _, sev := range []string{"high", "medium", "low"} {
		fmt.Printf("  %-8s %d\n", sev, summary.BySeverity[sev])
	}

	top, err := q.TopSources(ctx, from, limit)
	if err != nil {
		log.Fatalf("Error executing query: %v", err)
	}
	fmt.Println("--- Top sources ---")
	if len(top) == 0 {
		log.Println("No data found for the specified criteria.")
	}
	for _, s := range top {
		fmt.Printf("  %-40s %d\n", s.SrcIP, s.Alerts)
	}
}
