package snapshot

import (
	"Go2NetGuard/internal/engine/flowtable"
	"Go2NetGuard/internal/engine/spread"
	"Go2NetGuard/internal/model"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// TimestampFormat names snapshot directories.
const TimestampFormat = "2006-01-02_15-04-05"

// Entry is one flow as stored in a snapshot.
type Entry struct {
	Key   model.FlowKey
	State model.FlowState
}

// SummaryData holds the metadata for a snapshot.
type SummaryData struct {
	TotalFlows   int    `json:"total_flows"`
	TotalPackets uint64 `json:"total_packets"`
	TotalBytes   uint64 `json:"total_bytes"`
	Evicted      uint64 `json:"evicted"`
	Timestamp    string `json:"timestamp"`
	TopFlows     []Top  `json:"top_flows"`
	// TopSpreaders is only written when destination spread is tracked.
	TopSpreaders []Spreader `json:"top_spreaders,omitempty"`
}

// Top lists one of the busiest flows in the summary.
type Top struct {
	Flow    string `json:"flow"`
	Packets uint64 `json:"packets"`
	Bytes   uint64 `json:"bytes"`
}

// Spreader lists a source that contacted many distinct destinations.
type Spreader struct {
	Src    string `json:"src"`
	Spread uint32 `json:"spread"`
}

const topFlows = 10

// Writer handles writing flow table snapshots to disk.
type Writer struct {
	rootPath string
}

// NewWriter creates a snapshot writer rooted at rootPath.
func NewWriter(rootPath string) *Writer {
	return &Writer{rootPath: rootPath}
}

// Write stores the contents of table under a directory named after now. It
// returns that directory. spreaders, largest first, are summarized next to
// the busiest flows.
func (w *Writer) Write(table *flowtable.Table, now time.Time, spreaders []spread.Record) (string, error) {
	entries := make([]Entry, 0, table.Len())
	table.Each(func(key model.FlowKey, state model.FlowState) {
		entries = append(entries, Entry{Key: key, State: state})
	})
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].State.PacketCount != entries[j].State.PacketCount {
			return entries[i].State.PacketCount > entries[j].State.PacketCount
		}
		return entries[i].Key.String() < entries[j].Key.String()
	})

	snapshotDir := filepath.Join(w.rootPath, now.Format(TimestampFormat))
	if err := os.MkdirAll(snapshotDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	if err := writeGob(filepath.Join(snapshotDir, "flows.dat"), entries); err != nil {
		return "", err
	}

	summary := SummaryData{
		TotalFlows: len(entries),
		Evicted:    table.Evicted(),
		Timestamp:  now.UTC().Format(time.RFC3339),
		TopFlows:   []Top{},
	}
	for i, e := range entries {
		summary.TotalPackets += e.State.PacketCount
		summary.TotalBytes += e.State.ByteCount
		if i < topFlows {
			summary.TopFlows = append(summary.TopFlows, Top{Flow: e.Key.String(), Packets: e.State.PacketCount, Bytes: e.State.ByteCount})
		}
	}
	for i, r := range spreaders {
		if i == topFlows {
			break
		}
		summary.TopSpreaders = append(summary.TopSpreaders, Spreader{Src: r.Src.String(), Spread: r.Spread})
	}
	summaryFile, err := os.Create(filepath.Join(snapshotDir, "summary.json"))
	if err != nil {
		return "", fmt.Errorf("failed to create summary file: %w", err)
	}
	defer summaryFile.Close()

	jsonEncoder := json.NewEncoder(summaryFile)
	jsonEncoder.SetIndent("", "  ")
	if err := jsonEncoder.Encode(summary); err != nil {
		return "", fmt.Errorf("failed to encode summary to json: %w", err)
	}
	return snapshotDir, nil
}

func writeGob(path string, entries []Entry) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file '%s': %w", path, err)
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(entries); err != nil {
		return fmt.Errorf("failed to encode flows to gob for file '%s': %w", path, err)
	}
	return nil
}

// Read loads the flows stored in a snapshot directory.
func Read(dir string) ([]Entry, error) {
	file, err := os.Open(filepath.Join(dir, "flows.dat"))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var entries []Entry
	if err := gob.NewDecoder(file).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return entries, nil
}
