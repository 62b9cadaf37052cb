package alerter

import (
	"Go2NetGuard/internal/model"
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gomarkdown/markdown"
)

// Digest batches alerts and sends a consolidated notification every
// interval, optionally with an AI-written analysis.
type Digest struct {
	notifier  model.Notifier
	analyzer  model.Analyzer
	interval  time.Duration
	maxAlerts int
	aiTimeout time.Duration

	mu      sync.Mutex
	pending []*model.Alert
	omitted int

	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewDigest starts a digest loop. analyzer may be nil.
func NewDigest(notifier model.Notifier, analyzer model.Analyzer, interval time.Duration, maxAlerts int, aiTimeout time.Duration) (*Digest, error) {
	if notifier == nil {
		return nil, fmt.Errorf("digest requires a notifier")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("digest interval must be a positive duration")
	}
	if maxAlerts <= 0 {
		maxAlerts = 200
	}
	d := &Digest{
		notifier:  notifier,
		analyzer:  analyzer,
		interval:  interval,
		maxAlerts: maxAlerts,
		aiTimeout: aiTimeout,
		stopChan:  make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	log.Printf("Alert digest started with interval %s", interval)
	return d, nil
}

// Deliver adds alert to the next digest.
func (d *Digest) Deliver(alert *model.Alert) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pending) >= d.maxAlerts {
		d.omitted++
		return
	}
	d.pending = append(d.pending, alert)
}

func (d *Digest) run() {
	defer d.wg.Done()
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.Flush()
		case <-d.stopChan:
			return
		}
	}
}

// Flush sends whatever has accumulated. Nothing is sent when no alert
// arrived since the last flush.
func (d *Digest) Flush() {
	d.mu.Lock()
	alerts, omitted := d.pending, d.omitted
	d.pending, d.omitted = nil, 0
	d.mu.Unlock()

	if len(alerts) == 0 {
		return
	}

	summary := Summarize(alerts, omitted)
	body := "<h1>Go2NetGuard Alert Summary</h1>" + string(markdown.ToHTML([]byte(summary), nil, nil))

	if analysis, err := d.analyze(summary); err != nil {
		log.Printf("Failed to get AI analysis: %v", err)
	} else if analysis != "" {
		body += "<hr><h2>AI-Powered Analysis</h2>" + string(markdown.ToHTML([]byte(analysis), nil, nil))
	}

	subject := fmt.Sprintf("Go2NetGuard Alert Summary (%d alerts)", len(alerts)+omitted)
	if err := d.notifier.Send(subject, body); err != nil {
		log.Printf("ERROR: Failed to send alert digest: %v", err)
		return
	}
	log.Printf("INFO: Alert digest with %d alerts sent successfully.", len(alerts))
}

func (d *Digest) analyze(summary string) (string, error) {
	if d.analyzer == nil {
		return "", nil
	}
	timeout := d.aiTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return d.analyzer.AnalyzeTraffic(ctx, summary)
}

// Close stops the loop and sends a final digest.
func (d *Digest) Close() error {
	d.closeOnce.Do(func() {
		close(d.stopChan)
		d.wg.Wait()
		d.Flush()
	})
	return nil
}

// Summarize renders alerts as a markdown report.
func Summarize(alerts []*model.Alert, omitted int) string {
	counts := map[model.Severity]int{}
	for _, a := range alerts {
		counts[a.Severity]++
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**%d** alerts: %d high, %d medium, %d low.\n\n",
		len(alerts), counts[model.SeverityHigh], counts[model.SeverityMedium], counts[model.SeverityLow])
	b.WriteString("| Time | Severity | Type | Attack | MITRE | Source | Destination | Packet rate |\n")
	b.WriteString("|---|---|---|---|---|---|---|---|\n")
	for _, a := range alerts {
		attack, technique := "-", "-"
		if a.AttackName != nil {
			attack = *a.AttackName
		}
		if a.MitreTechnique != nil {
			technique = *a.MitreTechnique
		}
		if a.AnomalyScore != nil {
			attack = fmt.Sprintf("anomaly (score %.3f)", *a.AnomalyScore)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s:%d | %s:%d | %.1f |\n",
			a.Timestamp, a.Severity, a.AlertType, attack, technique,
			a.Source.IP, a.Source.Port, a.Destination.IP, a.Destination.Port, a.Traffic.PacketRate)
	}
	if omitted > 0 {
		fmt.Fprintf(&b, "\n%d more alerts were omitted from this digest.\n", omitted)
	}
	return b.String()
}
