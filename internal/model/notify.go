package model

import "context"

// Notifier delivers a human-readable message, e.g. an alert digest email.
type Notifier interface {
	Send(subject, body string) error
}

// Analyzer produces a written assessment of an alert report.
type Analyzer interface {
	AnalyzeTraffic(ctx context.Context, report string) (string, error)
}
