package sink

import (
	"Go2NetGuard/internal/mitre"
	"Go2NetGuard/internal/model"
	"encoding/json"
	"log"
)

// LogSink writes each alert as a JSON line, prefixed by a level derived from
// its severity.
type LogSink struct {
	logger *log.Logger
}

// NewLogSink logs through logger, or the standard logger when nil.
func NewLogSink(logger *log.Logger) *LogSink {
	if logger == nil {
		logger = log.Default()
	}
	return &LogSink{logger: logger}
}

// Level maps a severity to its log level name.
func Level(s model.Severity) string {
	switch s {
	case model.SeverityHigh:
		return "CRITICAL"
	case model.SeverityMedium:
		return "WARNING"
	}
	return "INFO"
}

func (s *LogSink) Deliver(alert *model.Alert) {
	data, err := json.Marshal(alert)
	if err != nil {
		s.logger.Printf("ERROR: failed to encode alert %s: %v", alert.ID, err)
		return
	}
	if alert.MitreTechnique != nil {
		if t, ok := mitre.Lookup(*alert.MitreTechnique); ok {
			s.logger.Printf("%s: [%s / %s] %s", Level(alert.Severity), t.Tactic, t.Name, data)
			return
		}
	}
	s.logger.Printf("%s: %s", Level(alert.Severity), data)
}
