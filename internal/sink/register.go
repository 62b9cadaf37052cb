package sink

import (
	"Go2NetGuard/internal/ai"
	"Go2NetGuard/internal/alerter"
	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/factory"
	"Go2NetGuard/internal/model"
	"Go2NetGuard/internal/notification"
	"fmt"
	"log"
	"net/http"
)

func init() {
	factory.RegisterSink("log", func(def config.SinkDef, cfg *config.Config) (model.Sink, error) {
		return NewLogSink(nil), nil
	})

	factory.RegisterSink("http", func(def config.SinkDef, cfg *config.Config) (model.Sink, error) {
		timeout := config.Duration(def.HTTP.Timeout)
		p, err := NewHTTPPublisher(def.HTTP.URL, &http.Client{Timeout: timeout})
		if err != nil {
			return nil, err
		}
		return alerter.NewAsyncSink(def.Name, p, def.BufferSize, timeout), nil
	})

	factory.RegisterSink("nats", func(def config.SinkDef, cfg *config.Config) (model.Sink, error) {
		url := def.NATS.URL
		if url == "" {
			url = cfg.Probe.NATSURL
		}
		p, err := NewNATSPublisher(url, def.NATS.Subject, def.NATS.Encoding)
		if err != nil {
			return nil, err
		}
		return alerter.NewAsyncSink(def.Name, p, def.BufferSize, 0), nil
	})

	factory.RegisterSink("redis", func(def config.SinkDef, cfg *config.Config) (model.Sink, error) {
		p, err := NewRedisPublisher(def.Redis)
		if err != nil {
			return nil, err
		}
		return alerter.NewAsyncSink(def.Name, p, def.BufferSize, 0), nil
	})

	factory.RegisterSink("clickhouse", func(def config.SinkDef, cfg *config.Config) (model.Sink, error) {
		return NewClickHouseSink(def.Name, def.ClickHouse, def.BufferSize)
	})

	factory.RegisterSink("postgres", func(def config.SinkDef, cfg *config.Config) (model.Sink, error) {
		if def.Postgres.DSN == "" {
			return nil, fmt.Errorf("postgres sink requires a dsn")
		}
		return NewPostgresSink(def.Name, def.Postgres.DSN, def.BufferSize)
	})

	factory.RegisterSink("digest", newDigest)
}

func newDigest(def config.SinkDef, cfg *config.Config) (model.Sink, error) {
	notifier, err := notification.NewEmailNotifier(cfg.SMTP)
	if err != nil {
		return nil, err
	}
	var analyzer model.Analyzer
	if def.Digest.UseAI {
		a, err := ai.NewAnalyzer(cfg.AI)
		if err != nil {
			log.Printf("Warning: AI analysis disabled for digest '%s': %v", def.Name, err)
		} else {
			analyzer = a
		}
	}
	interval := config.Duration(def.Digest.Interval)
	if interval <= 0 {
		return nil, fmt.Errorf("digest sink requires a positive interval, got %q", def.Digest.Interval)
	}
	return alerter.NewDigest(notifier, analyzer, interval, def.Digest.MaxAlerts, config.Duration(cfg.AI.Timeout))
}
