package manager

import (
	"Go2NetGuard/internal/alerter"
	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/detection"
	"Go2NetGuard/internal/detection/anomaly"
	"Go2NetGuard/internal/detection/signature"
	"Go2NetGuard/internal/engine/feature"
	"Go2NetGuard/internal/engine/flowtable"
	"Go2NetGuard/internal/engine/spread"
	"Go2NetGuard/internal/evidence"
	"Go2NetGuard/internal/factory"
	"Go2NetGuard/internal/model"
	"Go2NetGuard/internal/probe"
	"Go2NetGuard/internal/queue"
	"Go2NetGuard/internal/sink" // Registers the alert sink types
	"Go2NetGuard/internal/snapshot"
	"Go2NetGuard/pkg/pcap"
	"Go2NetGuard/pkg/sniffer"
	"fmt"
	"log"
)

// Build wires a manager from cfg: rules, anomaly model, alert sinks, and the
// optional evidence recorder and flow snapshots.
func Build(cfg *config.Config) (*Manager, error) {
	rules, err := signature.LoadRules(cfg.Detection.RulesFile)
	if err != nil {
		log.Printf("Warning: %v; signature detection disabled", err)
		rules = nil
	}
	matcher := signature.NewMatcher(rules)
	log.Printf("Loaded %d signature rules from %s", matcher.Len(), cfg.Detection.RulesFile)

	var scorer *anomaly.Scorer
	if cfg.Detection.Anomaly.Enabled {
		scorer = BuildScorer(cfg.Detection.Anomaly)
	}

	dispatcher, err := factory.BuildDispatcher(cfg)
	if err != nil {
		return nil, err
	}
	if dispatcher.Len() == 0 {
		log.Println("No alert sinks configured, logging alerts.")
		dispatcher.Add("log", sink.NewLogSink(nil), model.SeverityLow)
	}

	opts := Options{
		PollInterval:    config.Duration(cfg.Pipeline.PollInterval),
		DrainTimeout:    config.Duration(cfg.Pipeline.DrainTimeout),
		FlowIdleTimeout: config.Duration(cfg.Pipeline.FlowIdleTimeout),
		SweepEvery:      cfg.Pipeline.SweepEvery,
		Builder:         alerter.NewBuilder(),
	}
	if cfg.Features.SpreadWindow != "" {
		f := cfg.Features
		opts.Spread = spread.New(f.SpreadWidth, f.SpreadDepth, config.Duration(f.SpreadWindow), f.SpreadSeed)
		log.Printf("Tracking destination spread per source over %s windows", f.SpreadWindow)
	}

	var recorder *evidence.Recorder
	if cfg.Evidence.Enabled {
		recorder, err = evidence.NewRecorder(cfg.Evidence)
		if err != nil {
			dispatcher.Close()
			return nil, err
		}
		opts.Evidence = recorder
	}
	if cfg.Snapshot.Enabled {
		opts.Snapshots = snapshot.NewWriter(cfg.Snapshot.RootPath)
		opts.SnapshotInterval = config.Duration(cfg.Snapshot.Interval)
	}

	m := New(queue.New(cfg.Pipeline.QueueSize), detection.NewEngine(matcher, scorer), dispatcher, opts)
	if recorder != nil {
		m.OnStop(recorder.Stop)
	}
	m.OnStop(dispatcher.Close)
	return m, nil
}

// BuildScorer creates the anomaly scorer and fits it, either from a saved
// model or from a baseline capture of normal traffic. When neither is set,
// or loading or training fails, the scorer stays untrained and never
// reports anomalies.
func BuildScorer(cfg config.AnomalyConfig) *anomaly.Scorer {
	opts := anomaly.Options{
		Trees:      cfg.Trees,
		SampleSize: cfg.SampleSize,
		Seed:       cfg.Seed,
		Threshold:  cfg.Threshold,
	}
	scorer := anomaly.NewScorer(opts)

	switch {
	case cfg.ModelPath != "":
		if err := scorer.LoadFile(cfg.ModelPath); err != nil {
			log.Printf("Warning: failed to load anomaly model: %v; anomaly detection untrained", err)
			return scorer
		}
		log.Printf("Loaded anomaly model from %s", cfg.ModelPath)
	case cfg.BaselinePcap != "":
		vectors, err := BaselineVectors(cfg.BaselinePcap)
		if err != nil {
			log.Printf("Warning: failed to read baseline capture: %v; anomaly detection untrained", err)
			return scorer
		}
		if err := scorer.Train(vectors); err != nil {
			log.Printf("Warning: failed to train anomaly model on %s: %v; anomaly detection untrained", cfg.BaselinePcap, err)
			return anomaly.NewScorer(opts)
		}
		log.Printf("Trained anomaly model on %d packets from %s", len(vectors), cfg.BaselinePcap)
	default:
		log.Println("Warning: anomaly detection enabled without model_path or baseline_pcap; no anomalies will be reported")
		return scorer
	}

	if cfg.SaveModelPath != "" {
		if err := scorer.SaveFile(cfg.SaveModelPath); err != nil {
			log.Printf("Warning: %v", err)
		} else {
			log.Printf("Saved anomaly model to %s", cfg.SaveModelPath)
		}
	}
	return scorer
}

// BaselineVectors replays a capture through a fresh flow table and returns
// the feature vector of every packet.
func BaselineVectors(path string) ([][]float64, error) {
	extractor := feature.NewExtractor(flowtable.New())
	var vectors [][]float64
	err := pcap.ReadFile(path, func(p *model.PacketInfo) {
		record := extractor.Extract(p, p.Timestamp)
		vectors = append(vectors, record.Vector())
	})
	return vectors, err
}

// Source creates the packet source selected by capture.mode. The returned
// function releases it once the manager has stopped.
func Source(cfg *config.Config) (model.PacketSource, func(), error) {
	switch cfg.Capture.Mode {
	case "file":
		if cfg.Capture.File == "" {
			return nil, nil, fmt.Errorf("capture.file is required in file mode")
		}
		return pcap.NewFileSource(cfg.Capture.File, cfg.Capture.Lossless), func() {}, nil
	case "nats":
		sub, err := probe.NewSubscriber(cfg.Probe)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		return sub, sub.Close, nil
	default:
		s, err := sniffer.New(cfg.Capture)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	}
}
