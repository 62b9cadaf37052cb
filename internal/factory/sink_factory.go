package factory

import (
	"Go2NetGuard/internal/alerter"
	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/model"
	"fmt"
	"log"
	"sort"
)

// SinkFactory creates a sink from its definition. cfg gives access to shared
// sections such as smtp and ai.
type SinkFactory func(def config.SinkDef, cfg *config.Config) (model.Sink, error)

// registry holds the mapping of sink types to their factory functions.
var registry = make(map[string]SinkFactory)

// RegisterSink registers a new sink type with its factory function.
func RegisterSink(name string, factory SinkFactory) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("sink type '%s' already registered", name))
	}
	registry[name] = factory
}

// Types lists the registered sink types.
func Types() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildDispatcher creates every enabled sink in cfg and registers it with a
// new dispatcher. On error the sinks created so far are closed.
func BuildDispatcher(cfg *config.Config) (*alerter.Dispatcher, error) {
	d := alerter.NewDispatcher()
	for _, def := range cfg.Sinks {
		if !def.Enabled {
			continue
		}
		log.Printf("Creating alert sink '%s' of type '%s'", def.Name, def.Type)

		factory, ok := registry[def.Type]
		if !ok {
			d.Close()
			return nil, fmt.Errorf("unknown sink type: '%s'", def.Type)
		}
		minSeverity, err := model.ParseSeverity(def.MinSeverity)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("sink '%s': %w", def.Name, err)
		}
		sink, err := factory(def, cfg)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("error creating sink '%s': %w", def.Name, err)
		}
		d.Add(def.Name, sink, minSeverity)
	}
	return d, nil
}
