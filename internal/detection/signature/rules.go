package signature

import (
	"Go2NetGuard/internal/model"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
)

// ruleDef is the on-disk shape of one rule. Conditions are decoded
// separately so their order survives.
type ruleDef struct {
	Conditions  json.RawMessage `json:"conditions"`
	Severity    string          `json:"severity"`
	Mitre       string          `json:"mitre"`
	Description string          `json:"description"`
}

// LoadRules reads a JSON rule file. The result keeps the order in which rules
// appear in the file.
func LoadRules(path string) ([]model.Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rule file: %w", err)
	}
	defer f.Close()

	rules, err := ParseRules(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rule file %s: %w", path, err)
	}
	return rules, nil
}

// ParseRules decodes a rule document of the form
//
//	{"<name>": {"conditions": {"<feature>": <threshold>}, "severity": "...", "mitre": "...", "description": "..."}}
//
// A malformed document is an error. A single malformed rule is skipped with
// a warning.
func ParseRules(r io.Reader) ([]model.Rule, error) {
	dec := json.NewDecoder(r)
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	var rules []model.Rule
	for dec.More() {
		name, err := objectKey(dec)
		if err != nil {
			return nil, err
		}
		var def ruleDef
		if err := dec.Decode(&def); err != nil {
			return nil, fmt.Errorf("rule %q: %w", name, err)
		}
		rule, err := def.toRule(name)
		if err != nil {
			log.Printf("Warning: skipping rule %q: %v", name, err)
			continue
		}
		rules = append(rules, rule)
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	return rules, nil
}

func (d ruleDef) toRule(name string) (model.Rule, error) {
	severity, err := model.ParseSeverity(d.Severity)
	if err != nil {
		return model.Rule{}, err
	}
	conditions, err := parseConditions(d.Conditions)
	if err != nil {
		return model.Rule{}, err
	}
	if len(conditions) == 0 {
		return model.Rule{}, fmt.Errorf("rule has no conditions")
	}
	return model.Rule{
		Name:        name,
		Conditions:  conditions,
		Severity:    severity,
		Technique:   d.Mitre,
		Description: d.Description,
	}, nil
}

func parseConditions(raw json.RawMessage) ([]model.Condition, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := expectDelim(dec, '{'); err != nil {
		return nil, fmt.Errorf("conditions: %w", err)
	}
	var conditions []model.Condition
	for dec.More() {
		feature, err := objectKey(dec)
		if err != nil {
			return nil, err
		}
		var threshold float64
		if err := dec.Decode(&threshold); err != nil {
			return nil, fmt.Errorf("condition %q: threshold must be a number", feature)
		}
		conditions = append(conditions, model.Condition{Feature: feature, Threshold: threshold})
	}
	return conditions, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func objectKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected object key, got %v", tok)
	}
	return key, nil
}
