package model

// ThreatType tells which detector produced a threat.
type ThreatType string

const (
	ThreatSignature ThreatType = "signature"
	ThreatAnomaly   ThreatType = "anomaly"
)

// Condition requires a feature to strictly exceed Threshold.
type Condition struct {
	Feature   string
	Threshold float64
}

// Rule is a named signature. All conditions must hold for it to match.
type Rule struct {
	Name        string
	Conditions  []Condition
	Severity    Severity
	Technique   string
	Description string
}

// Threat is a single detection outcome for one feature record.
type Threat struct {
	Type ThreatType
	// RuleName, Technique and Description are set for signature threats.
	RuleName    string
	Technique   string
	Description string
	// Score is set for anomaly threats.
	Score    float64
	Severity Severity
}
