// Package signature evaluates feature records against static threshold rules.
package signature

import (
	"Go2NetGuard/internal/model"
)

// Matcher holds an immutable, ordered rule set.
type Matcher struct {
	rules []model.Rule
}

// NewMatcher copies rules into a new matcher.
func NewMatcher(rules []model.Rule) *Matcher {
	return &Matcher{rules: append([]model.Rule(nil), rules...)}
}

// Len returns the number of loaded rules.
func (m *Matcher) Len() int {
	return len(m.rules)
}

// Match returns one threat per matching rule, in rule order. A rule matches
// when every condition's feature exists and strictly exceeds its threshold.
func (m *Matcher) Match(f *model.FeatureRecord) []model.Threat {
	var threats []model.Threat
	for i := range m.rules {
		rule := &m.rules[i]
		if !matches(rule, f) {
			continue
		}
		threats = append(threats, model.Threat{
			Type:        model.ThreatSignature,
			RuleName:    rule.Name,
			Technique:   rule.Technique,
			Description: rule.Description,
			Severity:    rule.Severity,
		})
	}
	return threats
}

func matches(rule *model.Rule, f *model.FeatureRecord) bool {
	if len(rule.Conditions) == 0 {
		return false
	}
	for _, c := range rule.Conditions {
		v, ok := f.Value(c.Feature)
		if !ok || !(v > c.Threshold) {
			return false
		}
	}
	return true
}
