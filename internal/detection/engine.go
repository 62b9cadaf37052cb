// Package detection combines signature matching and anomaly scoring.
package detection

import (
	"Go2NetGuard/internal/detection/anomaly"
	"Go2NetGuard/internal/detection/signature"
	"Go2NetGuard/internal/model"
)

// Engine runs both detectors over a feature record.
type Engine struct {
	matcher *signature.Matcher
	scorer  *anomaly.Scorer
}

// NewEngine builds an engine. Either detector may be nil.
func NewEngine(matcher *signature.Matcher, scorer *anomaly.Scorer) *Engine {
	if matcher == nil {
		matcher = signature.NewMatcher(nil)
	}
	return &Engine{matcher: matcher, scorer: scorer}
}

// Matcher returns the signature matcher.
func (e *Engine) Matcher() *signature.Matcher {
	return e.matcher
}

// Scorer returns the anomaly scorer, which may be nil.
func (e *Engine) Scorer() *anomaly.Scorer {
	return e.scorer
}

// Detect returns signature threats in rule order, followed by at most one
// anomaly threat. Anomaly threats are always medium severity.
func (e *Engine) Detect(f *model.FeatureRecord) []model.Threat {
	threats := e.matcher.Match(f)

	if e.scorer == nil || !e.scorer.Trained() {
		return threats
	}
	if score := e.scorer.Score(f); score < e.scorer.Threshold() {
		threats = append(threats, model.Threat{
			Type:     model.ThreatAnomaly,
			Score:    score,
			Severity: model.SeverityMedium,
		})
	}
	return threats
}
