// Package policy holds the pure decision rules of the triage pipeline:
// the confidence/risk classification table and the auto-resolution
// admission gate. No side effects, no dependencies on stores or backends.
package policy

import (
	"github.com/linnemanlabs/warden/internal/alert"
	"github.com/linnemanlabs/warden/internal/analysis"
)

// AutoResolveConfidence is the minimum recommendation confidence required
// before any auto-resolution write is allowed.
const AutoResolveConfidence = 85

// ClassifyTriage maps an analysis result to a triage status. Evaluation
// order matters: the incident check runs before the uncertainty check, so
// a high-confidence/high-risk result is never reclassified as uncertain.
// StatusNew means "no change".
func ClassifyTriage(confidence float64, level analysis.RiskLevel, score float64) alert.Status {
	switch {
	case confidence >= 80 && (level == analysis.RiskHigh || level == analysis.RiskCritical || score >= 8):
		return alert.StatusIncidentLikely
	case confidence < 60 || level == analysis.RiskUnknown:
		return alert.StatusAnalysisUncertain
	case confidence >= 60 && (level == analysis.RiskMedium || score >= 5):
		return alert.StatusReviewRequired
	default:
		return alert.StatusNew
	}
}

// CanAutoResolve is the admission gate: the model must recommend
// resolution with confidence at or above the threshold, and the alert
// must still be untouched. Once status has moved off "new" the gate never
// opens again, which makes repeated runs idempotent.
func CanAutoResolve(rec *analysis.AutoResolution, status alert.Status) bool {
	if rec == nil || !rec.ShouldAutoResolve {
		return false
	}
	if rec.ConfidenceLevel < AutoResolveConfidence {
		return false
	}
	return status == alert.StatusNew
}

// ResolutionStatus maps a recommended resolution type onto an alert
// status. Unrecognized types fall back to plain resolved.
func ResolutionStatus(resolutionType string) alert.Status {
	switch resolutionType {
	case string(alert.StatusFalsePositive):
		return alert.StatusFalsePositive
	case string(alert.StatusResolved), "":
		return alert.StatusResolved
	default:
		return alert.StatusResolved
	}
}

// NeedsHumanReview reports whether a triage assignment should carry the
// "needs human review" flag.
func NeedsHumanReview(confidence float64, level analysis.RiskLevel) bool {
	return confidence < 80 || level == analysis.RiskUnknown
}
