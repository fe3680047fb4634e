// Package analysis defines the value objects produced by the AI
// capabilities: full analysis results, pre-screen verdicts, and alert
// classifications. Results are created once per pipeline run and never
// mutated afterward.
package analysis

import (
	"strings"

	"github.com/linnemanlabs/warden/internal/alert"
)

// RiskLevel is the model's qualitative risk assessment of an alert.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
	RiskUnknown  RiskLevel = "unknown"
)

// ParseRiskLevel normalizes a model-supplied risk level string. Anything
// unrecognized maps to RiskUnknown.
func ParseRiskLevel(s string) RiskLevel {
	switch RiskLevel(strings.ToLower(strings.TrimSpace(s))) {
	case RiskLow:
		return RiskLow
	case RiskMedium:
		return RiskMedium
	case RiskHigh:
		return RiskHigh
	case RiskCritical:
		return RiskCritical
	default:
		return RiskUnknown
	}
}

// RiskAssessment is the risk portion of a full analysis result.
type RiskAssessment struct {
	Level   RiskLevel `json:"level"`
	Score   float64   `json:"score"`
	Factors []string  `json:"factors,omitempty"`
}

// RecommendedActions splits the model's suggestions by urgency.
type RecommendedActions struct {
	Immediate []string `json:"immediate,omitempty"`
	FollowUp  []string `json:"followUp,omitempty"`
}

// AutoResolution is the model's recommendation on whether an alert can be
// closed without human review. The admission gate in the policy package
// decides whether it is honored.
type AutoResolution struct {
	ShouldAutoResolve bool    `json:"shouldAutoResolve"`
	ConfidenceLevel   float64 `json:"confidenceLevel"`
	ResolutionType    string  `json:"resolutionType,omitempty"`
	Reasoning         string  `json:"reasoning,omitempty"`
	ReviewRequired    bool    `json:"reviewRequired,omitempty"`
	EscalationTrigger string  `json:"escalationTrigger,omitempty"`
}

// Result is the complete output of the full-analysis capability. Persisted
// verbatim onto the alert's analysis field.
type Result struct {
	Confidence         float64            `json:"confidence"`
	RiskAssessment     RiskAssessment     `json:"riskAssessment"`
	RecommendedActions RecommendedActions `json:"recommendedActions,omitempty"`
	SecurityEventType  string             `json:"securityEventType,omitempty"`
	Summary            string             `json:"summary,omitempty"`
	AutoResolution     *AutoResolution    `json:"autoResolutionRecommendation,omitempty"`
}

// FalsePositiveResult is the output of the pre-screen capability.
type FalsePositiveResult struct {
	IsFalsePositive   bool            `json:"isFalsePositive"`
	Confidence        float64         `json:"confidence"`
	DetectionPatterns []string        `json:"detectionPatterns,omitempty"`
	Reasoning         string          `json:"reasoning,omitempty"`
	Recommendation    *AutoResolution `json:"recommendation,omitempty"`
}

// Classification is the output of the classification capability.
type Classification struct {
	SecurityEventType    string   `json:"securityEventType"`
	Tags                 []string `json:"tags,omitempty"`
	Confidence           float64  `json:"confidence"`
	CorrelationPotential string   `json:"correlationPotential,omitempty"`
	Reasoning            string   `json:"reasoning,omitempty"`
}

// QualityReport is the outcome of scoring a classification.
type QualityReport struct {
	Score       float64  `json:"score"`
	NeedsReview bool     `json:"needs_review"`
	Reasons     []string `json:"reasons,omitempty"`
}

// QualityScore rates how usable a classification is on a 0-100 scale:
// up to 40 points for confidence, 20 for tag coverage, 20 for a known
// event type, and 20 for correlation potential above "low". Review is
// flagged when confidence is under 70, no tags were produced, or the
// event type is unknown.
func QualityScore(c *Classification) *QualityReport {
	r := &QualityReport{}

	conf := c.Confidence * 0.4
	if conf > 40 {
		conf = 40
	}
	r.Score += conf

	tags := float64(len(c.Tags)) * 4
	if tags > 20 {
		tags = 20
	}
	r.Score += tags

	typeKnown := c.SecurityEventType != "" && c.SecurityEventType != "unknown" && c.SecurityEventType != alert.EventTypePending
	if typeKnown {
		r.Score += 20
	}
	if c.CorrelationPotential != "" && c.CorrelationPotential != "low" {
		r.Score += 20
	}

	if c.Confidence < 70 {
		r.NeedsReview = true
		r.Reasons = append(r.Reasons, "confidence below 70")
	}
	if len(c.Tags) == 0 {
		r.NeedsReview = true
		r.Reasons = append(r.Reasons, "no tags generated")
	}
	if !typeKnown {
		r.NeedsReview = true
		r.Reasons = append(r.Reasons, "security event type unknown")
	}

	return r
}
