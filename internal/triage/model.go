package triage

import (
	"github.com/linnemanlabs/warden/internal/alert"
	"github.com/linnemanlabs/warden/internal/analysis"
)

// AISource identifies warden in timeline events and remarks.
const AISource = "warden"

// Agent and task names recorded in activity logs.
const (
	AgentName          = "alert-triage"
	TaskAnalysis       = "alert_analysis"
	TaskClassification = "alert_classification"
)

// Resolver identities stamped into resolve remarks, distinct per phase.
const (
	ResolverPrescreen = "warden auto-resolution (pre-screen)"
	ResolverAnalysis  = "warden auto-resolution (analysis)"
)

// AlertSummary is the caller-facing snapshot of the alert after a run.
type AlertSummary struct {
	ID                string       `json:"id"`
	Status            alert.Status `json:"status"`
	Severity          string       `json:"severity"`
	SecurityEventType string       `json:"security_event_type,omitempty"`
	EventTags         []string     `json:"event_tags,omitempty"`
}

// AnalysisResponse is the outcome of one triage pipeline run.
type AnalysisResponse struct {
	Success            bool             `json:"success"`
	Analysis           *analysis.Result `json:"analysis,omitempty"`
	AutoResolved       bool             `json:"auto_resolved"`
	AutoResolvedStatus alert.Status     `json:"auto_resolved_status,omitempty"`
	TriageStatus       alert.Status     `json:"triage_status,omitempty"`
	Alert              *AlertSummary    `json:"alert,omitempty"`
}

// ClassifyOptions tunes a classification run.
type ClassifyOptions struct {
	// ForceRefresh re-classifies even when the alert already carries tags.
	ForceRefresh bool
}

// ClassificationResponse is the outcome of one classification run.
type ClassificationResponse struct {
	Success        bool                     `json:"success"`
	Classification *analysis.Classification `json:"classification,omitempty"`
	Quality        *analysis.QualityReport  `json:"quality,omitempty"`
	Alert          *AlertSummary            `json:"alert,omitempty"`
}

func summarize(al *alert.Alert) *AlertSummary {
	return &AlertSummary{
		ID:                al.ID,
		Status:            al.Status,
		Severity:          al.Severity,
		SecurityEventType: al.SecurityEventType,
		EventTags:         al.EventTags,
	}
}
