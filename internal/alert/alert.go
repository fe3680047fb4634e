// Package alert defines the security alert record and the audit value
// objects (timeline events, activity logs) appended against it. Warden
// mutates alerts but never owns their lifecycle - creation and deletion
// belong to the upstream record store.
package alert

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a security alert.
type Status string

const (
	// StatusNew means the alert has not been touched by triage.
	StatusNew Status = "new"

	// StatusInvestigating means a human has picked the alert up.
	StatusInvestigating Status = "investigating"

	// StatusResolved is a terminal state set by a human or by auto-resolution.
	StatusResolved Status = "resolved"

	// StatusFalsePositive is a terminal state for benign alerts.
	StatusFalsePositive Status = "false_positive"

	// StatusIncidentLikely is assigned when high-confidence analysis points
	// at a real incident.
	StatusIncidentLikely Status = "incident_likely"

	// StatusAnalysisUncertain is assigned when analysis could not reach a
	// confident conclusion.
	StatusAnalysisUncertain Status = "analysis_uncertain"

	// StatusReviewRequired is assigned when analysis wants a human to look.
	StatusReviewRequired Status = "review_required"
)

// EventTypePending is the placeholder security event type on alerts that
// have not been classified yet.
const EventTypePending = "pending"

// Alert is the external record the triage pipeline operates on.
type Alert struct {
	ID                string          `json:"id"`
	OrganizationID    string          `json:"organization_id"`
	Title             string          `json:"title"`
	Description       string          `json:"description,omitempty"`
	Severity          string          `json:"severity"`
	Status            Status          `json:"status"`
	Source            string          `json:"source,omitempty"`
	SecurityEventType string          `json:"security_event_type,omitempty"`
	EventTags         []string        `json:"event_tags,omitempty"`
	TagsConfidence    float64         `json:"tags_confidence,omitempty"`
	TagsGeneratedAt   time.Time       `json:"tags_generated_at,omitempty"`
	AIAnalysis        json.RawMessage `json:"ai_analysis,omitempty"`
	ResolveRemarks    string          `json:"resolve_remarks,omitempty"`
	TriageRemarks     string          `json:"triage_remarks,omitempty"`
	TriageTimestamp   time.Time       `json:"triage_timestamp,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at,omitempty"`
}

// Patch is a partial update applied to an alert. Nil fields are left
// untouched by the record store.
type Patch struct {
	Status            *Status
	SecurityEventType *string
	EventTags         []string
	TagsConfidence    *float64
	TagsGeneratedAt   *time.Time
	AIAnalysis        json.RawMessage
	ResolveRemarks    *string
	TriageRemarks     *string
	TriageTimestamp   *time.Time
}

// TimelineEventType enumerates the AI decisions recorded on an alert's
// timeline.
type TimelineEventType string

const (
	TimelineFalsePositiveResolved TimelineEventType = "ai_false_positive_resolved"
	TimelineAutoResolved          TimelineEventType = "ai_auto_resolved"
	TimelineTriageAssigned        TimelineEventType = "ai_triage_assigned"
	TimelineAnalysisCompleted     TimelineEventType = "ai_analysis_completed"
)

// TimelineEvent is an append-only, human-readable record of a decision made
// against an alert. Never updated or deleted by this subsystem.
type TimelineEvent struct {
	ID           string            `json:"id"`
	AlertID      string            `json:"alert_id"`
	Timestamp    time.Time         `json:"timestamp"`
	Type         TimelineEventType `json:"type"`
	Title        string            `json:"title"`
	Description  string            `json:"description,omitempty"`
	AISource     string            `json:"ai_source,omitempty"`
	AIConfidence float64           `json:"ai_confidence,omitempty"`
	Metadata     map[string]any    `json:"metadata,omitempty"`
}

// ActivityLog records one pipeline run, success or failure. Exactly one is
// written per run, independent of any timeline events.
type ActivityLog struct {
	AgentName       string    `json:"agent_name"`
	TaskName        string    `json:"task_name"`
	AlertID         string    `json:"alert_id"`
	OrganizationID  string    `json:"organization_id,omitempty"`
	InputTokens     int64     `json:"input_tokens,omitempty"`
	OutputTokens    int64     `json:"output_tokens,omitempty"`
	ExecutionTimeMs int64     `json:"execution_time_ms"`
	Success         bool      `json:"success"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}
