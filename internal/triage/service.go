package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/warden/internal/alert"
	"github.com/linnemanlabs/warden/internal/analysis"
	"github.com/linnemanlabs/warden/internal/capability"
	"github.com/linnemanlabs/warden/internal/policy"
)

// Service runs the alert-triage decision pipeline. One Service per process;
// individual runs share no mutable state, so concurrent runs on distinct
// alerts are safe. Serializing runs on the same alert is the caller's
// responsibility - the admission gate's status check makes a lost race
// idempotent but not atomic.
type Service struct {
	executor *capability.Executor
	store    RecordStore
	activity ActivitySink
	notifier Notifier
	logger   log.Logger
	hooks    Hooks
}

// ActivitySink receives one activity record per pipeline run. Implemented
// by the audit log.
type ActivitySink interface {
	AppendActivity(ctx context.Context, a *alert.ActivityLog) error
}

// Hooks are optional metric callbacks invoked at the end of each run.
type Hooks struct {
	OnAnalysis       func(outcome string, seconds float64, tokensIn, tokensOut int64)
	OnClassification func(success bool, seconds float64)
}

// Pipeline outcomes reported through Hooks.OnAnalysis.
const (
	OutcomeAutoResolved = "auto_resolved"
	OutcomeTriaged      = "triaged"
	OutcomeUnchanged    = "unchanged"
	OutcomeFailed       = "failed"
)

// NewService creates the triage service. notifier may be nil.
func NewService(executor *capability.Executor, store RecordStore, activity ActivitySink, notifier Notifier, logger log.Logger, hooks Hooks) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		executor: executor,
		store:    store,
		activity: activity,
		notifier: notifier,
		logger:   logger,
		hooks:    hooks,
	}
}

// PerformAnalysis runs the multi-phase pipeline for one alert:
// pre-screen, auto-resolution gates, full analysis, triage assignment,
// persistence, timeline emission, activity logging. A capability failure
// aborts the run with an error and no alert mutation; failures on the
// secondary writes (timeline, activity, notification) are swallowed.
func (s *Service) PerformAnalysis(ctx context.Context, al *alert.Alert, inv capability.Invocation) (*AnalysisResponse, error) {
	start := time.Now()
	L := s.logger.With("alert_id", al.ID, "severity", al.Severity)

	var tokensIn, tokensOut int64

	// phase 1: pre-screen for false-positive patterns
	exec := s.executor.Execute(ctx, capability.CapDetectFalsePositive, map[string]any{
		"alert":              alertParams(al),
		"historical_context": []any{},
	}, inv)
	tokensIn += exec.InputTokens
	tokensOut += exec.OutputTokens

	if !exec.Success {
		err := fmt.Errorf("pre-screen: %s", exec.Error)
		s.failRun(ctx, L, al, inv, TaskAnalysis, start, tokensIn, tokensOut, err)
		return nil, err
	}

	var prescreen analysis.FalsePositiveResult
	prescreenOK := len(exec.Result) > 0 && json.Unmarshal(exec.Result, &prescreen) == nil

	// phase 2: pre-screen auto-resolution gate. When it fires, full
	// analysis is skipped entirely.
	if prescreenOK && policy.CanAutoResolve(prescreen.Recommendation, al.Status) {
		res := synthesizeResult(&prescreen)
		if err := s.autoResolve(ctx, L, al, res, prescreen.Recommendation, ResolverPrescreen, alert.TimelineFalsePositiveResolved, prescreen.DetectionPatterns); err != nil {
			s.failRun(ctx, L, al, inv, TaskAnalysis, start, tokensIn, tokensOut, err)
			return nil, err
		}
		s.completeRun(ctx, L, al, inv, TaskAnalysis, start, tokensIn, tokensOut, OutcomeAutoResolved)
		return &AnalysisResponse{
			Success:            true,
			Analysis:           res,
			AutoResolved:       true,
			AutoResolvedStatus: al.Status,
			Alert:              summarize(al),
		}, nil
	}

	// phase 3: full analysis
	exec = s.executor.Execute(ctx, capability.CapAnalyzeAlert, map[string]any{
		"alert": alertParams(al),
	}, inv)
	tokensIn += exec.InputTokens
	tokensOut += exec.OutputTokens

	if !exec.Success {
		err := fmt.Errorf("analysis: %s", exec.Error)
		s.failRun(ctx, L, al, inv, TaskAnalysis, start, tokensIn, tokensOut, err)
		return nil, err
	}

	var res analysis.Result
	if err := json.Unmarshal(exec.Result, &res); err != nil {
		err = fmt.Errorf("analysis: decode result: %w", err)
		s.failRun(ctx, L, al, inv, TaskAnalysis, start, tokensIn, tokensOut, err)
		return nil, err
	}

	// phase 4: post-analysis auto-resolution gate. Takes precedence over
	// triage assignment.
	if policy.CanAutoResolve(res.AutoResolution, al.Status) {
		if err := s.autoResolve(ctx, L, al, &res, res.AutoResolution, ResolverAnalysis, alert.TimelineAutoResolved, nil); err != nil {
			s.failRun(ctx, L, al, inv, TaskAnalysis, start, tokensIn, tokensOut, err)
			return nil, err
		}
		s.completeRun(ctx, L, al, inv, TaskAnalysis, start, tokensIn, tokensOut, OutcomeAutoResolved)
		return &AnalysisResponse{
			Success:            true,
			Analysis:           &res,
			AutoResolved:       true,
			AutoResolvedStatus: al.Status,
			Alert:              summarize(al),
		}, nil
	}

	// phase 5: triage assignment
	triageStatus := policy.ClassifyTriage(res.Confidence, res.RiskAssessment.Level, res.RiskAssessment.Score)
	outcome := OutcomeUnchanged

	patch := &alert.Patch{}
	if err := attachAnalysis(patch, al, &res); err != nil {
		s.failRun(ctx, L, al, inv, TaskAnalysis, start, tokensIn, tokensOut, err)
		return nil, err
	}

	if triageStatus != alert.StatusNew {
		now := time.Now()
		remarks := triageRemarks(&res, triageStatus)
		patch.Status = &triageStatus
		patch.TriageRemarks = &remarks
		patch.TriageTimestamp = &now
		outcome = OutcomeTriaged
	}

	// phase 6: persist the analysis (and the triage decision, if any)
	if err := s.store.UpdateAlert(ctx, al.ID, patch); err != nil {
		err = fmt.Errorf("persist analysis: %w", err)
		s.failRun(ctx, L, al, inv, TaskAnalysis, start, tokensIn, tokensOut, err)
		return nil, err
	}
	applyPatch(al, patch)

	if outcome == OutcomeTriaged {
		s.emitTimeline(ctx, L, &alert.TimelineEvent{
			ID:           ulid.Make().String(),
			AlertID:      al.ID,
			Timestamp:    time.Now(),
			Type:         alert.TimelineTriageAssigned,
			Title:        fmt.Sprintf("Triage status set to %s", triageStatus),
			Description:  *patch.TriageRemarks,
			AISource:     AISource,
			AIConfidence: res.Confidence,
			Metadata: map[string]any{
				"risk_level": string(res.RiskAssessment.Level),
				"risk_score": res.RiskAssessment.Score,
			},
		})
	}

	// phase 7: every non-auto-resolved run gets an analysis-completed event
	s.emitTimeline(ctx, L, &alert.TimelineEvent{
		ID:           ulid.Make().String(),
		AlertID:      al.ID,
		Timestamp:    time.Now(),
		Type:         alert.TimelineAnalysisCompleted,
		Title:        "AI analysis completed",
		Description:  res.Summary,
		AISource:     AISource,
		AIConfidence: res.Confidence,
		Metadata: map[string]any{
			"triage_status": string(triageStatus),
			"risk_level":    string(res.RiskAssessment.Level),
		},
	})

	if triageStatus == alert.StatusIncidentLikely && s.notifier != nil {
		if err := s.notifier.NotifyEscalation(ctx, al, &res); err != nil {
			L.Error(ctx, err, "escalation notification failed")
		}
	}

	// phase 8: exactly one activity record per run
	s.completeRun(ctx, L, al, inv, TaskAnalysis, start, tokensIn, tokensOut, outcome)

	return &AnalysisResponse{
		Success:      true,
		Analysis:     &res,
		TriageStatus: triageStatus,
		Alert:        summarize(al),
	}, nil
}

// autoResolve persists the terminal status and remarks, then emits the
// matching timeline event. The alert update is a primary write; the
// timeline and notification are secondary.
func (s *Service) autoResolve(ctx context.Context, L log.Logger, al *alert.Alert, res *analysis.Result, rec *analysis.AutoResolution, resolver string, eventType alert.TimelineEventType, patterns []string) error {
	status := policy.ResolutionStatus(rec.ResolutionType)
	remarks := resolveRemarks(resolver, rec, patterns)

	patch := &alert.Patch{
		Status:         &status,
		ResolveRemarks: &remarks,
	}
	if err := attachAnalysis(patch, al, res); err != nil {
		return err
	}
	if err := s.store.UpdateAlert(ctx, al.ID, patch); err != nil {
		return fmt.Errorf("persist auto-resolution: %w", err)
	}
	applyPatch(al, patch)

	L.Info(ctx, "alert auto-resolved",
		"status", status,
		"resolver", resolver,
		"confidence", rec.ConfidenceLevel,
	)

	s.emitTimeline(ctx, L, &alert.TimelineEvent{
		ID:           ulid.Make().String(),
		AlertID:      al.ID,
		Timestamp:    time.Now(),
		Type:         eventType,
		Title:        fmt.Sprintf("Alert auto-resolved as %s", status),
		Description:  rec.Reasoning,
		AISource:     AISource,
		AIConfidence: rec.ConfidenceLevel,
		Metadata: map[string]any{
			"resolver":        resolver,
			"resolution_type": rec.ResolutionType,
			"review_required": rec.ReviewRequired,
		},
	})

	if s.notifier != nil {
		if err := s.notifier.NotifyAutoResolved(ctx, al, res); err != nil {
			L.Error(ctx, err, "auto-resolution notification failed")
		}
	}
	return nil
}

// attachAnalysis writes the analysis blob onto the patch. The security
// event type is only overwritten when the alert has none yet.
func attachAnalysis(patch *alert.Patch, al *alert.Alert, res *analysis.Result) error {
	blob, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}
	patch.AIAnalysis = blob

	if res.SecurityEventType != "" && (al.SecurityEventType == "" || al.SecurityEventType == alert.EventTypePending) {
		patch.SecurityEventType = &res.SecurityEventType
	}
	return nil
}

// applyPatch mirrors a committed patch onto the in-memory alert so the
// caller-facing summary reflects what the store now holds.
func applyPatch(al *alert.Alert, p *alert.Patch) {
	if p.Status != nil {
		al.Status = *p.Status
	}
	if p.SecurityEventType != nil {
		al.SecurityEventType = *p.SecurityEventType
	}
	if p.EventTags != nil {
		al.EventTags = p.EventTags
	}
	if p.TagsConfidence != nil {
		al.TagsConfidence = *p.TagsConfidence
	}
	if p.TagsGeneratedAt != nil {
		al.TagsGeneratedAt = *p.TagsGeneratedAt
	}
	if p.AIAnalysis != nil {
		al.AIAnalysis = p.AIAnalysis
	}
	if p.ResolveRemarks != nil {
		al.ResolveRemarks = *p.ResolveRemarks
	}
	if p.TriageRemarks != nil {
		al.TriageRemarks = *p.TriageRemarks
	}
	if p.TriageTimestamp != nil {
		al.TriageTimestamp = *p.TriageTimestamp
	}
}

// synthesizeResult builds a minimal analysis result from a pre-screen
// verdict, so the auto-resolve path persists the same shape as a full run.
func synthesizeResult(fp *analysis.FalsePositiveResult) *analysis.Result {
	res := &analysis.Result{
		Confidence: fp.Confidence,
		RiskAssessment: analysis.RiskAssessment{
			Level:   analysis.RiskLow,
			Factors: fp.DetectionPatterns,
		},
		Summary:        fp.Reasoning,
		AutoResolution: fp.Recommendation,
	}
	return res
}

func resolveRemarks(resolver string, rec *analysis.AutoResolution, patterns []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Resolved by %s as %s.", resolver, rec.ResolutionType)
	if rec.Reasoning != "" {
		fmt.Fprintf(&b, " Reasoning: %s.", rec.Reasoning)
	}
	fmt.Fprintf(&b, " Confidence: %.0f.", rec.ConfidenceLevel)
	if len(patterns) > 0 {
		fmt.Fprintf(&b, " Detection patterns: %s.", strings.Join(patterns, ", "))
	}
	if rec.ReviewRequired {
		b.WriteString(" Flagged for periodic review.")
	}
	return b.String()
}

func triageRemarks(res *analysis.Result, status alert.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Triage status %s: confidence %.0f, risk %s (score %.1f).",
		status, res.Confidence, res.RiskAssessment.Level, res.RiskAssessment.Score)
	if len(res.RiskAssessment.Factors) > 0 {
		fmt.Fprintf(&b, " Factors: %s.", strings.Join(res.RiskAssessment.Factors, ", "))
	}
	if policy.NeedsHumanReview(res.Confidence, res.RiskAssessment.Level) {
		b.WriteString(" Needs human review.")
	}
	return b.String()
}

// emitTimeline appends a timeline event, swallowing failures: timeline
// emission must never undo or block a committed status change.
func (s *Service) emitTimeline(ctx context.Context, L log.Logger, ev *alert.TimelineEvent) {
	if err := s.store.AppendTimelineEvent(ctx, ev); err != nil {
		L.Error(ctx, err, "timeline emission failed",
			"alert_id", ev.AlertID,
			"event_type", string(ev.Type),
		)
	}
}

func (s *Service) completeRun(ctx context.Context, L log.Logger, al *alert.Alert, inv capability.Invocation, task string, start time.Time, tokensIn, tokensOut int64, outcome string) {
	elapsed := time.Since(start)
	s.logActivity(ctx, L, &alert.ActivityLog{
		AgentName:       AgentName,
		TaskName:        task,
		AlertID:         al.ID,
		OrganizationID:  inv.OrganizationID,
		InputTokens:     tokensIn,
		OutputTokens:    tokensOut,
		ExecutionTimeMs: elapsed.Milliseconds(),
		Success:         true,
		Timestamp:       time.Now(),
	})
	if s.hooks.OnAnalysis != nil && task == TaskAnalysis {
		s.hooks.OnAnalysis(outcome, elapsed.Seconds(), tokensIn, tokensOut)
	}
	L.Info(ctx, "pipeline run complete",
		"task", task,
		"outcome", outcome,
		"duration_ms", elapsed.Milliseconds(),
		"tokens_in", tokensIn,
		"tokens_out", tokensOut,
	)
}

func (s *Service) failRun(ctx context.Context, L log.Logger, al *alert.Alert, inv capability.Invocation, task string, start time.Time, tokensIn, tokensOut int64, cause error) {
	elapsed := time.Since(start)
	s.logActivity(ctx, L, &alert.ActivityLog{
		AgentName:       AgentName,
		TaskName:        task,
		AlertID:         al.ID,
		OrganizationID:  inv.OrganizationID,
		InputTokens:     tokensIn,
		OutputTokens:    tokensOut,
		ExecutionTimeMs: elapsed.Milliseconds(),
		Success:         false,
		ErrorMessage:    cause.Error(),
		Timestamp:       time.Now(),
	})
	if s.hooks.OnAnalysis != nil && task == TaskAnalysis {
		s.hooks.OnAnalysis(OutcomeFailed, elapsed.Seconds(), tokensIn, tokensOut)
	}
	L.Error(ctx, cause, "pipeline run failed",
		"task", task,
		"severity", al.Severity,
		"duration_ms", elapsed.Milliseconds(),
	)
}

// logActivity appends the activity record, swallowing failures.
func (s *Service) logActivity(ctx context.Context, L log.Logger, a *alert.ActivityLog) {
	if s.activity == nil {
		return
	}
	if err := s.activity.AppendActivity(ctx, a); err != nil {
		L.Error(ctx, err, "activity logging failed", "alert_id", a.AlertID, "task", a.TaskName)
	}
}

// alertParams renders the alert into the map shape capability parameters
// use.
func alertParams(al *alert.Alert) map[string]any {
	b, err := json.Marshal(al)
	if err != nil {
		return map[string]any{"id": al.ID}
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return map[string]any{"id": al.ID}
	}
	return m
}
