package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/warden/internal/alert"
	"github.com/linnemanlabs/warden/internal/analysis"
	"github.com/linnemanlabs/warden/internal/capability"
)

// PerformClassification runs the single-phase classification pipeline:
// one capability call, persist event type and tags, one timeline event,
// one activity record. Re-classification is the same operation with
// ForceRefresh set.
func (s *Service) PerformClassification(ctx context.Context, al *alert.Alert, inv capability.Invocation, opts ClassifyOptions) (*ClassificationResponse, error) {
	start := time.Now()
	L := s.logger.With("alert_id", al.ID)

	exec := s.executor.Execute(ctx, capability.CapClassifyAlert, map[string]any{
		"alert":         alertParams(al),
		"force_refresh": opts.ForceRefresh,
	}, inv)

	if !exec.Success {
		err := fmt.Errorf("classification: %s", exec.Error)
		s.failRun(ctx, L, al, inv, TaskClassification, start, exec.InputTokens, exec.OutputTokens, err)
		if s.hooks.OnClassification != nil {
			s.hooks.OnClassification(false, time.Since(start).Seconds())
		}
		return nil, err
	}

	var c analysis.Classification
	if err := json.Unmarshal(exec.Result, &c); err != nil {
		err = fmt.Errorf("classification: decode result: %w", err)
		s.failRun(ctx, L, al, inv, TaskClassification, start, exec.InputTokens, exec.OutputTokens, err)
		if s.hooks.OnClassification != nil {
			s.hooks.OnClassification(false, time.Since(start).Seconds())
		}
		return nil, err
	}

	now := time.Now()
	patch := &alert.Patch{
		SecurityEventType: &c.SecurityEventType,
		EventTags:         c.Tags,
		TagsConfidence:    &c.Confidence,
		TagsGeneratedAt:   &now,
	}
	if err := s.store.UpdateAlert(ctx, al.ID, patch); err != nil {
		err = fmt.Errorf("persist classification: %w", err)
		s.failRun(ctx, L, al, inv, TaskClassification, start, exec.InputTokens, exec.OutputTokens, err)
		if s.hooks.OnClassification != nil {
			s.hooks.OnClassification(false, time.Since(start).Seconds())
		}
		return nil, err
	}
	applyPatch(al, patch)

	s.emitTimeline(ctx, L, &alert.TimelineEvent{
		ID:           ulid.Make().String(),
		AlertID:      al.ID,
		Timestamp:    time.Now(),
		Type:         alert.TimelineAnalysisCompleted,
		Title:        fmt.Sprintf("Alert classified as %s", c.SecurityEventType),
		Description:  c.Reasoning,
		AISource:     AISource,
		AIConfidence: c.Confidence,
		Metadata: map[string]any{
			"tags":                  c.Tags,
			"correlation_potential": c.CorrelationPotential,
			"force_refresh":         opts.ForceRefresh,
		},
	})

	s.completeRun(ctx, L, al, inv, TaskClassification, start, exec.InputTokens, exec.OutputTokens, "classified")
	if s.hooks.OnClassification != nil {
		s.hooks.OnClassification(true, time.Since(start).Seconds())
	}

	return &ClassificationResponse{
		Success:        true,
		Classification: &c,
		Quality:        analysis.QualityScore(&c),
		Alert:          summarize(al),
	}, nil
}
