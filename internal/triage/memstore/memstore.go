// Package memstore provides an in-memory implementation of
// triage.RecordStore. Suitable for dev/testing.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/linnemanlabs/warden/internal/alert"
)

// Store holds alerts and timeline events in memory.
type Store struct {
	mu       sync.RWMutex
	alerts   map[string]*alert.Alert
	timeline map[string][]*alert.TimelineEvent // alert ID -> events, oldest first
}

// New initializes an empty in-memory Store.
func New() *Store {
	return &Store{
		alerts:   make(map[string]*alert.Alert),
		timeline: make(map[string][]*alert.TimelineEvent),
	}
}

// SeedAlert inserts an alert record. The upstream platform owns alert
// creation; this exists so dev setups and tests have something to triage.
func (s *Store) SeedAlert(al *alert.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *al
	s.alerts[al.ID] = &cp
}

// GetAlert retrieves an alert by ID. Returns a copy.
func (s *Store) GetAlert(_ context.Context, id string) (*alert.Alert, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	al, ok := s.alerts[id]
	if !ok {
		return nil, false, nil
	}
	cp := *al
	return &cp, true, nil
}

// UpdateAlert applies a partial update. Nil patch fields leave the stored
// record untouched.
func (s *Store) UpdateAlert(_ context.Context, id string, p *alert.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	al, ok := s.alerts[id]
	if !ok {
		return fmt.Errorf("alert %s not found", id)
	}
	if p.Status != nil {
		al.Status = *p.Status
	}
	if p.SecurityEventType != nil {
		al.SecurityEventType = *p.SecurityEventType
	}
	if p.EventTags != nil {
		al.EventTags = append([]string(nil), p.EventTags...)
	}
	if p.TagsConfidence != nil {
		al.TagsConfidence = *p.TagsConfidence
	}
	if p.TagsGeneratedAt != nil {
		al.TagsGeneratedAt = *p.TagsGeneratedAt
	}
	if p.AIAnalysis != nil {
		al.AIAnalysis = append([]byte(nil), p.AIAnalysis...)
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
	al.UpdatedAt = time.Now()
	return nil
}

// AppendTimelineEvent appends a copy of the event to the alert's history.
func (s *Store) AppendTimelineEvent(_ context.Context, ev *alert.TimelineEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ev
	s.timeline[ev.AlertID] = append(s.timeline[ev.AlertID], &cp)
	return nil
}

// Timeline returns a copy of an alert's timeline, oldest first.
func (s *Store) Timeline(alertID string) []*alert.TimelineEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.timeline[alertID]
	out := make([]*alert.TimelineEvent, 0, len(events))
	for _, ev := range events {
		cp := *ev
		out = append(out, &cp)
	}
	return out
}
