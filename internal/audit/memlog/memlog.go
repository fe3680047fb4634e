// Package memlog provides an in-memory implementation of audit.Log.
// Suitable for dev/testing.
package memlog

import (
	"context"
	"sync"

	"github.com/linnemanlabs/warden/internal/alert"
	"github.com/linnemanlabs/warden/internal/audit"
	"github.com/linnemanlabs/warden/internal/capability"
)

// Log holds audit records in memory, newest last.
type Log struct {
	mu         sync.RWMutex
	executions []*capability.Execution
	activities []*alert.ActivityLog
}

// New initializes an empty in-memory Log.
func New() *Log {
	return &Log{}
}

// Append stores a copy of the execution record.
func (l *Log) Append(_ context.Context, e *capability.Execution) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *e
	l.executions = append(l.executions, &cp)
	return nil
}

// AppendActivity stores a copy of the activity record.
func (l *Log) AppendActivity(_ context.Context, a *alert.ActivityLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *a
	l.activities = append(l.activities, &cp)
	return nil
}

// Recent returns matching executions, newest first. Returns copies.
func (l *Log) Recent(_ context.Context, f audit.Filter) ([]*capability.Execution, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*capability.Execution
	for i := len(l.executions) - 1; i >= 0; i-- {
		e := l.executions[i]
		if !f.Matches(e) {
			continue
		}
		cp := *e
		out = append(out, &cp)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

// Stats aggregates over all matching executions, ignoring Limit.
func (l *Log) Stats(_ context.Context, f audit.Filter) (*audit.Stats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var matched []*capability.Execution
	for _, e := range l.executions {
		if f.Matches(e) {
			matched = append(matched, e)
		}
	}
	return audit.ComputeStats(matched), nil
}

// Activities returns a copy of the recorded activity log, oldest first.
func (l *Log) Activities() []*alert.ActivityLog {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*alert.ActivityLog, 0, len(l.activities))
	for _, a := range l.activities {
		cp := *a
		out = append(out, &cp)
	}
	return out
}
