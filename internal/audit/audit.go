// Package audit defines the append-only execution audit log: one record
// per capability invocation, one activity record per pipeline run, and
// aggregate statistics over the history.
package audit

import (
	"context"
	"math"
	"time"

	"github.com/linnemanlabs/warden/internal/alert"
	"github.com/linnemanlabs/warden/internal/capability"
)

// Filter narrows Recent and Stats queries. Zero values match everything.
type Filter struct {
	Tool   string
	Status capability.ExecStatus
	Since  time.Time
	Limit  int
}

// Matches reports whether an execution passes the filter (Limit excluded).
func (f Filter) Matches(e *capability.Execution) bool {
	if f.Tool != "" && e.ToolName != f.Tool {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// Stats aggregates execution history. SuccessRate is a percentage rounded
// to two decimals; AverageExecutionTimeMs covers successful calls only.
type Stats struct {
	TotalCalls             int     `json:"total_calls"`
	SuccessfulCalls        int     `json:"successful_calls"`
	FailedCalls            int     `json:"failed_calls"`
	SuccessRate            float64 `json:"success_rate"`
	AverageExecutionTimeMs float64 `json:"average_execution_time_ms"`
}

// Log is the audit persistence interface. Records are immutable once
// appended and never deleted by this subsystem.
type Log interface {
	Append(ctx context.Context, e *capability.Execution) error
	AppendActivity(ctx context.Context, a *alert.ActivityLog) error
	Recent(ctx context.Context, f Filter) ([]*capability.Execution, error)
	Stats(ctx context.Context, f Filter) (*Stats, error)
}

// ComputeStats derives aggregate statistics from a slice of executions.
func ComputeStats(execs []*capability.Execution) *Stats {
	s := &Stats{}
	var successMs int64
	for _, e := range execs {
		s.TotalCalls++
		if e.Success {
			s.SuccessfulCalls++
			successMs += e.ExecutionTimeMs
		} else {
			s.FailedCalls++
		}
	}
	if s.TotalCalls > 0 {
		rate := float64(s.SuccessfulCalls) / float64(s.TotalCalls) * 100
		s.SuccessRate = math.Round(rate*100) / 100
	}
	if s.SuccessfulCalls > 0 {
		s.AverageExecutionTimeMs = float64(successMs) / float64(s.SuccessfulCalls)
	}
	return s
}
