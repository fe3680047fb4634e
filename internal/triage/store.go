package triage

import (
	"context"

	"github.com/linnemanlabs/warden/internal/alert"
	"github.com/linnemanlabs/warden/internal/analysis"
)

// RecordStore is the persistence interface for alerts and their timelines.
// Warden patches alerts and appends timeline events; it never creates or
// deletes alert records.
type RecordStore interface {
	GetAlert(ctx context.Context, id string) (*alert.Alert, bool, error)
	UpdateAlert(ctx context.Context, id string, p *alert.Patch) error
	AppendTimelineEvent(ctx context.Context, ev *alert.TimelineEvent) error
}

// Notifier pushes pipeline outcomes to an external channel (e.g. Slack).
/// Notification failure is a secondary write failure: logged and swallowed.
type Notifier interface {
	NotifyAutoResolved(ctx context.Context, al *alert.Alert, res *analysis.Result) error
	NotifyEscalation(ctx context.Context, al *alert.Alert, res *analysis.Result) error
}
