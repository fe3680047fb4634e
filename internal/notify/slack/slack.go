// Package slack sends triage notifications to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/linnemanlabs/warden/internal/alert"
	"github.com/linnemanlabs/warden/internal/analysis"
)

const (
	maxReasoningLen = 3000
	httpTimeout     = 10 * time.Second
)

// Notifier sends pipeline outcomes to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// New creates a new Slack notifier. If webhookURL is empty, all sends are no-ops.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// NotifyAutoResolved posts an auto-resolution summary for the alert.
func (n *Notifier) NotifyAutoResolved(ctx context.Context, al *alert.Alert, res *analysis.Result) error {
	rec := res.AutoResolution
	if rec == nil {
		rec = &analysis.AutoResolution{}
	}
	title := fmt.Sprintf("✅ Auto-Resolved: %s", al.Title)

	fields := []map[string]any{
		mrkdwn("*Status:* %s", al.Status),
		mrkdwn("*Severity:* %s", al.Severity),
		mrkdwn("*Confidence:* %.0f%%", rec.ConfidenceLevel),
		mrkdwn("*Resolution:* %s", rec.ResolutionType),
	}
	if rec.ReviewRequired {
		fields = append(fields, mrkdwn("*Review:* required"))
	}

	return n.send(ctx, message(title, fields, rec.Reasoning, al.ID))
}

// NotifyEscalation posts an incident-likely escalation for the alert.
func (n *Notifier) NotifyEscalation(ctx context.Context, al *alert.Alert, res *analysis.Result) error {
	title := fmt.Sprintf("\U0001f6a8 Likely Incident: %s", al.Title)

	fields := []map[string]any{
		mrkdwn("*Status:* %s", al.Status),
		mrkdwn("*Severity:* %s", al.Severity),
		mrkdwn("*Confidence:* %.0f%%", res.Confidence),
		mrkdwn("*Risk:* %s (score %.1f)", res.RiskAssessment.Level, res.RiskAssessment.Score),
	}
	if len(res.RecommendedActions.Immediate) > 0 {
		fields = append(fields, mrkdwn("*Next:* %s", strings.Join(res.RecommendedActions.Immediate, "; ")))
	}

	return n.send(ctx, message(title, fields, res.Summary, al.ID))
}

func (n *Notifier) send(ctx context.Context, msg map[string]any) error {
	if n.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func message(title string, fields []map[string]any, detail, alertID string) map[string]any {
	blocks := []map[string]any{
		{
			"type": "header",
			"text": map[string]any{"type": "plain_text", "text": title},
		},
		{"type": "divider"},
		{"type": "section", "fields": fields},
	}

	detail = truncate(detail, maxReasoningLen)
	if detail != "" {
		blocks = append(blocks,
			map[string]any{"type": "divider"},
			map[string]any{
				"type": "section",
				"text": mrkdwn("*Details*\n\n%s", detail),
			},
		)
	}

	blocks = append(blocks, map[string]any{
		"type": "context",
		"elements": []map[string]any{
			mrkdwn("warden • alert %s • %s", alertID, time.Now().UTC().Format("2006-01-02 15:04 UTC")),
		},
	})

	return map[string]any{"blocks": blocks}
}

func mrkdwn(format string, args ...any) map[string]any {
	return map[string]any{
		"type": "mrkdwn",
		"text": fmt.Sprintf(format, args...),
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
