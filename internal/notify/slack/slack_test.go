package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/linnemanlabs/warden/internal/alert"
	"github.com/linnemanlabs/warden/internal/analysis"
)

func testAlert() *alert.Alert {
	return &alert.Alert{
		ID:       "alert-123",
		Title:    "Suspicious login burst",
		Severity: "high",
		Status:   alert.StatusResolved,
	}
}

func TestNotifyAutoResolved_PostsToWebhook(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type = %q, want application/json", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL)
	res := &analysis.Result{
		Confidence: 92,
		AutoResolution: &analysis.AutoResolution{
			ShouldAutoResolve: true,
			ConfidenceLevel:   92,
			ResolutionType:    "false_positive",
			Reasoning:         "Matches a known scanner pattern.",
		},
	}

	if err := n.NotifyAutoResolved(context.Background(), testAlert(), res); err != nil {
		t.Fatalf("NotifyAutoResolved: %v", err)
	}

	blocks, ok := got["blocks"].([]any)
	if !ok {
		t.Fatal("expected blocks array in payload")
	}
	// header, divider, fields, divider, details, context = 6 blocks
	if len(blocks) != 6 {
		t.Errorf("blocks count = %d, want 6", len(blocks))
	}

	header := blocks[0].(map[string]any)
	headerText := header["text"].(map[string]any)["text"].(string)
	if !strings.Contains(headerText, "Suspicious login burst") {
		t.Errorf("header text = %q, want alert title", headerText)
	}
	if !strings.Contains(headerText, "Auto-Resolved") {
		t.Errorf("header text = %q, want Auto-Resolved", headerText)
	}
}

func TestNotifyEscalation_IncludesRisk(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL)
	res := &analysis.Result{
		Confidence: 88,
		RiskAssessment: analysis.RiskAssessment{
			Level: analysis.RiskCritical,
			Score: 9.1,
		},
		RecommendedActions: analysis.RecommendedActions{
			Immediate: []string{"isolate host", "rotate credentials"},
		},
		Summary: "Credential stuffing followed by a successful login.",
	}

	if err := n.NotifyEscalation(context.Background(), testAlert(), res); err != nil {
		t.Fatalf("NotifyEscalation: %v", err)
	}

	raw, _ := json.Marshal(got)
	payload := string(raw)
	for _, want := range []string{"Likely Incident", "critical", "9.1", "isolate host"} {
		if !strings.Contains(payload, want) {
			t.Errorf("payload missing %q", want)
		}
	}
}

func TestNotify_NoOpWithoutURL(t *testing.T) {
	t.Parallel()

	n := New("")
	if err := n.NotifyAutoResolved(context.Background(), testAlert(), &analysis.Result{}); err != nil {
		t.Fatalf("NotifyAutoResolved with empty URL should be no-op, got: %v", err)
	}
	if err := n.NotifyEscalation(context.Background(), testAlert(), &analysis.Result{}); err != nil {
		t.Fatalf("NotifyEscalation with empty URL should be no-op, got: %v", err)
	}
}

func TestNotifyAutoResolved_TruncatesLongReasoning(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL)
	res := &analysis.Result{
		AutoResolution: &analysis.AutoResolution{
			ShouldAutoResolve: true,
			Reasoning:         strings.Repeat("x", 4000),
		},
	}
	if err := n.NotifyAutoResolved(context.Background(), testAlert(), res); err != nil {
		t.Fatalf("NotifyAutoResolved: %v", err)
	}

	blocks := got["blocks"].([]any)
	detail := blocks[4].(map[string]any)
	text := detail["text"].(map[string]any)["text"].(string)

	if len(text) > maxReasoningLen+len("*Details*\n\n") {
		t.Errorf("detail text length = %d, expected <= %d", len(text), maxReasoningLen+len("*Details*\n\n"))
	}
	if !strings.HasSuffix(text, "...") {
		t.Error("expected truncated detail to end with ...")
	}
}

func TestNotify_NonOKStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("internal error"))
	}))
	defer srv.Close()

	n := New(srv.URL)
	err := n.NotifyEscalation(context.Background(), testAlert(), &analysis.Result{})
	if err == nil {
		t.Fatal("expected error on non-OK status")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error = %q, want to contain status code 500", err.Error())
	}
}

func FuzzMessageBuild(f *testing.F) {
	f.Add("HighCPU", "critical", "CPU is very high on node-1.", "false_positive")
	f.Add("", "", "", "")
	f.Add("<@U123> mention", "warning", "*bold* _italic_ ~strike~", "benign")
	f.Add("alert\x00\x01\x02", "sev\nline", "reason\ttab", "t\x00pe")
	f.Add(strings.Repeat("A", 5000), "critical", strings.Repeat("x", 10000), "duplicate")

	f.Fuzz(func(t *testing.T, title, severity, reasoning, resType string) {
		al := &alert.Alert{ID: "fuzz-id", Title: title, Severity: severity}
		res := &analysis.Result{
			AutoResolution: &analysis.AutoResolution{
				ShouldAutoResolve: true,
				ResolutionType:    resType,
				Reasoning:         reasoning,
			},
		}

		fields := []map[string]any{
			mrkdwn("*Severity:* %s", al.Severity),
		}
		msg := message("auto-resolved: "+al.Title, fields, res.AutoResolution.Reasoning, al.ID)

		data, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("message produced non-marshalable output: %v", err)
		}
		var decoded map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("message JSON does not round-trip: %v", err)
		}
		if _, ok := decoded["blocks"].([]any); !ok {
			t.Fatal("expected blocks array")
		}
	})
}
