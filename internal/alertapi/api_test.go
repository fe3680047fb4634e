package alertapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/warden/internal/alert"
	"github.com/linnemanlabs/warden/internal/analysis"
	"github.com/linnemanlabs/warden/internal/audit/memlog"
	"github.com/linnemanlabs/warden/internal/capability"
	"github.com/linnemanlabs/warden/internal/triage"
	"github.com/linnemanlabs/warden/internal/triage/memstore"
)

// stubCap is a canned capability for handler tests.
type stubCap struct {
	name   string
	schema capability.Schema
	out    *capability.Output
	err    error
}

func (s *stubCap) Name() string              { return s.name }
func (s *stubCap) Description() string       { return "stub capability" }
func (s *stubCap) Schema() capability.Schema { return s.schema }
func (s *stubCap) Execute(_ context.Context, _ map[string]any) (*capability.Output, error) {
	return s.out, s.err
}

func jsonCap(t *testing.T, name string, v any) *stubCap {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal stub output: %v", err)
	}
	return &stubCap{
		name: name,
		out:  &capability.Output{Result: raw, InputTokens: 100, OutputTokens: 50},
	}
}

type harness struct {
	router chi.Router
	store  *memstore.Store
	log    *memlog.Log
}

func newHarness(t *testing.T, caps ...capability.Capability) *harness {
	t.Helper()

	reg := capability.NewRegistry()
	for _, c := range caps {
		reg.Register(c)
	}

	auditLog := memlog.New()
	executor := capability.NewExecutor(reg, auditLog, log.Nop(), nil)

	store := memstore.New()
	svc := triage.NewService(executor, store, auditLog, nil, log.Nop(), triage.Hooks{})

	api := New(nil, svc, store, executor, auditLog)
	r := chi.NewRouter()
	api.RegisterRoutes(r)

	return &harness{router: r, store: store, log: auditLog}
}

func seedAlert(h *harness) *alert.Alert {
	al := &alert.Alert{
		ID:             "alert-1",
		OrganizationID: "org-1",
		Title:          "Suspicious login burst",
		Severity:       "high",
		Status:         alert.StatusNew,
	}
	h.store.SeedAlert(al)
	return al
}

func do(t *testing.T, r chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

//  New / constructor

func TestNew_NilLogger(t *testing.T) {
	t.Parallel()

	reg := capability.NewRegistry()
	auditLog := memlog.New()
	executor := capability.NewExecutor(reg, auditLog, log.Nop(), nil)
	store := memstore.New()
	svc := triage.NewService(executor, store, auditLog, nil, log.Nop(), triage.Hooks{})

	api := New(nil, svc, store, executor, auditLog)
	if api == nil {
		t.Fatal("New returned nil API")
	}
	if api.logger == nil {
		t.Fatal("New left logger nil; expected Nop logger")
	}
}

func TestNew_NilService_Panics(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("New with nil service did not panic")
		}
	}()
	New(nil, nil, nil, nil, nil)
}

// Analyze

func TestAnalyze_AlertNotFound(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	rec := do(t, h.router, http.MethodPost, "/api/v1/alerts/missing/analyze", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestAnalyze_TriagesAlert(t *testing.T) {
	t.Parallel()

	prescreen := jsonCap(t, capability.CapDetectFalsePositive, analysis.FalsePositiveResult{
		IsFalsePositive: false,
		Confidence:      40,
	})
	analyze := jsonCap(t, capability.CapAnalyzeAlert, analysis.Result{
		Confidence: 88,
		RiskAssessment: analysis.RiskAssessment{
			Level: analysis.RiskHigh,
			Score: 8.5,
		},
		Summary: "Likely credential stuffing.",
	})

	h := newHarness(t, prescreen, analyze)
	al := seedAlert(h)

	rec := do(t, h.router, http.MethodPost, "/api/v1/alerts/"+al.ID+"/analyze", map[string]any{
		"organization_id": "org-1",
		"user_id":         "user-9",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp triage.AnalysisResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success {
		t.Error("expected success")
	}
	if resp.AutoResolved {
		t.Error("expected no auto-resolution")
	}
	if resp.TriageStatus != alert.StatusIncidentLikely {
		t.Errorf("triage status = %q, want %q", resp.TriageStatus, alert.StatusIncidentLikely)
	}
}

func TestAnalyze_AutoResolvesFalsePositive(t *testing.T) {
	t.Parallel()

	prescreen := jsonCap(t, capability.CapDetectFalsePositive, analysis.FalsePositiveResult{
		IsFalsePositive: true,
		Confidence:      95,
		Recommendation: &analysis.AutoResolution{
			ShouldAutoResolve: true,
			ConfidenceLevel:   95,
			ResolutionType:    "false_positive",
			Reasoning:         "Known scanner traffic.",
		},
	})

	h := newHarness(t, prescreen)
	al := seedAlert(h)

	rec := do(t, h.router, http.MethodPost, "/api/v1/alerts/"+al.ID+"/analyze", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp triage.AnalysisResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.AutoResolved {
		t.Fatal("expected auto-resolution")
	}
	if resp.AutoResolvedStatus != alert.StatusFalsePositive {
		t.Errorf("resolved status = %q, want %q", resp.AutoResolvedStatus, alert.StatusFalsePositive)
	}
}

func TestAnalyze_CapabilityFailure(t *testing.T) {
	t.Parallel()

	// no capabilities registered: pre-screen fails with unknown tool
	h := newHarness(t)
	al := seedAlert(h)

	rec := do(t, h.router, http.MethodPost, "/api/v1/alerts/"+al.ID+"/analyze", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
}

// Classify

func TestClassify_UpdatesAlert(t *testing.T) {
	t.Parallel()

	classify := jsonCap(t, capability.CapClassifyAlert, analysis.Classification{
		SecurityEventType:    "brute_force",
		Tags:                 []string{"authentication", "brute-force"},
		Confidence:           91,
		CorrelationPotential: "high",
	})

	h := newHarness(t, classify)
	al := seedAlert(h)

	rec := do(t, h.router, http.MethodPost, "/api/v1/alerts/"+al.ID+"/classify", map[string]any{
		"force_refresh": true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp triage.ClassificationResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success {
		t.Error("expected success")
	}
	if resp.Classification == nil || resp.Classification.SecurityEventType != "brute_force" {
		t.Errorf("classification = %+v, want brute_force", resp.Classification)
	}
	if resp.Quality == nil {
		t.Error("expected quality report")
	}

	got, ok, err := h.store.GetAlert(context.Background(), al.ID)
	if err != nil || !ok {
		t.Fatalf("GetAlert: ok=%v err=%v", ok, err)
	}
	if got.SecurityEventType != "brute_force" {
		t.Errorf("stored event type = %q, want brute_force", got.SecurityEventType)
	}
}

// Tool execution

func TestExecuteTool_UnknownToolEnvelope(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	rec := do(t, h.router, http.MethodPost, "/api/v1/tools/execute", map[string]any{
		"tool_name": "nonexistent",
	})
	// executor converts unknown tools into a failed envelope, not an HTTP error
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var exec capability.Execution
	if err := json.NewDecoder(rec.Body).Decode(&exec); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if exec.Success {
		t.Error("expected failed execution")
	}
	if !strings.Contains(exec.Error, "Unknown tool") {
		t.Errorf("error = %q, want to contain Unknown tool", exec.Error)
	}
}

func TestExecuteTool_MissingName(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	rec := do(t, h.router, http.MethodPost, "/api/v1/tools/execute", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestExecuteTool_ValidateRejectsBadParams(t *testing.T) {
	t.Parallel()

	echo := jsonCap(t, "echo", map[string]string{"echo": "hi"})
	echo.schema = capability.Schema{
		Required: []string{"message"},
		Properties: map[string]capability.Property{
			"message": {Type: capability.TypeString},
		},
	}
	h := newHarness(t, echo)

	rec := do(t, h.router, http.MethodPost, "/api/v1/tools/execute", map[string]any{
		"tool_name":  "echo",
		"parameters": map[string]any{},
		"validate":   true,
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}
	if !strings.Contains(rec.Body.String(), "Missing required parameter: message") {
		t.Errorf("body = %q, want missing-parameter message", rec.Body.String())
	}
}

// Stats and executions

func TestToolStats_AfterExecutions(t *testing.T) {
	t.Parallel()

	echo := jsonCap(t, "echo", map[string]string{"echo": "hi"})
	h := newHarness(t, echo)

	for range 3 {
		do(t, h.router, http.MethodPost, "/api/v1/tools/execute", map[string]any{"tool_name": "echo"})
	}
	do(t, h.router, http.MethodPost, "/api/v1/tools/execute", map[string]any{"tool_name": "nope"})

	rec := do(t, h.router, http.MethodGet, "/api/v1/tools/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var stats struct {
		TotalCalls      int     `json:"total_calls"`
		SuccessfulCalls int     `json:"successful_calls"`
		FailedCalls     int     `json:"failed_calls"`
		SuccessRate     float64 `json:"success_rate"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TotalCalls != 4 || stats.SuccessfulCalls != 3 || stats.FailedCalls != 1 {
		t.Errorf("stats = %+v, want 4/3/1", stats)
	}
	if stats.SuccessRate != 75.0 {
		t.Errorf("success rate = %v, want 75.0", stats.SuccessRate)
	}
}

func TestToolExecutions_LimitAndFilter(t *testing.T) {
	t.Parallel()

	echo := jsonCap(t, "echo", map[string]string{"echo": "hi"})
	h := newHarness(t, echo)

	for range 5 {
		do(t, h.router, http.MethodPost, "/api/v1/tools/execute", map[string]any{"tool_name": "echo"})
	}

	rec := do(t, h.router, http.MethodGet, "/api/v1/tools/executions?tool=echo&limit=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp struct {
		Executions []*capability.Execution `json:"executions"`
		Count      int                     `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 2 || len(resp.Executions) != 2 {
		t.Errorf("count = %d (len %d), want 2", resp.Count, len(resp.Executions))
	}
}

func TestToolExecutions_BadSince(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	rec := do(t, h.router, http.MethodGet, "/api/v1/tools/executions?since=not-a-time", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
