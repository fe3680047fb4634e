// Package alertapi exposes the triage pipeline and tool executor over HTTP.
package alertapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"github.com/linnemanlabs/warden/internal/alert"
	"github.com/linnemanlabs/warden/internal/audit"
	"github.com/linnemanlabs/warden/internal/capability"
	"github.com/linnemanlabs/warden/internal/triage"
)

// TriageService defines the pipeline operations alertapi needs.
type TriageService interface {
	PerformAnalysis(ctx context.Context, al *alert.Alert, inv capability.Invocation) (*triage.AnalysisResponse, error)
	PerformClassification(ctx context.Context, al *alert.Alert, inv capability.Invocation, opts triage.ClassifyOptions) (*triage.ClassificationResponse, error)
}

// AlertLookup fetches alert records for the id-addressed endpoints.
type AlertLookup interface {
	GetAlert(ctx context.Context, id string) (*alert.Alert, bool, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger   log.Logger
	svc      TriageService
	alerts   AlertLookup
	executor *capability.Executor
	auditLog audit.Log
}

// New creates a new API handler.
func New(logger log.Logger, svc TriageService, alerts AlertLookup, executor *capability.Executor, auditLog audit.Log) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("triage service is required"))
	}
	if alerts == nil {
		panic(xerrors.New("alert lookup is required"))
	}
	if executor == nil {
		panic(xerrors.New("executor is required"))
	}
	return &API{
		logger:   logger,
		svc:      svc,
		alerts:   alerts,
		executor: executor,
		auditLog: auditLog,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/alerts/{id}/analyze", a.handleAnalyzeAlert)
		r.Post("/alerts/{id}/classify", a.handleClassifyAlert)
		r.Post("/tools/execute", a.handleExecuteTool)
		r.Get("/tools/stats", a.handleToolStats)
		r.Get("/tools/executions", a.handleToolExecutions)
	})
}

func (a *API) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error(ctx, err, "failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
