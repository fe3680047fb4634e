package alertapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/warden/internal/alert"
	"github.com/linnemanlabs/warden/internal/capability"
	"github.com/linnemanlabs/warden/internal/triage"
)

// analyzeRequest carries the caller identity and tuning for a pipeline run.
type analyzeRequest struct {
	OrganizationID string `json:"organization_id"`
	UserID         string `json:"user_id"`
	SessionID      string `json:"session_id"`
	ForceRefresh   bool   `json:"force_refresh"`
}

func (a *API) handleAnalyzeAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("warden.alert.id", id))

	req, err := decodeRunRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	al, ok, err := a.alerts.GetAlert(ctx, id)
	if err != nil {
		a.logger.Error(ctx, err, "failed to load alert", "alert_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}

	resp, err := a.svc.PerformAnalysis(ctx, al, invocation(req, al))
	if err != nil {
		a.logger.Error(ctx, err, "analysis pipeline failed", "alert_id", id)
		writeError(w, http.StatusBadGateway, "analysis failed")
		return
	}

	span.SetAttributes(
		attribute.Bool("warden.analysis.auto_resolved", resp.AutoResolved),
		attribute.String("warden.analysis.triage_status", string(resp.TriageStatus)),
	)

	a.writeJSON(ctx, w, http.StatusOK, resp)
}

func (a *API) handleClassifyAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("warden.alert.id", id))

	req, err := decodeRunRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	al, ok, err := a.alerts.GetAlert(ctx, id)
	if err != nil {
		a.logger.Error(ctx, err, "failed to load alert", "alert_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}

	opts := triage.ClassifyOptions{ForceRefresh: req.ForceRefresh}
	resp, err := a.svc.PerformClassification(ctx, al, invocation(req, al), opts)
	if err != nil {
		a.logger.Error(ctx, err, "classification failed", "alert_id", id)
		writeError(w, http.StatusBadGateway, "classification failed")
		return
	}

	a.writeJSON(ctx, w, http.StatusOK, resp)
}

// decodeRunRequest tolerates an empty body: identity fields are optional.
func decodeRunRequest(r *http.Request) (analyzeRequest, error) {
	var req analyzeRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		return analyzeRequest{}, err
	}
	return req, nil
}

func invocation(req analyzeRequest, al *alert.Alert) capability.Invocation {
	inv := capability.Invocation{
		OrganizationID: req.OrganizationID,
		UserID:         req.UserID,
		SessionID:      req.SessionID,
	}
	if inv.OrganizationID == "" {
		inv.OrganizationID = al.OrganizationID
	}
	return inv
}
