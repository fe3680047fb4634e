package alertapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/warden/internal/audit"
	"github.com/linnemanlabs/warden/internal/capability"
)

const defaultExecutionsLimit = 50

// executeRequest invokes one capability, optionally validating parameters
// against the declared schema first.
type executeRequest struct {
	ToolName       string         `json:"tool_name"`
	Parameters     map[string]any `json:"parameters"`
	OrganizationID string         `json:"organization_id"`
	UserID         string         `json:"user_id"`
	SessionID      string         `json:"session_id"`
	Validate       bool           `json:"validate"`
}

func (a *API) handleExecuteTool(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.ToolName == "" {
		writeError(w, http.StatusBadRequest, "tool_name is required")
		return
	}

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("warden.tool.name", req.ToolName))

	if req.Validate {
		if err := a.executor.Validate(req.ToolName, req.Parameters); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
	}

	inv := capability.Invocation{
		OrganizationID: req.OrganizationID,
		UserID:         req.UserID,
		SessionID:      req.SessionID,
	}
	exec := a.executor.Execute(ctx, req.ToolName, req.Parameters, inv)

	span.SetAttributes(attribute.Bool("warden.tool.success", exec.Success))

	a.writeJSON(ctx, w, http.StatusOK, exec)
}

func (a *API) handleToolStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	f, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := a.auditLog.Stats(ctx, f)
	if err != nil {
		a.logger.Error(ctx, err, "failed to compute tool stats")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	a.writeJSON(ctx, w, http.StatusOK, stats)
}

func (a *API) handleToolExecutions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	f, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if f.Limit <= 0 {
		f.Limit = defaultExecutionsLimit
	}

	execs, err := a.auditLog.Recent(ctx, f)
	if err != nil {
		a.logger.Error(ctx, err, "failed to list tool executions")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	a.writeJSON(ctx, w, http.StatusOK, map[string]any{
		"executions": execs,
		"count":      len(execs),
	})
}

func filterFromQuery(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	f := audit.Filter{
		Tool:   q.Get("tool"),
		Status: capability.ExecStatus(q.Get("status")),
	}

	if raw := q.Get("since"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return audit.Filter{}, err
		}
		f.Since = ts
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return audit.Filter{}, err
		}
		f.Limit = n
	}
	return f, nil
}
