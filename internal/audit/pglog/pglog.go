// Package pglog provides a PostgreSQL implementation of audit.Log.
package pglog

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/warden/internal/alert"
	"github.com/linnemanlabs/warden/internal/audit"
	"github.com/linnemanlabs/warden/internal/capability"
)

var tracer = otel.Tracer("github.com/linnemanlabs/warden/internal/audit/pglog")

//go:embed schema.sql
var schema string

// Log persists audit records in PostgreSQL.
type Log struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready Log.
func New(ctx context.Context, pool *pgxpool.Pool) (*Log, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Log{pool: pool}, nil
}

// Append inserts one execution record.
func (l *Log) Append(ctx context.Context, e *capability.Execution) error {
	ctx, span := tracer.Start(ctx, "pglog.Append", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
	))
	defer span.End()

	paramsJSON, err := json.Marshal(e.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}

	_, err = l.pool.Exec(ctx,
		`INSERT INTO tool_executions (
			execution_id, tool_name, parameters, status, success, result, error,
			input_tokens, output_tokens, execution_time_ms, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		e.ExecutionID, e.ToolName, paramsJSON, string(e.Status), e.Success,
		e.Result, nullable(e.Error), e.InputTokens, e.OutputTokens,
		e.ExecutionTimeMs, e.Timestamp,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// AppendActivity inserts one activity record.
func (l *Log) AppendActivity(ctx context.Context, a *alert.ActivityLog) error {
	ctx, span := tracer.Start(ctx, "pglog.AppendActivity", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
	))
	defer span.End()

	_, err := l.pool.Exec(ctx,
		`INSERT INTO activity_logs (
			agent_name, task_name, alert_id, organization_id,
			input_tokens, output_tokens, execution_time_ms, success, error_message, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		a.AgentName, a.TaskName, a.AlertID, nullable(a.OrganizationID),
		a.InputTokens, a.OutputTokens, a.ExecutionTimeMs, a.Success,
		nullable(a.ErrorMessage), a.Timestamp,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// Recent returns matching executions, newest first.
func (l *Log) Recent(ctx context.Context, f audit.Filter) ([]*capability.Execution, error) {
	ctx, span := tracer.Start(ctx, "pglog.Recent", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT execution_id, tool_name, parameters, status, success, result, error,
		input_tokens, output_tokens, execution_time_ms, created_at
		FROM tool_executions WHERE 1=1`
	var args []any
	query, args = applyFilter(query, args, f)
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	var out []*capability.Execution
	for rows.Next() {
		var (
			e          capability.Execution
			status     string
			paramsJSON []byte
			errMsg     *string
		)
		if err := rows.Scan(
			&e.ExecutionID, &e.ToolName, &paramsJSON, &status, &e.Success,
			&e.Result, &errMsg, &e.InputTokens, &e.OutputTokens,
			&e.ExecutionTimeMs, &e.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		e.Status = capability.ExecStatus(status)
		if errMsg != nil {
			e.Error = *errMsg
		}
		if len(paramsJSON) > 0 {
			if err := json.Unmarshal(paramsJSON, &e.Parameters); err != nil {
				return nil, fmt.Errorf("unmarshal parameters: %w", err)
			}
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate executions: %w", err)
	}
	return out, nil
}

// Stats aggregates over matching executions in SQL, ignoring Limit.
func (l *Log) Stats(ctx context.Context, f audit.Filter) (*audit.Stats, error) {
	ctx, span := tracer.Start(ctx, "pglog.Stats", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT
		COUNT(*),
		COUNT(*) FILTER (WHERE success),
		COUNT(*) FILTER (WHERE NOT success),
		COALESCE(AVG(execution_time_ms) FILTER (WHERE success), 0)
		FROM tool_executions WHERE 1=1`
	var args []any
	query, args = applyFilter(query, args, f)

	s := &audit.Stats{}
	err := l.pool.QueryRow(ctx, query, args...).Scan(
		&s.TotalCalls, &s.SuccessfulCalls, &s.FailedCalls, &s.AverageExecutionTimeMs,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("aggregate stats: %w", err)
	}
	if s.TotalCalls > 0 {
		rate := float64(s.SuccessfulCalls) / float64(s.TotalCalls) * 100
		s.SuccessRate = math.Round(rate*100) / 100
	}
	return s, nil
}

func applyFilter(query string, args []any, f audit.Filter) (string, []any) {
	if f.Tool != "" {
		args = append(args, f.Tool)
		query += fmt.Sprintf(` AND tool_name = $%d`, len(args))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if !f.Since.IsZero() {
		args = append(args, f.Since)
		query += fmt.Sprintf(` AND created_at >= $%d`, len(args))
	}
	return query, args
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
