// Package pgstore provides a PostgreSQL implementation of
// triage.RecordStore.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/warden/internal/alert"
)

var tracer = otel.Tracer("github.com/linnemanlabs/warden/internal/triage/pgstore")

//go:embed schema.sql
var schema string

// Store persists alerts and timeline events in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready Store.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const alertColumns = `id, organization_id, title, description, severity, status, source,
	security_event_type, event_tags, tags_confidence, tags_generated_at, ai_analysis,
	resolve_remarks, triage_remarks, triage_timestamp, created_at, updated_at`

// GetAlert retrieves an alert by ID.
func (s *Store) GetAlert(ctx context.Context, id string) (*alert.Alert, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.GetAlert", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`
	al, err := scanAlert(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if al == nil {
		return nil, false, nil
	}
	return al, true, nil
}

// UpdateAlert applies a partial update. Nil patch fields are untouched.
func (s *Store) UpdateAlert(ctx context.Context, id string, p *alert.Patch) error {
	ctx, span := tracer.Start(ctx, "pgstore.UpdateAlert", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPDATE"),
	))
	defer span.End()

	sets := []string{"updated_at = now()"}
	var args []any

	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if p.Status != nil {
		add("status", string(*p.Status))
	}
	if p.SecurityEventType != nil {
		add("security_event_type", *p.SecurityEventType)
	}
	if p.EventTags != nil {
		tagsJSON, err := json.Marshal(p.EventTags)
		if err != nil {
			return fmt.Errorf("marshal event tags: %w", err)
		}
		add("event_tags", tagsJSON)
	}
	if p.TagsConfidence != nil {
		add("tags_confidence", *p.TagsConfidence)
	}
	if p.TagsGeneratedAt != nil {
		add("tags_generated_at", *p.TagsGeneratedAt)
	}
	if p.AIAnalysis != nil {
		add("ai_analysis", p.AIAnalysis)
	}
	if p.ResolveRemarks != nil {
		add("resolve_remarks", *p.ResolveRemarks)
	}
	if p.TriageRemarks != nil {
		add("triage_remarks", *p.TriageRemarks)
	}
	if p.TriageTimestamp != nil {
		add("triage_timestamp", *p.TriageTimestamp)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE alerts SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("update alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("alert %s not found", id)
	}
	return nil
}

// AppendTimelineEvent inserts one timeline event.
func (s *Store) AppendTimelineEvent(ctx context.Context, ev *alert.TimelineEvent) error {
	ctx, span := tracer.Start(ctx, "pgstore.AppendTimelineEvent", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
	))
	defer span.End()

	metaJSON, err := json.Marshal(ev.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO timeline_events (id, alert_id, created_at, event_type, title, description, ai_source, ai_confidence, metadata)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		ev.ID, ev.AlertID, ev.Timestamp, string(ev.Type), ev.Title, ev.Description,
		ev.AISource, ev.AIConfidence, metaJSON,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("insert timeline event: %w", err)
	}
	return nil
}

// scanAlert scans a single row into an Alert. Returns (nil, nil) when no
// row is found.
func scanAlert(row pgx.Row) (*alert.Alert, error) {
	var (
		al              alert.Alert
		status          string
		tagsJSON        []byte
		tagsGeneratedAt *time.Time
		triageTimestamp *time.Time
		updatedAt       *time.Time
	)

	err := row.Scan(
		&al.ID, &al.OrganizationID, &al.Title, &al.Description, &al.Severity, &status,
		&al.Source, &al.SecurityEventType, &tagsJSON, &al.TagsConfidence, &tagsGeneratedAt,
		&al.AIAnalysis, &al.ResolveRemarks, &al.TriageRemarks, &triageTimestamp,
		&al.CreatedAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan: %w", err)
	}

	al.Status = alert.Status(status)
	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &al.EventTags); err != nil {
			return nil, fmt.Errorf("unmarshal event tags: %w", err)
		}
	}
	if tagsGeneratedAt != nil {
		al.TagsGeneratedAt = *tagsGeneratedAt
	}
	if triageTimestamp != nil {
		al.TriageTimestamp = *triageTimestamp
	}
	if updatedAt != nil {
		al.UpdatedAt = *updatedAt
	}
	return &al, nil
}
