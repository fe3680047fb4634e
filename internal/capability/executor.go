package capability

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/linnemanlabs/warden/internal/capability")

// ExecStatus tracks an invocation through its lifecycle.
type ExecStatus string

const (
	ExecStarted   ExecStatus = "started"
	ExecCompleted ExecStatus = "completed"
	ExecFailed    ExecStatus = "failed"
)

// Execution is the uniform envelope returned by every capability
// invocation. Immutable once written to the audit log.
type Execution struct {
	ExecutionID     string          `json:"execution_id"`
	ToolName        string          `json:"tool_name"`
	Parameters      map[string]any  `json:"parameters,omitempty"`
	Status          ExecStatus      `json:"status"`
	Success         bool            `json:"success"`
	Result          json.RawMessage `json:"result,omitempty"`
	Error           string          `json:"error,omitempty"`
	InputTokens     int64           `json:"input_tokens,omitempty"`
	OutputTokens    int64           `json:"output_tokens,omitempty"`
	ExecutionTimeMs int64           `json:"execution_time_ms"`
	Timestamp       time.Time       `json:"timestamp"`
}

// Invocation carries the caller identity merged into capability parameters.
// Context fields win on key collision with caller-supplied parameters.
type Invocation struct {
	OrganizationID string
	UserID         string
	SessionID      string
}

func (in Invocation) merge(params map[string]any) map[string]any {
	merged := make(map[string]any, len(params)+3)
	for k, v := range params {
		merged[k] = v
	}
	if in.OrganizationID != "" {
		merged["organization_id"] = in.OrganizationID
	}
	if in.UserID != "" {
		merged["user_id"] = in.UserID
	}
	if in.SessionID != "" {
		merged["session_id"] = in.SessionID
	}
	return merged
}

// Recorder receives one record per invocation. Implemented by the audit log.
type Recorder interface {
	Append(ctx context.Context, e *Execution) error
}

// Observer is an optional per-invocation hook, wired to metrics by main.
type Observer func(tool string, durationMs int64, success bool)

// Executor runs capabilities from a registry: it wraps every invocation in
// timing and success/failure bookkeeping, converts capability errors into
// failure envelopes instead of propagating them, and writes one audit
// record per call.
type Executor struct {
	registry *Registry
	recorder Recorder
	logger   log.Logger
	observer Observer
}

// NewExecutor creates an executor. recorder and observer may be nil.
func NewExecutor(registry *Registry, recorder Recorder, logger log.Logger, observer Observer) *Executor {
	if logger == nil {
		logger = log.Nop()
	}
	return &Executor{
		registry: registry,
		recorder: recorder,
		logger:   logger,
		observer: observer,
	}
}

// Execute invokes a named capability. It never returns a Go error: unknown
// names and capability failures both surface as a failed envelope so batch
// and stats tooling keep working. Schema validation is NOT applied here -
// callers opt in via Validate.
func (x *Executor) Execute(ctx context.Context, name string, params map[string]any, inv Invocation) *Execution {
	ctx, span := tracer.Start(ctx, "capability.execute", trace.WithAttributes(
		attribute.String("gen_ai.operation.name", "capability.execute"),
		attribute.String("warden.capability", name),
	))
	defer span.End()

	merged := inv.merge(params)
	e := &Execution{
		ExecutionID: ulid.Make().String(),
		ToolName:    name,
		Parameters:  merged,
		Status:      ExecStarted,
		Timestamp:   time.Now(),
	}

	c, ok := x.registry.Get(name)
	if !ok {
		err := &NotFoundError{Name: name, Known: x.registry.Names()}
		return x.finish(ctx, e, nil, err)
	}

	out, err := c.Execute(ctx, merged)
	return x.finish(ctx, e, out, err)
}

// Validate checks parameters against the capability's declared schema.
// Advisory: Execute does not call this, so a malformed call surfaces as a
// capability error instead.
func (x *Executor) Validate(name string, params map[string]any) error {
	c, ok := x.registry.Get(name)
	if !ok {
		return &NotFoundError{Name: name, Known: x.registry.Names()}
	}

	schema := c.Schema()
	for _, field := range schema.Required {
		if _, present := params[field]; !present {
			return &ValidationError{Field: field, Missing: true}
		}
	}
	for field, prop := range schema.Properties {
		v, present := params[field]
		if !present {
			continue
		}
		if actual := typeName(v); actual != prop.Type {
			return &ValidationError{Field: field, Expected: prop.Type, Actual: string(actual)}
		}
	}
	return nil
}

// Call names one capability invocation in a batch.
type Call struct {
	Tool   string         `json:"tool"`
	Params map[string]any `json:"params,omitempty"`
}

// ExecuteBatch runs a set of calls, sequentially or as a concurrent
// fan-out. Parallel mode joins on all-complete: a failed call never aborts
// the others, each result stands on its own.
func (x *Executor) ExecuteBatch(ctx context.Context, calls []Call, inv Invocation, parallel bool) []*Execution {
	results := make([]*Execution, len(calls))

	if !parallel {
		for i, c := range calls {
			results[i] = x.Execute(ctx, c.Tool, c.Params, inv)
		}
		return results
	}

	var wg sync.WaitGroup
	for i, c := range calls {
		wg.Add(1)
		go func(i int, c Call) {
			defer wg.Done()
			results[i] = x.Execute(ctx, c.Tool, c.Params, inv)
		}(i, c)
	}
	wg.Wait()
	return results
}

func (x *Executor) finish(ctx context.Context, e *Execution, out *Output, err error) *Execution {
	e.ExecutionTimeMs = time.Since(e.Timestamp).Milliseconds()
	span := trace.SpanFromContext(ctx)

	if err != nil {
		e.Status = ExecFailed
		e.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		e.Status = ExecCompleted
		e.Success = true
		if out != nil {
			e.Result = out.Result
			e.InputTokens = out.InputTokens
			e.OutputTokens = out.OutputTokens
		}
		span.SetAttributes(
			attribute.Int64("gen_ai.usage.input_tokens", e.InputTokens),
			attribute.Int64("gen_ai.usage.output_tokens", e.OutputTokens),
		)
	}

	if x.recorder != nil {
		// audit append failure must not fail the invocation
		if appendErr := x.recorder.Append(ctx, e); appendErr != nil {
			x.logger.Error(ctx, appendErr, "failed to record execution",
				"execution_id", e.ExecutionID,
				"tool", e.ToolName,
			)
		}
	}
	if x.observer != nil {
		x.observer(e.ToolName, e.ExecutionTimeMs, e.Success)
	}

	if err != nil {
		x.logger.Warn(ctx, "capability execution failed",
			"execution_id", e.ExecutionID,
			"tool", e.ToolName,
			"error", e.Error,
			"duration_ms", e.ExecutionTimeMs,
		)
	}
	return e
}

// typeName reports the schema type of a decoded JSON value. Arrays are
// counted distinctly from objects.
func typeName(v any) ParamType {
	switch v.(type) {
	case string:
		return TypeString
	case bool:
		return TypeBoolean
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return TypeNumber
	case map[string]any:
		return TypeObject
	case []any:
		return TypeArray
	default:
		return ParamType("null")
	}
}
