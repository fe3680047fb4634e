package capability

import (
	"context"
	"encoding/json"
	"sort"
)

// Names of the builtin capabilities.
const (
	CapDetectFalsePositive = "detect_false_positive"
	CapAnalyzeAlert        = "analyze_alert"
	CapClassifyAlert       = "classify_alert"
)

// Capability is a named, independently invocable unit of AI-assisted work
// warden can execute against the model backend.
type Capability interface {
	Name() string
	Description() string
	Schema() Schema
	Execute(ctx context.Context, params map[string]any) (*Output, error)
}

// Output is what a capability hands back: the structured result plus the
// token usage of the backing model call, when available.
type Output struct {
	Result       json.RawMessage
	InputTokens  int64
	OutputTokens int64
}

// ParamType is the declared primitive type of a schema property.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeObject  ParamType = "object"
	TypeArray   ParamType = "array"
)

// Property declares the expected type of a single parameter.
type Property struct {
	Type        ParamType `json:"type"`
	Description string    `json:"description,omitempty"`
}

// Schema declares a capability's parameters: which fields are required and
// what primitive type each field carries.
type Schema struct {
	Required   []string            `json:"required,omitempty"`
	Properties map[string]Property `json:"properties,omitempty"`
}

// Registry holds available capabilities. Populated once at process start
// and read-only afterward, so lookups need no locking.
type Registry struct {
	caps map[string]Capability
}

// NewRegistry creates an empty capability registry.
func NewRegistry() *Registry {
	return &Registry{caps: make(map[string]Capability)}
}

// Register adds a capability to the registry, keyed by its Name.
func (r *Registry) Register(c Capability) {
	r.caps[c.Name()] = c
}

// Get retrieves a capability by name.
func (r *Registry) Get(name string) (Capability, bool) {
	c, ok := r.caps[name]
	return c, ok
}

// Names returns the registered capability names, sorted for stable error
// messages and listings.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.caps))
	for name := range r.caps {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
