package capability

import (
	"fmt"
	"strings"
)

// NotFoundError reports an unknown capability name. It carries the list of
// known names so callers can see what is actually registered.
type NotFoundError struct {
	Name  string
	Known []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Unknown tool: %s (known: %s)", e.Name, strings.Join(e.Known, ", "))
}

// ValidationError reports a parameter that does not match the declared
// schema. Only surfaced via the explicit Validate entry point; Execute does
// not pre-validate.
type ValidationError struct {
	Field    string
	Expected ParamType
	Actual   string
	Missing  bool
}

func (e *ValidationError) Error() string {
	if e.Missing {
		return fmt.Sprintf("Missing required parameter: %s", e.Field)
	}
	return fmt.Sprintf("Invalid type for parameter %s: expected %s, got %s", e.Field, e.Expected, e.Actual)
}
