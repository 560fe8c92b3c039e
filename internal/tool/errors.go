package tool

import (
	"fmt"
	"strings"
)

// ValidationError reports an input-contract violation: missing required
// fields or an invalid enum value. All missing fields are aggregated into
// one error rather than failing on the first.
type ValidationError struct {
	Tool          string
	MissingFields []string
	Message       string
}

func (e *ValidationError) Error() string {
	if len(e.MissingFields) > 0 {
		return fmt.Sprintf("%s: missing required fields: %s", e.Tool, strings.Join(e.MissingFields, ", "))
	}
	return fmt.Sprintf("%s: %s", e.Tool, e.Message)
}

// PermissionError reports a failed role/ownership check, naming the role
// that would have been required.
type PermissionError struct {
	Tool         string
	RequiredRole string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s: permission denied, requires role %q", e.Tool, e.RequiredRole)
}

// NotFoundError reports that a referenced entity does not resolve. The desk
// never substitutes a guess for a missing entity.
type NotFoundError struct {
	Tool     string
	Resource string
	Ref      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s %q not found", e.Tool, e.Resource, e.Ref)
}

// UnknownToolError reports a dispatch against a name outside the fixed
// registry. It is fatal for the whole request: the plan referenced
// something the execution layer cannot safely interpret.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Name)
}
