package errors

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies service errors so callers can decide whether to retry,
// rebuild or surface the failure as-is.
type Kind string

const (
	// KindCapacityExceeded means the handle pool was full and nothing became
	// evictable within the acquire wait bound. Retryable.
	KindCapacityExceeded Kind = "capacity_exceeded"

	// KindOpenFailure means the underlying index could not be opened.
	// Not retryable; the caller may trigger an explicit rebuild.
	KindOpenFailure Kind = "open_failure"

	// KindBudgetUnsatisfiable means even the mandatory first item exceeds
	// the response budget. The response is still returned, truncated.
	KindBudgetUnsatisfiable Kind = "budget_unsatisfiable"

	// KindResourceNotFound means an overflow resource URI does not resolve,
	// either because it never existed or because its TTL elapsed.
	KindResourceNotFound Kind = "resource_not_found"

	// KindCacheCorruption means a cache entry failed to decode. Treated as
	// a miss by the owning cache; surfaced only through logs.
	KindCacheCorruption Kind = "cache_corruption"

	// KindInternal covers everything without a more specific kind.
	KindInternal Kind = "internal"
)

// ServiceError carries the error kind, the workspace it concerns and a
// remediation hint the MCP client can act on.
type ServiceError struct {
	Kind       Kind
	Workspace  string
	Operation  string
	Hint       string
	Underlying error
	Timestamp  time.Time
	Retryable  bool
}

func (e *ServiceError) Error() string {
	if e.Workspace != "" {
		return fmt.Sprintf("%s: %s failed for workspace %s: %v", e.Kind, e.Operation, e.Workspace, e.Underlying)
	}
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %s failed: %v", e.Kind, e.Operation, e.Underlying)
	}
	return fmt.Sprintf("%s: %s failed", e.Kind, e.Operation)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *ServiceError) Unwrap() error {
	return e.Underlying
}

// IsRetryable reports whether the caller may usefully retry the operation.
func (e *ServiceError) IsRetryable() bool {
	return e.Retryable
}

// New creates a ServiceError for the given kind and operation.
func New(kind Kind, op string, err error) *ServiceError {
	return &ServiceError{
		Kind:       kind,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// WithWorkspace attaches the workspace identity to the error.
func (e *ServiceError) WithWorkspace(workspace string) *ServiceError {
	e.Workspace = workspace
	return e
}

// WithHint attaches a remediation hint for the caller.
func (e *ServiceError) WithHint(hint string) *ServiceError {
	e.Hint = hint
	return e
}

// WithRetryable marks the error as retryable.
func (e *ServiceError) WithRetryable(retryable bool) *ServiceError {
	e.Retryable = retryable
	return e
}

// CapacityExceeded builds the pool-full error with its standard hint.
func CapacityExceeded(workspace string, waited time.Duration) *ServiceError {
	return New(KindCapacityExceeded, "acquire",
		fmt.Errorf("pool at capacity, nothing evictable after %v", waited)).
		WithWorkspace(workspace).
		WithHint("all resident index handles are busy; retry shortly or release other workspaces").
		WithRetryable(true)
}

// OpenFailure builds the index-open error with its standard hint.
func OpenFailure(workspace string, err error) *ServiceError {
	return New(KindOpenFailure, "open", err).
		WithWorkspace(workspace).
		WithHint("the workspace index is unusable; rebuild it with evict_workspace followed by a fresh search")
}

// ResourceNotFound builds the typed not-found error for a resource URI.
func ResourceNotFound(uri string) *ServiceError {
	return New(KindResourceNotFound, "get_resource", fmt.Errorf("no resource for %s", uri)).
		WithHint("the resource expired or never existed; re-run the search to regenerate it")
}

// KindOf extracts the Kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// HintOf extracts the remediation hint of err, if any.
func HintOf(err error) string {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Hint
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
