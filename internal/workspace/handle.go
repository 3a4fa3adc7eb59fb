package workspace

import (
	"time"
)

// State is the lifecycle of one handle. Transitions only happen under the
// pool mutex.
type State int32

const (
	// StateOpening means the underlying index open is in flight.
	StateOpening State = iota
	// StateReady means the handle serves queries.
	StateReady
	// StateClosing means the handle is flushing and closing.
	StateClosing
	// StateClosed means the handle is gone from the table.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handle is one live per-workspace index, exclusively owned by the pool and
// shared read-only across queries via its refcount. It is destroyed only at
// refcount zero, on eviction or shutdown.
type Handle struct {
	id    string
	index Index

	// All fields below are guarded by the pool mutex.
	refs       int
	state      State
	stale      bool
	insertedAt time.Time
	lastAccess time.Time

	ready   chan struct{} // closed when the open completes (ok or not)
	closed  chan struct{} // closed when the handle left the table
	openErr error
}

// WorkspaceID returns the canonical workspace identity.
func (h *Handle) WorkspaceID() string {
	return h.id
}

// Index returns the open query capability. Valid only between Acquire and
// the matching Release.
func (h *Handle) Index() Index {
	return h.index
}

// Generation returns the index generation of the open handle.
func (h *Handle) Generation() uint64 {
	return h.index.Generation()
}

// HandleInfo is a point-in-time snapshot for status reporting.
type HandleInfo struct {
	Workspace  string    `json:"workspace"`
	State      string    `json:"state"`
	Refs       int       `json:"refs"`
	Stale      bool      `json:"stale,omitempty"`
	LastAccess time.Time `json:"last_access"`
}
