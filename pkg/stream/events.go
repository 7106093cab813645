// Package stream correlates out-of-band progress events from long-running
// diagnostic operations with the in-process consumer awaiting them. The
// Broker is a publish/subscribe registry keyed by correlation id; the wire
// transport (SSE over HTTP) is pluggable and best-effort.
package stream

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event is one progress or lifecycle notification for a running operation.
// The Type field is drawn from a closed per-operation set: a start kind,
// any number of output kinds in production order, and exactly one terminal
// kind (complete, error or cancelled).
type Event struct {
	Type          string `json:"type"`
	CorrelationID string `json:"correlationId,omitempty"`
	Command       string `json:"command,omitempty"`
	Output        string `json:"output,omitempty"`
	Error         string `json:"error,omitempty"`
	Timestamp     string `json:"timestamp,omitempty"`
}

// EventConnected is the subscription handshake event emitted by the
// transport once a subscriber is attached.
const EventConnected = "connected"

// Terminal reports whether the event ends its operation's stream.
func (e Event) Terminal() bool {
	return strings.HasSuffix(e.Type, "_complete") ||
		strings.HasSuffix(e.Type, "_error") ||
		strings.HasSuffix(e.Type, "_cancelled")
}

// IsOutput reports whether the event carries incremental command output.
func (e Event) IsOutput() bool {
	return strings.HasSuffix(e.Type, "_output")
}

// NewCorrelationID mints an opaque identifier linking an issued operation to
// its progress events. Collision resistance comes from a time component plus
// a random component; this is uniqueness within a process lifetime, not a
// cryptographic token.
func NewCorrelationID() string {
	return fmt.Sprintf("diag-%d-%s", time.Now().UnixNano(), uuid.NewString()[:8])
}

// SessionState describes where a stream session is in its lifecycle.
type SessionState string

const (
	StatePending SessionState = "pending" // id minted, transport not yet attached
	StateOpen    SessionState = "open"    // handshake confirmed
	StateActive  SessionState = "active"  // at least one operation event seen
	StateClosed  SessionState = "closed"  // terminal event or subscriber gone
)
