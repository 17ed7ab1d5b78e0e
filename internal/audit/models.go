package audit

import (
	"time"

	"github.com/google/uuid"
)

// Record captures who did what, why, and from where for one privileged
// operation. It is emitted from the gateway and kept transport-agnostic so
// stores and sinks can fan out. Created exactly once per gateway call and
// never mutated afterwards; retention is the sink's concern.
type Record struct {
	ID uuid.UUID `json:"id"`

	// Actor intent.
	ActorID   string         `json:"actor_id"`
	Operation string         `json:"operation"`
	Reason    string         `json:"reason"`
	Source    string         `json:"source"` // calling subsystem
	Metadata  map[string]any `json:"metadata,omitempty"`
	IPAddress string         `json:"ip_address,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`

	// Described mutation.
	Target  string         `json:"target"`
	Kind    string         `json:"kind"`
	Columns []string       `json:"columns,omitempty"`
	Filter  map[string]any `json:"filter,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`

	// Outcome.
	Succeeded    bool      `json:"succeeded"`
	ErrorMessage string    `json:"error_message,omitempty"`
	ResultOrigin string    `json:"result_origin,omitempty"` // primary or fallback
	StartedAt    time.Time `json:"started_at"`
	DurationMs   int64     `json:"duration_ms"`
}
