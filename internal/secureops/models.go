// Package secureops routes every privileged mutation through one audited,
// resilience-wrapped execution path.
package secureops

import "context"

// Kind is the class of store mutation a descriptor announces.
type Kind string

const (
	KindSelect Kind = "select"
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// IsValid checks if the kind is one of the supported enum values.
func (k Kind) IsValid() bool {
	switch k {
	case KindSelect, KindInsert, KindUpdate, KindDelete:
		return true
	}
	return false
}

// Context describes the actor and intent behind a privileged operation.
// Immutable; created per call; never persisted except inside an audit record.
type Context struct {
	ActorID   string
	Operation string
	Reason    string
	Source    string
	Metadata  map[string]any
	IPAddress string
	UserAgent string
}

// Descriptor describes the intended mutation: target table, operation kind,
// columns, filter predicate, payload. It exists for audit fidelity. The
// descriptor is what gets logged, so callers must keep it consistent with
// what the executed closure actually does.
type Descriptor struct {
	Target  string
	Kind    Kind
	Columns []string
	Filter  map[string]any
	Payload map[string]any
}

// Operation is a caller-supplied unit of work performing the real store
// access. The gateway knows nothing about its internals beyond timing and
// success/failure.
type Operation func(ctx context.Context) (any, error)

// SessionOperation is an Operation that additionally receives the caller's
// authenticated session, so the store enforces row-level authorization with
// the caller's own identity instead of an elevated service identity.
type SessionOperation func(ctx context.Context, sess *Session) (any, error)
