package audit

import "context"

// Sink is an append-only recorder of audit records. The gateway treats it as
// fire-and-forget: sink errors are logged, never propagated to callers.
type Sink interface {
	Record(ctx context.Context, rec Record) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, rec Record) error

func (f SinkFunc) Record(ctx context.Context, rec Record) error {
	return f(ctx, rec)
}

// NopSink discards every record. Useful as a default in tests and tools.
type NopSink struct{}

func (NopSink) Record(context.Context, Record) error { return nil }
