package secureops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ourcaldo/indexnow-mono-sub007/internal/audit"
	"github.com/ourcaldo/indexnow-mono-sub007/internal/resilience"
	"github.com/ourcaldo/indexnow-mono-sub007/pkg/requestcontext"
)

// Gateway is the single entry point for privileged mutations: it validates
// the caller's intent, executes the supplied operation under the resilience
// policy, and writes exactly one audit record per invocation.
type Gateway struct {
	executor *resilience.Executor
	sink     audit.Sink
	logger   *slog.Logger
	metrics  *Metrics
	tracer   trace.Tracer
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) GatewayOption {
	return func(g *Gateway) { g.logger = logger }
}

// WithMetrics attaches gateway metrics.
func WithMetrics(m *Metrics) GatewayOption {
	return func(g *Gateway) { g.metrics = m }
}

// NewGateway builds a gateway. The executor carries the retry/breaker/fallback
// policy; sink receives one audit record per call.
func NewGateway(executor *resilience.Executor, sink audit.Sink, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		executor: executor,
		sink:     sink,
		logger:   slog.Default(),
		tracer:   otel.Tracer("secureops"),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.sink == nil {
		g.sink = audit.NopSink{}
	}
	return g
}

// Execute runs op under the elevated service identity. Callers choosing this
// path over ExecuteWithSession carry the obligation to justify elevation via
// opCtx.Reason. Returns the operation's result tagged with its provenance.
func (g *Gateway) Execute(ctx context.Context, opCtx Context, desc Descriptor, op Operation) (resilience.Result, error) {
	if err := validate(opCtx, desc); err != nil {
		return resilience.Result{}, err
	}
	return g.run(ctx, opCtx, desc, op)
}

// ExecuteWithSession runs op with the caller's authenticated session threaded
// through, so the underlying store enforces row-level authorization using the
// caller's own identity. This is the default-safe path.
func (g *Gateway) ExecuteWithSession(ctx context.Context, sess *Session, opCtx Context, desc Descriptor, op SessionOperation) (resilience.Result, error) {
	if sess == nil || sess.Token == "" {
		return resilience.Result{}, &ValidationError{Field: "session", Message: "is required"}
	}
	if err := validate(opCtx, desc); err != nil {
		return resilience.Result{}, err
	}
	ctx = requestcontext.WithSessionToken(ctx, sess.Token)
	return g.run(ctx, opCtx, desc, func(ctx context.Context) (any, error) {
		return op(ctx, sess)
	})
}

// run executes the operation under the breaker keyed by the descriptor's
// target and records the outcome. Exactly one audit record is written per
// invocation, success or failure; a failed audit write is logged and never
// masks the operation's outcome.
func (g *Gateway) run(ctx context.Context, opCtx Context, desc Descriptor, op Operation) (resilience.Result, error) {
	ctx, span := g.tracer.Start(ctx, "secureops.execute",
		trace.WithAttributes(
			attribute.String("secureops.target", desc.Target),
			attribute.String("secureops.operation", opCtx.Operation),
			attribute.String("secureops.actor", opCtx.ActorID),
		))
	defer span.End()

	started := time.Now()
	result, err := g.executor.Execute(ctx, desc.Target, resilience.Operation(op))
	duration := time.Since(started)

	// A fallback value can stand in for a read, never for a write: the store
	// was not reached, so the mutation did not happen.
	if err == nil && result.Source == resilience.SourceFallback && desc.Kind != KindSelect {
		err = fmt.Errorf("%w: %s mutation served from fallback", ErrDependencyUnavailable, desc.Target)
		result = resilience.Result{}
	}

	outcome := "success"
	if err != nil {
		outcome = "failure"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if g.metrics != nil {
		g.metrics.OperationsTotal.WithLabelValues(desc.Target, outcome).Inc()
		g.metrics.OperationDuration.WithLabelValues(desc.Target).Observe(duration.Seconds())
	}

	g.writeAudit(ctx, opCtx, desc, result, err, started, duration)

	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, ErrDependencyUnavailable) {
			return resilience.Result{}, ErrDependencyUnavailable
		}
		return resilience.Result{}, &OperationError{
			Operation: opCtx.Operation,
			Target:    desc.Target,
			Err:       err,
		}
	}
	return result, nil
}

// writeAudit maps the invocation to a flat audit record and hands it to the
// sink. Best effort by contract.
func (g *Gateway) writeAudit(ctx context.Context, opCtx Context, desc Descriptor, result resilience.Result, opErr error, started time.Time, duration time.Duration) {
	rec := audit.Record{
		ID:         uuid.New(),
		ActorID:    opCtx.ActorID,
		Operation:  opCtx.Operation,
		Reason:     opCtx.Reason,
		Source:     opCtx.Source,
		Metadata:   opCtx.Metadata,
		IPAddress:  opCtx.IPAddress,
		UserAgent:  opCtx.UserAgent,
		Target:     desc.Target,
		Kind:       string(desc.Kind),
		Columns:    desc.Columns,
		Filter:     desc.Filter,
		Payload:    desc.Payload,
		Succeeded:  opErr == nil,
		StartedAt:  started,
		DurationMs: duration.Milliseconds(),
	}
	if opErr != nil {
		rec.ErrorMessage = opErr.Error()
	} else {
		rec.ResultOrigin = string(result.Source)
	}

	// The record must land even when the caller's context was cancelled
	// mid-operation; the outcome still happened.
	if err := g.sink.Record(context.WithoutCancel(ctx), rec); err != nil {
		if g.metrics != nil {
			g.metrics.AuditWriteErrors.Inc()
		}
		g.logger.Error("audit write failed",
			"error", errors.Join(ErrAuditWriteFailed, err),
			"operation", opCtx.Operation,
			"actor", opCtx.ActorID,
			"target", desc.Target,
		)
	}
}

func validate(opCtx Context, desc Descriptor) error {
	switch {
	case opCtx.ActorID == "":
		return &ValidationError{Field: "context.actor_id", Message: "is required"}
	case opCtx.Operation == "":
		return &ValidationError{Field: "context.operation", Message: "is required"}
	case opCtx.Reason == "":
		return &ValidationError{Field: "context.reason", Message: "is required"}
	case desc.Target == "":
		return &ValidationError{Field: "descriptor.target", Message: "is required"}
	case desc.Kind != "" && !desc.Kind.IsValid():
		return &ValidationError{Field: "descriptor.kind", Message: "must be select, insert, update or delete"}
	}
	return nil
}
