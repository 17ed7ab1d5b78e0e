package secureops

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/ourcaldo/indexnow-mono-sub007/internal/audit"
	auditmem "github.com/ourcaldo/indexnow-mono-sub007/internal/audit/store/memory"
	"github.com/ourcaldo/indexnow-mono-sub007/internal/resilience"
	"github.com/ourcaldo/indexnow-mono-sub007/pkg/requestcontext"
	"github.com/ourcaldo/indexnow-mono-sub007/pkg/sentinel"
)

type failingSink struct{}

func (failingSink) Record(context.Context, audit.Record) error {
	return errors.New("sink unavailable")
}

type GatewaySuite struct {
	suite.Suite
	ctx  context.Context
	sink *auditmem.Store
}

func TestGatewaySuite(t *testing.T) {
	suite.Run(t, new(GatewaySuite))
}

func (s *GatewaySuite) SetupTest() {
	s.ctx = context.Background()
	s.sink = auditmem.New()
}

func (s *GatewaySuite) newGateway(sink audit.Sink, breakerThreshold int) *Gateway {
	executor := resilience.NewExecutor(
		resilience.NewRegistry(breakerThreshold, 30*time.Second),
		resilience.WithBackoff(resilience.Backoff{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			MaxDelay:    4 * time.Millisecond,
		}),
	)
	return NewGateway(executor, sink,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func opContext() Context {
	return Context{
		ActorID:   "admin-1",
		Operation: "role.escalate",
		Reason:    "support ticket 4821",
		Source:    "admin-api",
		IPAddress: "10.0.0.1",
		UserAgent: "Firefox/128.0 (Linux)",
	}
}

func descriptor() Descriptor {
	return Descriptor{
		Target:  "user_profiles",
		Kind:    KindUpdate,
		Columns: []string{"role"},
		Filter:  map[string]any{"user_id": "u-1"},
		Payload: map[string]any{"role": "admin"},
	}
}

func (s *GatewaySuite) TestValidationFailsFast() {
	gw := s.newGateway(s.sink, 5)

	cases := []struct {
		name  string
		opCtx Context
		desc  Descriptor
		field string
	}{
		{"missing actor", Context{Operation: "x", Reason: "y"}, descriptor(), "context.actor_id"},
		{"missing operation", Context{ActorID: "a", Reason: "y"}, descriptor(), "context.operation"},
		{"missing reason", Context{ActorID: "a", Operation: "x"}, descriptor(), "context.reason"},
		{"missing target", opContext(), Descriptor{Kind: KindUpdate}, "descriptor.target"},
		{"bad kind", opContext(), Descriptor{Target: "t", Kind: Kind("drop")}, "descriptor.kind"},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			invoked := false
			_, err := gw.Execute(s.ctx, tc.opCtx, tc.desc, func(context.Context) (any, error) {
				invoked = true
				return nil, nil
			})
			s.Require().Error(err)

			var verr *ValidationError
			s.Require().ErrorAs(err, &verr)
			s.Equal(tc.field, verr.Field)
			s.False(invoked, "validation failures never reach the operation")
		})
	}
	s.Empty(s.sink.Records(), "validation failures produce no audit records")
}

func (s *GatewaySuite) TestSuccessWritesOneRecord() {
	gw := s.newGateway(s.sink, 5)

	result, err := gw.Execute(s.ctx, opContext(), descriptor(), func(context.Context) (any, error) {
		return "updated", nil
	})
	s.Require().NoError(err)
	s.Equal(resilience.SourcePrimary, result.Source)
	s.Equal("updated", result.Value)

	records := s.sink.Records()
	s.Require().Len(records, 1)
	rec := records[0]
	s.Equal("admin-1", rec.ActorID)
	s.Equal("role.escalate", rec.Operation)
	s.Equal("support ticket 4821", rec.Reason)
	s.Equal("user_profiles", rec.Target)
	s.Equal("update", rec.Kind)
	s.Equal([]string{"role"}, rec.Columns)
	s.True(rec.Succeeded)
	s.Equal("primary", rec.ResultOrigin)
	s.Empty(rec.ErrorMessage)
	s.NotEqual(rec.ID.String(), "00000000-0000-0000-0000-000000000000")
}

func (s *GatewaySuite) TestFailureWritesOneRecord() {
	gw := s.newGateway(s.sink, 5)

	_, err := gw.Execute(s.ctx, opContext(), descriptor(), func(context.Context) (any, error) {
		return nil, fmt.Errorf("duplicate key: %w", sentinel.ErrConflict)
	})
	s.Require().Error(err)

	var opErr *OperationError
	s.Require().ErrorAs(err, &opErr)
	s.Equal("role.escalate", opErr.Operation)
	s.Equal("user_profiles", opErr.Target)
	s.ErrorIs(err, sentinel.ErrConflict)

	records := s.sink.Records()
	s.Require().Len(records, 1)
	s.False(records[0].Succeeded)
	s.Contains(records[0].ErrorMessage, "duplicate key")
}

func (s *GatewaySuite) TestRetriesStillWriteOneRecord() {
	gw := s.newGateway(s.sink, 5)

	calls := 0
	result, err := gw.Execute(s.ctx, opContext(), descriptor(), func(context.Context) (any, error) {
		calls++
		if calls < 3 {
			return nil, fmt.Errorf("flaky upstream: %w", sentinel.ErrUnavailable)
		}
		return "ok", nil
	})
	s.Require().NoError(err)
	s.Equal(3, calls)
	s.Equal(resilience.SourcePrimary, result.Source)
	s.Len(s.sink.Records(), 1, "retries are one invocation, one record")
}

func (s *GatewaySuite) TestOpenCircuitMapsToDependencyUnavailable() {
	gw := s.newGateway(s.sink, 1)

	_, err := gw.Execute(s.ctx, opContext(), descriptor(), func(context.Context) (any, error) {
		return nil, fmt.Errorf("store down: %w", sentinel.ErrConflict)
	})
	s.Require().Error(err)

	invoked := false
	_, err = gw.Execute(s.ctx, opContext(), descriptor(), func(context.Context) (any, error) {
		invoked = true
		return nil, nil
	})
	s.Require().Error(err)
	s.ErrorIs(err, ErrDependencyUnavailable)
	s.False(invoked, "the operation never runs while the circuit is open")

	records := s.sink.Records()
	s.Require().Len(records, 2, "rejected calls are audited too")
	s.False(records[1].Succeeded)
}

func (s *GatewaySuite) newFallbackGateway(fb resilience.Fallback) *Gateway {
	executor := resilience.NewExecutor(
		resilience.NewRegistry(5, 30*time.Second),
		resilience.WithBackoff(resilience.Backoff{MaxAttempts: 1}),
		resilience.WithFallback(fb),
	)
	return NewGateway(executor, s.sink,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func (s *GatewaySuite) TestFallbackNeverStandsInForMutation() {
	gw := s.newFallbackGateway(resilience.StaticFallback{Value: "stale"})

	_, err := gw.Execute(s.ctx, opContext(), descriptor(), func(context.Context) (any, error) {
		return nil, fmt.Errorf("user u-1: %w", sentinel.ErrNotFound)
	})
	s.Require().Error(err, "a write that never reached the store must not report success")
	s.ErrorIs(err, ErrDependencyUnavailable)

	records := s.sink.Records()
	s.Require().Len(records, 1)
	s.False(records[0].Succeeded)
	s.Empty(records[0].ResultOrigin)
	s.Contains(records[0].ErrorMessage, "fallback")
}

func (s *GatewaySuite) TestFallbackServesReads() {
	gw := s.newFallbackGateway(resilience.StaticFallback{Value: "cached-row"})
	desc := Descriptor{
		Target: "user_profiles",
		Kind:   KindSelect,
		Filter: map[string]any{"user_id": "u-1"},
	}

	result, err := gw.Execute(s.ctx, opContext(), desc, func(context.Context) (any, error) {
		return nil, fmt.Errorf("store down: %w", sentinel.ErrUnavailable)
	})
	s.Require().NoError(err)
	s.Equal(resilience.SourceFallback, result.Source)
	s.Equal("cached-row", result.Value)

	records := s.sink.Records()
	s.Require().Len(records, 1)
	s.True(records[0].Succeeded)
	s.Equal("fallback", records[0].ResultOrigin)
}

func (s *GatewaySuite) TestAuditFailureDoesNotMaskOutcome() {
	gw := s.newGateway(failingSink{}, 5)

	result, err := gw.Execute(s.ctx, opContext(), descriptor(), func(context.Context) (any, error) {
		return "done", nil
	})
	s.Require().NoError(err, "a failed audit write never fails the operation")
	s.Equal("done", result.Value)
}

func (s *GatewaySuite) TestAuditSurvivesCancelledCaller() {
	gw := s.newGateway(s.sink, 5)

	ctx, cancel := context.WithCancel(s.ctx)
	_, err := gw.Execute(ctx, opContext(), descriptor(), func(context.Context) (any, error) {
		cancel()
		return "done", nil
	})
	s.Require().NoError(err)
	s.Len(s.sink.Records(), 1, "the record lands even when the caller context is cancelled")
}

func (s *GatewaySuite) TestExecuteWithSessionRequiresSession() {
	gw := s.newGateway(s.sink, 5)

	_, err := gw.ExecuteWithSession(s.ctx, nil, opContext(), descriptor(),
		func(context.Context, *Session) (any, error) { return nil, nil })
	s.Require().Error(err)

	var verr *ValidationError
	s.Require().ErrorAs(err, &verr)
	s.Equal("session", verr.Field)
	s.Empty(s.sink.Records())
}

func (s *GatewaySuite) TestExecuteWithSessionThreadsToken() {
	gw := s.newGateway(s.sink, 5)
	sess := &Session{Token: "token-abc", ActorID: "user-1"}

	result, err := gw.ExecuteWithSession(s.ctx, sess, opContext(), descriptor(),
		func(ctx context.Context, got *Session) (any, error) {
			s.Same(sess, got)
			s.Equal("token-abc", requestcontext.SessionToken(ctx))
			return "own-row", nil
		})
	s.Require().NoError(err)
	s.Equal("own-row", result.Value)
	s.Len(s.sink.Records(), 1)
}
