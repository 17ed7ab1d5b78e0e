package billing

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

// stubStore records the params it received and returns a canned order.
type stubStore struct {
	calls int
	last  ActivationParams
}

func (s *stubStore) ActivateOrderWithPlan(_ context.Context, params ActivationParams) (*SubscriptionOrder, error) {
	s.calls++
	s.last = params
	return &SubscriptionOrder{ID: params.OrderID, Status: params.NewStatus, VerifiedBy: params.ApproverID}, nil
}

type EngineSuite struct {
	suite.Suite
	store  *stubStore
	engine *Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.store = &stubStore{}
	s.engine = NewEngine(s.store, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func (s *EngineSuite) TestValidTransition() {
	orderID := uuid.New()
	order, err := s.engine.ActivateOrder(context.Background(), ActivationParams{
		OrderID:    orderID,
		NewStatus:  StatusCompleted,
		ApproverID: "admin-1",
	})
	s.Require().NoError(err)
	s.Equal(orderID, order.ID)
	s.Equal(StatusCompleted, order.Status)
	s.Equal(1, s.store.calls)
}

func (s *EngineSuite) TestValidation() {
	cases := []struct {
		name   string
		params ActivationParams
	}{
		{"missing order id", ActivationParams{NewStatus: StatusCompleted, ApproverID: "a"}},
		{"missing approver", ActivationParams{OrderID: uuid.New(), NewStatus: StatusCompleted}},
		{"unknown status", ActivationParams{OrderID: uuid.New(), NewStatus: "refunded", ApproverID: "a"}},
		{"non-terminal target", ActivationParams{OrderID: uuid.New(), NewStatus: StatusProcessing, ApproverID: "a"}},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.engine.ActivateOrder(context.Background(), tc.params)
			s.Require().Error(err)
		})
	}
	s.Zero(s.store.calls, "invalid requests never reach the store")
}
