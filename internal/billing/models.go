// Package billing owns the subscription order state machine and the atomic
// order-activation transition.
package billing

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the payment order's position in its lifecycle.
// completed and failed are terminal: once reached, no further transition is
// permitted.
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusCompleted  OrderStatus = "completed"
	StatusFailed     OrderStatus = "failed"
)

// IsValid checks if the status is one of the supported enum values.
func (s OrderStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is permitted.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// BillingPeriod determines how much subscription time a completed order buys.
type BillingPeriod string

const (
	PeriodMonthly   BillingPeriod = "monthly"
	PeriodQuarterly BillingPeriod = "quarterly"
	PeriodBiannual  BillingPeriod = "biannual"
	PeriodAnnual    BillingPeriod = "annual"
)

// ParsePeriod maps order metadata to a period, defaulting unknown or empty
// values to monthly.
func ParsePeriod(raw string) BillingPeriod {
	switch BillingPeriod(raw) {
	case PeriodQuarterly:
		return PeriodQuarterly
	case PeriodBiannual:
		return PeriodBiannual
	case PeriodAnnual:
		return PeriodAnnual
	default:
		return PeriodMonthly
	}
}

// AddTo returns t advanced by one billing period.
func (p BillingPeriod) AddTo(t time.Time) time.Time {
	switch p {
	case PeriodQuarterly:
		return t.AddDate(0, 3, 0)
	case PeriodBiannual:
		return t.AddDate(0, 6, 0)
	case PeriodAnnual:
		return t.AddDate(1, 0, 0)
	default:
		return t.AddDate(0, 1, 0)
	}
}

// NextExpiry computes the subscription end after a completed order: one
// period past max(now, currentExpiry). Unexpired time is preserved and
// extended, never reset.
func NextExpiry(now time.Time, currentExpiry *time.Time, period BillingPeriod) time.Time {
	base := now
	if currentExpiry != nil && currentExpiry.After(now) {
		base = *currentExpiry
	}
	return period.AddTo(base)
}

// SubscriptionOrder is the payment aggregate the transition engine mutates.
type SubscriptionOrder struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	PackageID     uuid.UUID
	Status        OrderStatus
	BillingPeriod BillingPeriod
	Amount        float64
	Notes         string
	VerifiedBy    string
	VerifiedAt    *time.Time
	ProcessedAt   *time.Time
	CreatedAt     time.Time
}

// UserPlanState is the access the order pays for; mutated only as a side
// effect of an order reaching completed.
type UserPlanState struct {
	UserID            uuid.UUID
	PackageID         uuid.UUID
	SubscriptionStart *time.Time
	SubscriptionEnd   *time.Time
	DailyQuotaUsed    int
	QuotaResetDate    *time.Time
}

// Expected control-flow outcomes of the transition engine. Callers branch on
// these rather than treating them as unexpected errors.
var (
	// ErrOrderNotFound: no order exists with the given id.
	ErrOrderNotFound = errors.New("order not found")
	// ErrTerminalStatus: the order already reached completed or failed.
	ErrTerminalStatus = errors.New("order already in terminal status")
)

// TerminalStatusError wraps ErrTerminalStatus with the status the order is
// stuck in, for duplicate-webhook and double-click diagnostics.
type TerminalStatusError struct {
	Current OrderStatus
}

func (e *TerminalStatusError) Error() string {
	return fmt.Sprintf("order already in terminal status %q", e.Current)
}

func (e *TerminalStatusError) Unwrap() error { return ErrTerminalStatus }
