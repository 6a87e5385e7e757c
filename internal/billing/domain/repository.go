package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ChargeRepository reads charges and writes the cached projection fields.
// Charges are created by the monthly generation job; this service never inserts them
// outside tests and imports.
type ChargeRepository interface {
	Get(ctx context.Context, id string) (*Charge, error)
	ListByMember(ctx context.Context, tenantID, memberID string, periods PeriodRange) ([]Charge, error)
	ListByTenant(ctx context.Context, tenantID string, periods PeriodRange) ([]Charge, error)
	MarkVoided(ctx context.Context, id, reason string, at time.Time) error
	UpdateCache(ctx context.Context, id string, balance decimal.Decimal, delinquent bool, at time.Time) error
}

// PaymentRepository persists payments.
type PaymentRepository interface {
	Get(ctx context.Context, id string) (*Payment, error)
	// Create inserts all payments atomically.
	Create(ctx context.Context, payments ...Payment) error
	ListByMember(ctx context.Context, tenantID, memberID string) ([]Payment, error)
	ListByCharges(ctx context.Context, tenantID string, chargeIDs []string) ([]Payment, error)
	ListByTenant(ctx context.Context, tenantID string) ([]Payment, error)
	// Transition stores a status change only if the stored row is still pending at
	// expectedVersion. It returns ErrConcurrentModification otherwise.
	Transition(ctx context.Context, payment Payment, expectedVersion int) error
	Delete(ctx context.Context, id string) error
}

// MemberRepository reads the member registry.
type MemberRepository interface {
	Get(ctx context.Context, id string) (*Member, error)
	List(ctx context.Context, tenantID string) ([]Member, error)
}
