package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"jpusap-cobranzas/internal/auth"
	billing "jpusap-cobranzas/internal/billing/domain"
	"jpusap-cobranzas/internal/billing/infrastructure/memory"
)

var testNow = time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type recordingPublisher struct {
	mu     sync.Mutex
	events []any
}

func (p *recordingPublisher) Publish(_ context.Context, event any) error {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, eventName(event))
	}
	return types
}

type fixture struct {
	ctx       context.Context
	store     *memory.Store
	publisher *recordingPublisher
	refresher *CacheRefresher
	payments  *PaymentService
	charges   *ChargeService
	debts     *DebtService
}

// newFixture seeds tenant t-1 with two members:
// m-1 owes c-1 (202501) and c-2 (202502), both overdue, and has c-3 (202504) upcoming;
// m-2 owes c-9 (202501), overdue.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	store.Members.Put(
		billing.Member{ID: "m-1", TenantID: "t-1", FullName: "Rosa Quispe", Phone: "+51999000111"},
		billing.Member{ID: "m-2", TenantID: "t-1", FullName: "Juan Huaman"},
	)
	require.NoError(t, store.Charges.Put(
		testCharge("c-1", "m-1", "202501", "100", testNow.AddDate(0, -2, 0)),
		testCharge("c-2", "m-1", "202502", "100", testNow.AddDate(0, -1, 0)),
		testCharge("c-3", "m-1", "202504", "100", testNow.AddDate(0, 1, 0)),
		testCharge("c-9", "m-2", "202501", "80", testNow.AddDate(0, -2, 0)),
	))

	publisher := &recordingPublisher{}
	opts := []Option{WithClock(fixedClock{testNow}), WithPublisher(publisher)}

	refresher, err := NewCacheRefresher(store.Charges, store.Payments, opts...)
	require.NoError(t, err)
	payments, err := NewPaymentService(store.Charges, store.Payments, refresher, opts...)
	require.NoError(t, err)
	charges, err := NewChargeService(store.Charges, store.Payments, refresher, opts...)
	require.NoError(t, err)
	debts, err := NewDebtService(store.Charges, store.Payments, store.Members, opts...)
	require.NoError(t, err)

	return &fixture{
		ctx:       auth.WithIdentity(context.Background(), "t-1", auth.RoleAdmin, "admin-1"),
		store:     store,
		publisher: publisher,
		refresher: refresher,
		payments:  payments,
		charges:   charges,
		debts:     debts,
	}
}

func testCharge(id, member string, period billing.Period, original string, due time.Time) billing.Charge {
	return billing.Charge{
		ID:             id,
		TenantID:       "t-1",
		MemberID:       member,
		Period:         period,
		OriginalAmount: dec(original),
		Balance:        dec(original),
		DueAt:          due,
		CreatedAt:      testNow.AddDate(0, -3, 0),
		UpdatedAt:      testNow.AddDate(0, -3, 0),
	}
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func (f *fixture) cached(t *testing.T, chargeID string) billing.Charge {
	t.Helper()
	charge, err := f.store.Charges.Get(f.ctx, chargeID)
	require.NoError(t, err)
	require.NotNil(t, charge)
	return *charge
}
