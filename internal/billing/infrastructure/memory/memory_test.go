package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	billing "jpusap-cobranzas/internal/billing/domain"
)

func TestPaymentRepository_TransitionRequiresVersion(t *testing.T) {
	ctx := context.Background()
	repo := NewPaymentRepository()
	payment := billing.Payment{
		ID: "p-1", TenantID: "t-1", ChargeID: "c-1", MemberID: "m-1",
		Amount: decimal.NewFromInt(50), Status: billing.PaymentPending, Method: billing.MethodCash,
	}
	require.NoError(t, repo.Create(ctx, payment))

	approved := payment
	require.NoError(t, approved.Approve("admin-1", time.Now()))
	require.NoError(t, repo.Transition(ctx, approved, 0))

	stored, err := repo.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, billing.PaymentApproved, stored.Status)
	assert.Equal(t, 1, stored.Version)

	rejected := payment
	require.NoError(t, rejected.Reject("duplicado", time.Now()))
	assert.ErrorIs(t, repo.Transition(ctx, rejected, 0), billing.ErrConcurrentModification)
	assert.ErrorIs(t, repo.Transition(ctx, billing.Payment{ID: "p-404"}, 0), billing.ErrPaymentNotFound)
}

func TestPaymentRepository_CreateIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	repo := NewPaymentRepository()
	good := billing.Payment{ID: "p-1", TenantID: "t-1", ChargeID: "c-1", MemberID: "m-1", Amount: decimal.NewFromInt(1), Status: billing.PaymentPending}
	bad := billing.Payment{ID: "p-2", TenantID: "t-1", ChargeID: "c-2", MemberID: "m-1", Amount: decimal.Zero, Status: billing.PaymentPending}

	assert.ErrorIs(t, repo.Create(ctx, good, bad), billing.ErrInvalidAmount)
	got, err := repo.ListByTenant(ctx, "t-1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestChargeRepository_FiltersByPeriod(t *testing.T) {
	ctx := context.Background()
	repo := NewChargeRepository()
	require.NoError(t, repo.Put(
		billing.Charge{ID: "c-1", TenantID: "t-1", MemberID: "m-1", Period: "202501", OriginalAmount: decimal.NewFromInt(10)},
		billing.Charge{ID: "c-2", TenantID: "t-1", MemberID: "m-1", Period: "202502", OriginalAmount: decimal.NewFromInt(10)},
		billing.Charge{ID: "c-3", TenantID: "t-2", MemberID: "m-1", Period: "202502", OriginalAmount: decimal.NewFromInt(10)},
	))

	got, err := repo.ListByMember(ctx, "t-1", "m-1", billing.PeriodRange{From: "202502"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c-2", got[0].ID)

	require.NoError(t, repo.MarkVoided(ctx, "c-1", "duplicado", time.Now()))
	charge, err := repo.Get(ctx, "c-1")
	require.NoError(t, err)
	assert.True(t, charge.Voided)
	assert.ErrorIs(t, repo.MarkVoided(ctx, "c-404", "x", time.Now()), billing.ErrChargeNotFound)
}

func TestStore_Load(t *testing.T) {
	store := NewStore()
	err := store.Load(Seed{
		TenantID: "t-1",
		Members:  []SeedMember{{ID: "m-1", FullName: "Rosa Quispe"}},
		Charges: []SeedCharge{
			{ID: "c-1", MemberID: "m-1", Period: "202501", Amount: "50.00", DueAt: "2025-01-31"},
		},
		Payments: []SeedPayment{
			{ID: "p-1", ChargeID: "c-1", MemberID: "m-1", Amount: "50", Status: "aprobado", Method: "yape"},
		},
	})
	require.NoError(t, err)

	charge, err := store.Charges.Get(context.Background(), "c-1")
	require.NoError(t, err)
	assert.True(t, charge.Balance.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC), charge.DueAt)

	payment, err := store.Payments.Get(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, billing.MethodYape, payment.Method)

	assert.Error(t, store.Load(Seed{TenantID: "t-1", Charges: []SeedCharge{{ID: "c-9", MemberID: "m-1", Period: "2025-1", Amount: "1", DueAt: "2025-01-01"}}}))
}
