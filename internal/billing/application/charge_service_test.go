package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jpusap-cobranzas/internal/auth"
	billing "jpusap-cobranzas/internal/billing/domain"
)

func TestChargeService_ListEvaluatesStates(t *testing.T) {
	f := newFixture(t)
	_, err := f.payments.Register(f.ctx, RegisterPayment{ChargeID: "c-1", MemberID: "m-1", Amount: dec("100")})
	require.NoError(t, err)

	states, err := f.charges.List(f.ctx, "m-1", billing.PeriodRange{})
	require.NoError(t, err)
	require.Len(t, states, 3)
	assert.True(t, states[0].Covered)
	assert.True(t, states[1].Overdue)
	assert.True(t, states[2].Upcoming)

	ranged, err := f.charges.List(f.ctx, "m-1", billing.PeriodRange{From: "202502", To: "202503"})
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, "c-2", ranged[0].Charge.ID)

	_, err = f.charges.List(f.ctx, "m-1", billing.PeriodRange{From: "202505", To: "202501"})
	assert.ErrorIs(t, err, billing.ErrInvalidPeriod)

	empty, err := f.charges.List(f.ctx, "m-404", billing.PeriodRange{})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestChargeService_Void(t *testing.T) {
	f := newFixture(t)

	_, err := f.charges.Void(f.ctx, "c-2", " ")
	assert.ErrorIs(t, err, billing.ErrVoidReasonRequired)

	voided, err := f.charges.Void(f.ctx, "c-2", "cargo duplicado")
	require.NoError(t, err)
	assert.True(t, voided.Voided)
	assert.Equal(t, "cargo duplicado", voided.VoidReason)
	assert.Equal(t, []string{"billing.charge.voided"}, f.publisher.types())

	debt, err := f.debts.MemberDebt(f.ctx, "m-1", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, debt.OverdueCount)
	assert.True(t, debt.DebtTotal.Equal(dec("100")))
	for _, state := range debt.Charges {
		assert.NotEqual(t, "c-2", state.Charge.ID, "voided charges never appear in debt")
	}

	_, err = f.charges.Void(f.ctx, "c-2", "again")
	assert.ErrorIs(t, err, billing.ErrChargeVoided)
	_, err = f.charges.Void(f.ctx, "c-404", "x")
	assert.ErrorIs(t, err, billing.ErrChargeNotFound)
	_, err = f.charges.Void(auth.WithIdentity(context.Background(), "t-2", auth.RoleAdmin, "x"), "c-1", "x")
	assert.ErrorIs(t, err, auth.ErrTenantMismatch)

	_, err = f.payments.Register(f.ctx, RegisterPayment{ChargeID: "c-2", MemberID: "m-1", Amount: dec("10")})
	assert.ErrorIs(t, err, billing.ErrChargeVoided)
}
