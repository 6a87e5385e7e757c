package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	billing "jpusap-cobranzas/internal/billing/domain"
)

func TestCacheRefresher_RebuildsStaleProjection(t *testing.T) {
	f := newFixture(t)
	stale := testCharge("c-1", "m-1", "202501", "100", testNow.AddDate(0, -2, 0))
	stale.Balance = dec("0")
	require.NoError(t, f.store.Charges.Put(stale))

	before, err := f.debts.MemberDebt(f.ctx, "m-1", time.Time{})
	require.NoError(t, err)
	require.Equal(t, 1, before.OverdueCount, "a cached zero saldo covers the charge until refreshed")

	updated, err := f.refresher.Refresh(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, 2, updated)

	c1 := f.cached(t, "c-1")
	assert.True(t, c1.Balance.Equal(dec("100")))
	assert.True(t, c1.Delinquent)
	assert.True(t, f.cached(t, "c-2").Delinquent)
	assert.False(t, f.cached(t, "c-3").Delinquent, "upcoming charges are never delinquent")
	assert.False(t, f.cached(t, "c-9").Delinquent, "atrasado members are not flagged")

	after, err := f.debts.MemberDebt(f.ctx, "m-1", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, billing.TierDelinquent, after.Tier)

	again, err := f.refresher.Refresh(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestCacheRefresher_CachedSaldoMatchesLiveBalance(t *testing.T) {
	f := newFixture(t)
	_, err := f.payments.RegisterSplit(f.ctx, RegisterSplitPayment{MemberID: "m-1", ChargeIDs: []string{"c-1", "c-2"}, Amount: dec("130")})
	require.NoError(t, err)

	states, err := f.charges.List(f.ctx, "m-1", billing.PeriodRange{})
	require.NoError(t, err)
	for _, state := range states {
		cached := f.cached(t, state.Charge.ID)
		assert.True(t, cached.Balance.Equal(state.RemainingBalance), "charge %s cached=%s live=%s", state.Charge.ID, cached.Balance, state.RemainingBalance)
	}
}

func TestCacheRefresher_RequiresTenant(t *testing.T) {
	f := newFixture(t)
	_, err := f.refresher.Refresh(context.Background(), "")
	assert.ErrorIs(t, err, billing.ErrEmptyTenantID)
	_, err = f.refresher.RefreshMember(context.Background(), "t-1", "")
	assert.ErrorIs(t, err, billing.ErrEmptyMemberID)
}
