package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jpusap-cobranzas/internal/auth"
	billing "jpusap-cobranzas/internal/billing/domain"
	"jpusap-cobranzas/internal/billing/infrastructure/memory"
)

func TestPaymentService_RegisterCreatesPendingPayment(t *testing.T) {
	f := newFixture(t)

	payment, err := f.payments.Register(f.ctx, RegisterPayment{
		ChargeID: "c-1",
		MemberID: "m-1",
		Amount:   dec("100"),
		Method:   billing.MethodYape,
	})
	require.NoError(t, err)
	assert.Equal(t, billing.PaymentPending, payment.Status)
	assert.Equal(t, "t-1", payment.TenantID)
	assert.Equal(t, testNow, payment.PaidAt)
	assert.NotEmpty(t, payment.ID)

	assert.True(t, f.cached(t, "c-1").Balance.IsZero(), "cached saldo follows the live computation")
	assert.Equal(t, []string{"billing.payment.registered"}, f.publisher.types())

	debt, err := f.debts.MemberDebt(f.ctx, "m-1", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, debt.OverdueCount)
	assert.True(t, debt.DebtTotal.Equal(dec("100")))
	assert.Equal(t, billing.TierLate, debt.Tier)
}

func TestPaymentService_RegisterValidation(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Charges.MarkVoided(f.ctx, "c-2", "duplicado", testNow))

	cases := []struct {
		name string
		ctx  context.Context
		cmd  RegisterPayment
		want error
	}{
		{"voided charge", f.ctx, RegisterPayment{ChargeID: "c-2", MemberID: "m-1", Amount: dec("10")}, billing.ErrChargeVoided},
		{"other member", f.ctx, RegisterPayment{ChargeID: "c-9", MemberID: "m-1", Amount: dec("10")}, billing.ErrMemberMismatch},
		{"missing charge", f.ctx, RegisterPayment{ChargeID: "c-404", MemberID: "m-1", Amount: dec("10")}, billing.ErrChargeNotFound},
		{"zero amount", f.ctx, RegisterPayment{ChargeID: "c-1", MemberID: "m-1", Amount: dec("0")}, billing.ErrInvalidAmount},
		{"negative amount", f.ctx, RegisterPayment{ChargeID: "c-1", MemberID: "m-1", Amount: dec("-5")}, billing.ErrInvalidAmount},
		{"unknown method", f.ctx, RegisterPayment{ChargeID: "c-1", MemberID: "m-1", Amount: dec("10"), Method: "bitcoin"}, billing.ErrInvalidMethod},
		{"empty member", f.ctx, RegisterPayment{ChargeID: "c-1", Amount: dec("10")}, billing.ErrEmptyMemberID},
		{"other tenant", auth.WithIdentity(context.Background(), "t-2", auth.RoleAdmin, "x"), RegisterPayment{ChargeID: "c-1", MemberID: "m-1", Amount: dec("10")}, auth.ErrTenantMismatch},
		{"no tenant", context.Background(), RegisterPayment{ChargeID: "c-1", MemberID: "m-1", Amount: dec("10")}, billing.ErrEmptyTenantID},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.payments.Register(tc.ctx, tc.cmd)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Empty(t, f.publisher.types())
}

func TestPaymentService_RegisterSplit(t *testing.T) {
	f := newFixture(t)

	created, err := f.payments.RegisterSplit(f.ctx, RegisterSplitPayment{
		MemberID:  "m-1",
		ChargeIDs: []string{"c-1", "c-2", "c-3"},
		Amount:    dec("100"),
		Method:    billing.MethodTransfer,
	})
	require.NoError(t, err)
	require.Len(t, created, 3)

	total := dec("0")
	for _, payment := range created {
		total = total.Add(payment.Amount)
		assert.Equal(t, created[0].Reference, payment.Reference)
	}
	assert.True(t, total.Equal(dec("100")))
	assert.True(t, created[0].Amount.Equal(dec("33.33")))
	assert.True(t, created[2].Amount.Equal(dec("33.34")))
	assert.Contains(t, created[0].Reference, "split-")
	assert.Len(t, f.publisher.types(), 3)

	_, err = f.payments.RegisterSplit(f.ctx, RegisterSplitPayment{MemberID: "m-1", ChargeIDs: []string{"c-1", "c-1"}, Amount: dec("10")})
	assert.ErrorIs(t, err, billing.ErrDuplicateCharge)
	_, err = f.payments.RegisterSplit(f.ctx, RegisterSplitPayment{MemberID: "m-1", Amount: dec("10")})
	assert.ErrorIs(t, err, billing.ErrNoCharges)
	_, err = f.payments.RegisterSplit(f.ctx, RegisterSplitPayment{MemberID: "m-1", ChargeIDs: []string{"c-1", "c-9"}, Amount: dec("10")})
	assert.ErrorIs(t, err, billing.ErrMemberMismatch)

	payments, err := f.payments.List(f.ctx, PaymentFilter{MemberID: "m-1"})
	require.NoError(t, err)
	assert.Len(t, payments, 3, "failed splits must not leave partial payments")
}

func TestPaymentService_SplitCoversBothCharges(t *testing.T) {
	f := newFixture(t)

	_, err := f.payments.RegisterSplit(f.ctx, RegisterSplitPayment{
		MemberID:  "m-1",
		ChargeIDs: []string{"c-1", "c-2"},
		Amount:    dec("200"),
		Reference: "op-7781",
	})
	require.NoError(t, err)

	debt, err := f.debts.MemberDebt(f.ctx, "m-1", time.Time{})
	require.NoError(t, err)
	assert.True(t, debt.DebtTotal.IsZero())
	assert.Equal(t, billing.TierCurrent, debt.Tier)
	assert.Equal(t, 1, debt.UpcomingCount)
}

func TestPaymentService_ApproveAndReject(t *testing.T) {
	f := newFixture(t)

	first, err := f.payments.Register(f.ctx, RegisterPayment{ChargeID: "c-1", MemberID: "m-1", Amount: dec("40")})
	require.NoError(t, err)
	approved, err := f.payments.Approve(f.ctx, first.ID, "approver-1")
	require.NoError(t, err)
	assert.Equal(t, billing.PaymentApproved, approved.Status)
	assert.Equal(t, 1, approved.Version)
	assert.Equal(t, "approver-1", approved.ApprovedBy)
	assert.Equal(t, testNow, approved.ApprovedAt)

	_, err = f.payments.Approve(f.ctx, first.ID, "approver-1")
	assert.ErrorIs(t, err, billing.ErrInvalidTransition)
	_, err = f.payments.Reject(f.ctx, first.ID, "late")
	assert.ErrorIs(t, err, billing.ErrInvalidTransition)

	second, err := f.payments.Register(f.ctx, RegisterPayment{ChargeID: "c-2", MemberID: "m-1", Amount: dec("40")})
	require.NoError(t, err)
	_, err = f.payments.Reject(f.ctx, second.ID, "   ")
	assert.ErrorIs(t, err, billing.ErrRejectionReasonRequired)
	rejected, err := f.payments.Reject(f.ctx, second.ID, "comprobante ilegible")
	require.NoError(t, err)
	assert.Equal(t, billing.PaymentRejected, rejected.Status)
	assert.Equal(t, "comprobante ilegible", rejected.RejectionReason)

	debt, err := f.debts.MemberDebt(f.ctx, "m-1", time.Time{})
	require.NoError(t, err)
	assert.True(t, debt.DebtTotal.Equal(dec("160")), "debt=%s", debt.DebtTotal)
	assert.Equal(t, 2, debt.OverdueCount)
	assert.Equal(t, billing.TierDelinquent, debt.Tier)

	c1 := f.cached(t, "c-1")
	assert.True(t, c1.Balance.Equal(dec("60")))
	assert.True(t, c1.Delinquent)
	assert.True(t, f.cached(t, "c-2").Delinquent)
	assert.False(t, f.cached(t, "c-3").Delinquent)

	assert.Equal(t, []string{
		"billing.payment.registered",
		"billing.payment.approved",
		"billing.payment.registered",
		"billing.payment.rejected",
	}, f.publisher.types())
}

type staleReads struct {
	*memory.PaymentRepository
	snapshot billing.Payment
}

func (s staleReads) Get(_ context.Context, _ string) (*billing.Payment, error) {
	payment := s.snapshot
	return &payment, nil
}

func TestPaymentService_StaleTransitionFails(t *testing.T) {
	f := newFixture(t)
	payment, err := f.payments.Register(f.ctx, RegisterPayment{ChargeID: "c-1", MemberID: "m-1", Amount: dec("100")})
	require.NoError(t, err)
	snapshot := *payment

	_, err = f.payments.Approve(f.ctx, payment.ID, "approver-1")
	require.NoError(t, err)

	racing, err := NewPaymentService(f.store.Charges, staleReads{PaymentRepository: f.store.Payments, snapshot: snapshot}, nil, WithClock(fixedClock{testNow}))
	require.NoError(t, err)
	_, err = racing.Reject(f.ctx, payment.ID, "duplicado")
	assert.ErrorIs(t, err, billing.ErrConcurrentModification)

	stored, err := f.store.Payments.Get(f.ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.PaymentApproved, stored.Status)
}

func TestPaymentService_DeleteRestoresDebt(t *testing.T) {
	f := newFixture(t)
	payment, err := f.payments.Register(f.ctx, RegisterPayment{ChargeID: "c-1", MemberID: "m-1", Amount: dec("100")})
	require.NoError(t, err)
	_, err = f.payments.Approve(f.ctx, payment.ID, "approver-1")
	require.NoError(t, err)

	deleted, err := f.payments.Delete(f.ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.PaymentApproved, deleted.Status)

	_, err = f.payments.Get(f.ctx, payment.ID)
	assert.ErrorIs(t, err, billing.ErrPaymentNotFound)
	_, err = f.payments.Delete(f.ctx, payment.ID)
	assert.ErrorIs(t, err, billing.ErrPaymentNotFound)

	debt, err := f.debts.MemberDebt(f.ctx, "m-1", time.Time{})
	require.NoError(t, err)
	assert.True(t, debt.DebtTotal.Equal(dec("200")))
	assert.Equal(t, billing.TierDelinquent, debt.Tier)
	assert.True(t, f.cached(t, "c-1").Balance.Equal(dec("100")))

	types := f.publisher.types()
	assert.Equal(t, "billing.payment.deleted", types[len(types)-1])
	last := f.publisher.events[len(f.publisher.events)-1].(PaymentDeleted)
	assert.Equal(t, billing.PaymentApproved, last.PreviousStatus)
}

func TestPaymentService_ListFilters(t *testing.T) {
	f := newFixture(t)
	p1, err := f.payments.Register(f.ctx, RegisterPayment{ChargeID: "c-1", MemberID: "m-1", Amount: dec("10")})
	require.NoError(t, err)
	_, err = f.payments.Register(f.ctx, RegisterPayment{ChargeID: "c-9", MemberID: "m-2", Amount: dec("10")})
	require.NoError(t, err)
	_, err = f.payments.Approve(f.ctx, p1.ID, "approver-1")
	require.NoError(t, err)

	all, err := f.payments.List(f.ctx, PaymentFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	approved, err := f.payments.List(f.ctx, PaymentFilter{Status: billing.PaymentApproved})
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, p1.ID, approved[0].ID)

	mine, err := f.payments.List(f.ctx, PaymentFilter{MemberID: "m-2"})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "c-9", mine[0].ChargeID)
}

func TestNewPaymentService_RequiresRepositories(t *testing.T) {
	_, err := NewPaymentService(nil, memory.NewPaymentRepository(), nil)
	assert.Error(t, err)
	_, err = NewPaymentService(memory.NewChargeRepository(), nil, nil)
	assert.Error(t, err)
}
