package application

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"jpusap-cobranzas/internal/auth"
	billing "jpusap-cobranzas/internal/billing/domain"
	"jpusap-cobranzas/internal/observability/metrics"
)

// RegisterPayment records one payment against one charge.
type RegisterPayment struct {
	ChargeID  string
	MemberID  string
	Amount    decimal.Decimal
	Method    billing.PaymentMethod
	PaidAt    time.Time
	Reference string
}

// RegisterSplitPayment records one remittance spread evenly over several charges.
type RegisterSplitPayment struct {
	MemberID  string
	ChargeIDs []string
	Amount    decimal.Decimal
	Method    billing.PaymentMethod
	PaidAt    time.Time
	Reference string
}

// PaymentFilter narrows payment listings.
type PaymentFilter struct {
	MemberID string
	Status   billing.PaymentStatus
}

// PaymentService handles the payment lifecycle.
type PaymentService struct {
	charges   billing.ChargeRepository
	payments  billing.PaymentRepository
	refresher *CacheRefresher
	opts      options
}

// NewPaymentService constructs the service. A nil refresher leaves cached fields untouched.
func NewPaymentService(charges billing.ChargeRepository, payments billing.PaymentRepository, refresher *CacheRefresher, opts ...Option) (*PaymentService, error) {
	if charges == nil {
		return nil, errors.New("payment service: nil charge repository")
	}
	if payments == nil {
		return nil, errors.New("payment service: nil payment repository")
	}
	return &PaymentService{
		charges:   charges,
		payments:  payments,
		refresher: refresher,
		opts:      buildOptions(opts),
	}, nil
}

// Register creates a pending payment.
func (s *PaymentService) Register(ctx context.Context, cmd RegisterPayment) (*billing.Payment, error) {
	tenantID, err := s.opts.tenant(ctx)
	if err != nil {
		return nil, err
	}
	if !cmd.Amount.IsPositive() {
		return nil, billing.ErrInvalidAmount
	}
	method, err := billing.ParsePaymentMethod(string(cmd.Method))
	if err != nil {
		return nil, err
	}
	if _, err := s.payableCharge(ctx, tenantID, cmd.MemberID, cmd.ChargeID); err != nil {
		return nil, err
	}

	now := s.opts.clock.Now().UTC()
	payment := s.newPayment(tenantID, cmd.MemberID, cmd.ChargeID, cmd.Amount, method, cmd.PaidAt, cmd.Reference, now)
	if err := s.payments.Create(ctx, payment); err != nil {
		metrics.ObservePaymentTransition("register", metrics.ResultError, 0)
		return nil, err
	}
	metrics.ObservePaymentTransition("register", metrics.ResultSuccess, payment.Amount.InexactFloat64())

	s.refresh(ctx, tenantID, payment.MemberID)
	s.opts.publish(ctx, registeredEvent(payment))
	return &payment, nil
}

// RegisterSplit divides the amount over the charges and creates all payments atomically.
func (s *PaymentService) RegisterSplit(ctx context.Context, cmd RegisterSplitPayment) ([]billing.Payment, error) {
	tenantID, err := s.opts.tenant(ctx)
	if err != nil {
		return nil, err
	}
	if len(cmd.ChargeIDs) == 0 {
		return nil, billing.ErrNoCharges
	}
	seen := make(map[string]struct{}, len(cmd.ChargeIDs))
	for _, id := range cmd.ChargeIDs {
		if _, dup := seen[id]; dup {
			return nil, billing.ErrDuplicateCharge
		}
		seen[id] = struct{}{}
	}
	method, err := billing.ParsePaymentMethod(string(cmd.Method))
	if err != nil {
		return nil, err
	}
	shares, err := billing.SplitAmount(cmd.Amount, len(cmd.ChargeIDs))
	if err != nil {
		return nil, err
	}
	for _, chargeID := range cmd.ChargeIDs {
		if _, err := s.payableCharge(ctx, tenantID, cmd.MemberID, chargeID); err != nil {
			return nil, err
		}
	}

	reference := strings.TrimSpace(cmd.Reference)
	if reference == "" {
		reference = "split-" + uuid.NewString()
	}
	now := s.opts.clock.Now().UTC()
	created := make([]billing.Payment, 0, len(cmd.ChargeIDs))
	for i, chargeID := range cmd.ChargeIDs {
		created = append(created, s.newPayment(tenantID, cmd.MemberID, chargeID, shares[i], method, cmd.PaidAt, reference, now))
	}
	if err := s.payments.Create(ctx, created...); err != nil {
		metrics.ObservePaymentTransition("register_split", metrics.ResultError, 0)
		return nil, err
	}
	metrics.ObservePaymentTransition("register_split", metrics.ResultSuccess, cmd.Amount.InexactFloat64())

	s.refresh(ctx, tenantID, cmd.MemberID)
	for _, payment := range created {
		s.opts.publish(ctx, registeredEvent(payment))
	}
	return created, nil
}

// Approve moves a pending payment to aprobado. A concurrent change to the same payment
// makes it fail with ErrConcurrentModification.
func (s *PaymentService) Approve(ctx context.Context, paymentID, approverID string) (*billing.Payment, error) {
	payment, tenantID, err := s.load(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	expected := payment.Version
	if err := payment.Approve(approverID, s.opts.clock.Now()); err != nil {
		metrics.ObservePaymentTransition("approve", metrics.ResultError, 0)
		return nil, err
	}
	if err := s.payments.Transition(ctx, *payment, expected); err != nil {
		metrics.ObservePaymentTransition("approve", metrics.ResultError, 0)
		return nil, err
	}
	payment.Version = expected + 1
	metrics.ObservePaymentTransition("approve", metrics.ResultSuccess, payment.Amount.InexactFloat64())

	s.refresh(ctx, tenantID, payment.MemberID)
	s.opts.publish(ctx, PaymentApproved{
		TenantID:   tenantID,
		PaymentID:  payment.ID,
		ChargeID:   payment.ChargeID,
		MemberID:   payment.MemberID,
		Amount:     payment.Amount,
		ApprovedBy: payment.ApprovedBy,
		OccurredAt: payment.ApprovedAt,
	})
	return payment, nil
}

// Reject moves a pending payment to rechazado. The reason is mandatory.
func (s *PaymentService) Reject(ctx context.Context, paymentID, reason string) (*billing.Payment, error) {
	payment, tenantID, err := s.load(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	expected := payment.Version
	if err := payment.Reject(reason, s.opts.clock.Now()); err != nil {
		metrics.ObservePaymentTransition("reject", metrics.ResultError, 0)
		return nil, err
	}
	if err := s.payments.Transition(ctx, *payment, expected); err != nil {
		metrics.ObservePaymentTransition("reject", metrics.ResultError, 0)
		return nil, err
	}
	payment.Version = expected + 1
	metrics.ObservePaymentTransition("reject", metrics.ResultSuccess, payment.Amount.InexactFloat64())

	s.refresh(ctx, tenantID, payment.MemberID)
	s.opts.publish(ctx, PaymentRejected{
		TenantID:   tenantID,
		PaymentID:  payment.ID,
		ChargeID:   payment.ChargeID,
		MemberID:   payment.MemberID,
		Amount:     payment.Amount,
		Reason:     payment.RejectionReason,
		OccurredAt: payment.RejectedAt,
	})
	return payment, nil
}

// Delete removes a payment in any state. Its effect on the charge disappears with it.
func (s *PaymentService) Delete(ctx context.Context, paymentID string) (*billing.Payment, error) {
	payment, tenantID, err := s.load(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if err := s.payments.Delete(ctx, payment.ID); err != nil {
		metrics.ObservePaymentTransition("delete", metrics.ResultError, 0)
		return nil, err
	}
	metrics.ObservePaymentTransition("delete", metrics.ResultSuccess, payment.Amount.InexactFloat64())

	s.refresh(ctx, tenantID, payment.MemberID)
	s.opts.publish(ctx, PaymentDeleted{
		TenantID:       tenantID,
		PaymentID:      payment.ID,
		ChargeID:       payment.ChargeID,
		MemberID:       payment.MemberID,
		Amount:         payment.Amount,
		PreviousStatus: payment.Status,
		OccurredAt:     s.opts.clock.Now().UTC(),
	})
	return payment, nil
}

// Get loads a payment of the caller's tenant.
func (s *PaymentService) Get(ctx context.Context, paymentID string) (*billing.Payment, error) {
	payment, _, err := s.load(ctx, paymentID)
	return payment, err
}

// List returns the tenant's payments, optionally for one member and status.
func (s *PaymentService) List(ctx context.Context, filter PaymentFilter) ([]billing.Payment, error) {
	tenantID, err := s.opts.tenant(ctx)
	if err != nil {
		return nil, err
	}
	var payments []billing.Payment
	if filter.MemberID != "" {
		payments, err = s.payments.ListByMember(ctx, tenantID, filter.MemberID)
	} else {
		payments, err = s.payments.ListByTenant(ctx, tenantID)
	}
	if err != nil {
		return nil, err
	}
	if filter.Status == "" {
		return payments, nil
	}
	filtered := payments[:0]
	for _, payment := range payments {
		if payment.Status == filter.Status {
			filtered = append(filtered, payment)
		}
	}
	return filtered, nil
}

func (s *PaymentService) load(ctx context.Context, paymentID string) (*billing.Payment, string, error) {
	tenantID, err := s.opts.tenant(ctx)
	if err != nil {
		return nil, "", err
	}
	if strings.TrimSpace(paymentID) == "" {
		return nil, "", billing.ErrEmptyPaymentID
	}
	payment, err := s.payments.Get(ctx, paymentID)
	if err != nil {
		return nil, "", err
	}
	if payment == nil {
		return nil, "", billing.ErrPaymentNotFound
	}
	if payment.TenantID != tenantID {
		return nil, "", auth.ErrTenantMismatch
	}
	return payment, tenantID, nil
}

func (s *PaymentService) payableCharge(ctx context.Context, tenantID, memberID, chargeID string) (*billing.Charge, error) {
	if strings.TrimSpace(memberID) == "" {
		return nil, billing.ErrEmptyMemberID
	}
	if strings.TrimSpace(chargeID) == "" {
		return nil, billing.ErrEmptyChargeID
	}
	charge, err := s.charges.Get(ctx, chargeID)
	if err != nil {
		return nil, err
	}
	if charge == nil {
		return nil, billing.ErrChargeNotFound
	}
	if charge.TenantID != tenantID {
		return nil, auth.ErrTenantMismatch
	}
	if charge.MemberID != memberID {
		return nil, billing.ErrMemberMismatch
	}
	if charge.Voided {
		return nil, billing.ErrChargeVoided
	}
	return charge, nil
}

func (s *PaymentService) newPayment(tenantID, memberID, chargeID string, amount decimal.Decimal, method billing.PaymentMethod, paidAt time.Time, reference string, now time.Time) billing.Payment {
	if paidAt.IsZero() {
		paidAt = now
	}
	return billing.Payment{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		ChargeID:  chargeID,
		MemberID:  memberID,
		Amount:    amount,
		Status:    billing.PaymentPending,
		Method:    method,
		PaidAt:    paidAt.UTC(),
		Reference: strings.TrimSpace(reference),
		CreatedAt: now,
	}
}

// refresh keeps the cached projection current. A failure here does not undo the mutation;
// the scheduled refresh catches up.
func (s *PaymentService) refresh(ctx context.Context, tenantID, memberID string) {
	if s.refresher == nil {
		return
	}
	if _, err := s.refresher.RefreshMember(ctx, tenantID, memberID); err != nil {
		s.opts.logger.Warn("refresh cached saldo failed",
			zap.String("tenant_id", tenantID),
			zap.String("empadronado_id", memberID),
			zap.Error(err))
	}
}

func registeredEvent(payment billing.Payment) PaymentRegistered {
	return PaymentRegistered{
		TenantID:   payment.TenantID,
		PaymentID:  payment.ID,
		ChargeID:   payment.ChargeID,
		MemberID:   payment.MemberID,
		Amount:     payment.Amount,
		Method:     payment.Method,
		Reference:  payment.Reference,
		OccurredAt: payment.CreatedAt,
	}
}
