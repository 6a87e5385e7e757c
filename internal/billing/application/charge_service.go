package application

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"jpusap-cobranzas/internal/auth"
	billing "jpusap-cobranzas/internal/billing/domain"
)

// ChargeService lists and voids charges.
type ChargeService struct {
	charges   billing.ChargeRepository
	payments  billing.PaymentRepository
	refresher *CacheRefresher
	opts      options
}

// NewChargeService constructs the service.
func NewChargeService(charges billing.ChargeRepository, payments billing.PaymentRepository, refresher *CacheRefresher, opts ...Option) (*ChargeService, error) {
	if charges == nil {
		return nil, errors.New("charge service: nil charge repository")
	}
	if payments == nil {
		return nil, errors.New("charge service: nil payment repository")
	}
	return &ChargeService{charges: charges, payments: payments, refresher: refresher, opts: buildOptions(opts)}, nil
}

// List returns the member's charges in the range, each evaluated against its payments.
// Voided charges are listed too; they are never overdue or upcoming.
func (s *ChargeService) List(ctx context.Context, memberID string, periods billing.PeriodRange) ([]billing.ChargeState, error) {
	tenantID, err := s.opts.tenant(ctx)
	if err != nil {
		return nil, err
	}
	if memberID == "" {
		return nil, billing.ErrEmptyMemberID
	}
	if err := periods.Validate(); err != nil {
		return nil, err
	}
	charges, err := s.charges.ListByMember(ctx, tenantID, memberID, periods)
	if err != nil {
		return nil, err
	}
	if len(charges) == 0 {
		return []billing.ChargeState{}, nil
	}
	ids := make([]string, 0, len(charges))
	for _, charge := range charges {
		ids = append(ids, charge.ID)
	}
	payments, err := s.payments.ListByCharges(ctx, tenantID, ids)
	if err != nil {
		return nil, err
	}
	now := s.opts.clock.Now()
	states := make([]billing.ChargeState, 0, len(charges))
	for _, charge := range charges {
		states = append(states, billing.EvaluateCharge(charge, payments, now))
	}
	return states, nil
}

// Void marks a charge voided. Voiding is the only way a charge leaves the books.
func (s *ChargeService) Void(ctx context.Context, chargeID, reason string) (*billing.Charge, error) {
	tenantID, err := s.opts.tenant(ctx)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, billing.ErrVoidReasonRequired
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
	if charge.Voided {
		return nil, billing.ErrChargeVoided
	}

	now := s.opts.clock.Now().UTC()
	if err := s.charges.MarkVoided(ctx, charge.ID, reason, now); err != nil {
		return nil, err
	}
	charge.Void(reason, now)

	if s.refresher != nil {
		if _, err := s.refresher.RefreshMember(ctx, tenantID, charge.MemberID); err != nil {
			s.opts.logger.Warn("refresh after void failed", zap.String("charge_id", charge.ID), zap.Error(err))
		}
	}
	s.opts.publish(ctx, ChargeVoided{
		TenantID:   tenantID,
		ChargeID:   charge.ID,
		MemberID:   charge.MemberID,
		Period:     charge.Period,
		Reason:     reason,
		OccurredAt: now,
	})
	return charge, nil
}
