package application

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	billing "jpusap-cobranzas/internal/billing/domain"
	"jpusap-cobranzas/internal/observability/metrics"
)

// CacheRefresher rewrites the cached saldo and esMoroso fields from the live computation.
// Those fields are a read-only projection; reconciliation never trusts them over payments.
type CacheRefresher struct {
	charges  billing.ChargeRepository
	payments billing.PaymentRepository
	opts     options
}

// NewCacheRefresher constructs a refresher.
func NewCacheRefresher(charges billing.ChargeRepository, payments billing.PaymentRepository, opts ...Option) (*CacheRefresher, error) {
	if charges == nil {
		return nil, errors.New("cache refresher: nil charge repository")
	}
	if payments == nil {
		return nil, errors.New("cache refresher: nil payment repository")
	}
	return &CacheRefresher{charges: charges, payments: payments, opts: buildOptions(opts)}, nil
}

// RefreshMember refreshes one member's charges and returns how many changed.
func (r *CacheRefresher) RefreshMember(ctx context.Context, tenantID, memberID string) (int, error) {
	if tenantID == "" {
		return 0, billing.ErrEmptyTenantID
	}
	if memberID == "" {
		return 0, billing.ErrEmptyMemberID
	}
	charges, err := r.charges.ListByMember(ctx, tenantID, memberID, billing.PeriodRange{})
	if err != nil {
		return 0, err
	}
	payments, err := r.payments.ListByMember(ctx, tenantID, memberID)
	if err != nil {
		return 0, err
	}
	return r.apply(ctx, charges, payments, r.opts.clock.Now())
}

// Refresh refreshes every charge of the tenant.
func (r *CacheRefresher) Refresh(ctx context.Context, tenantID string) (int, error) {
	started := time.Now()
	if tenantID == "" {
		return 0, billing.ErrEmptyTenantID
	}
	charges, err := r.charges.ListByTenant(ctx, tenantID, billing.PeriodRange{})
	if err != nil {
		metrics.ObserveCacheRefresh(metrics.ResultError, 0, time.Since(started))
		return 0, err
	}
	payments, err := r.payments.ListByTenant(ctx, tenantID)
	if err != nil {
		metrics.ObserveCacheRefresh(metrics.ResultError, 0, time.Since(started))
		return 0, err
	}
	updated, err := r.apply(ctx, charges, payments, r.opts.clock.Now())
	if err != nil {
		metrics.ObserveCacheRefresh(metrics.ResultError, updated, time.Since(started))
		return updated, err
	}
	metrics.ObserveCacheRefresh(metrics.ResultSuccess, updated, time.Since(started))
	r.opts.logger.Info("cached saldo refreshed",
		zap.String("tenant_id", tenantID),
		zap.Int("charges", len(charges)),
		zap.Int("updated", updated))
	return updated, nil
}

// RunDaily implements DailyJob.
func (r *CacheRefresher) RunDaily(ctx context.Context, tenantID string, _ time.Time) error {
	_, err := r.Refresh(ctx, tenantID)
	return err
}

// apply computes the projection in two passes. Balances come first so a stale cached
// zero cannot hide a charge whose payment was deleted; tiers are then derived from the
// refreshed balances.
func (r *CacheRefresher) apply(ctx context.Context, charges []billing.Charge, payments []billing.Payment, now time.Time) (int, error) {
	paid := billing.PaidByCharge(payments)
	refreshed := make([]billing.Charge, len(charges))
	for i, charge := range charges {
		refreshed[i] = charge
		if !charge.Voided {
			refreshed[i].Balance = billing.RemainingBalance(charge, paid[charge.ID])
		}
	}

	delinquent := make(map[string]bool, len(charges))
	for _, debt := range billing.ReconcileAll(refreshed, payments, now) {
		if !debt.Tier.AtLeast(billing.TierDelinquent) {
			continue
		}
		for _, state := range debt.Charges {
			if state.Overdue {
				delinquent[state.Charge.ID] = true
			}
		}
	}

	updated := 0
	for i, charge := range charges {
		balance := refreshed[i].Balance
		flag := delinquent[charge.ID]
		if charge.Balance.Equal(balance) && charge.Delinquent == flag {
			continue
		}
		if err := r.charges.UpdateCache(ctx, charge.ID, balance, flag, now); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}
