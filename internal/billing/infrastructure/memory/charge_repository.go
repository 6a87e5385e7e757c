package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	billing "jpusap-cobranzas/internal/billing/domain"
)

// ChargeRepository is an in-memory charge store.
type ChargeRepository struct {
	mu   sync.RWMutex
	data map[string]billing.Charge
}

// NewChargeRepository constructs a repository.
func NewChargeRepository() *ChargeRepository {
	return &ChargeRepository{data: make(map[string]billing.Charge)}
}

// Put inserts or replaces a charge. It stands in for the external generation job.
func (r *ChargeRepository) Put(charges ...billing.Charge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, charge := range charges {
		if err := charge.Validate(); err != nil {
			return err
		}
		r.data[charge.ID] = charge
	}
	return nil
}

// Get loads a charge or returns nil when missing.
func (r *ChargeRepository) Get(ctx context.Context, id string) (*billing.Charge, error) {
	_ = ctx
	r.mu.RLock()
	charge, ok := r.data[id]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return &charge, nil
}

// ListByMember returns the member's charges in the period range.
func (r *ChargeRepository) ListByMember(ctx context.Context, tenantID, memberID string, periods billing.PeriodRange) ([]billing.Charge, error) {
	_ = ctx
	return r.filter(func(c billing.Charge) bool {
		return c.TenantID == tenantID && c.MemberID == memberID && periods.Contains(c.Period)
	}), nil
}

// ListByTenant returns all tenant charges in the period range.
func (r *ChargeRepository) ListByTenant(ctx context.Context, tenantID string, periods billing.PeriodRange) ([]billing.Charge, error) {
	_ = ctx
	return r.filter(func(c billing.Charge) bool {
		return c.TenantID == tenantID && periods.Contains(c.Period)
	}), nil
}

// MarkVoided voids a charge.
func (r *ChargeRepository) MarkVoided(ctx context.Context, id, reason string, at time.Time) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	charge, ok := r.data[id]
	if !ok {
		return billing.ErrChargeNotFound
	}
	charge.Void(reason, at)
	r.data[id] = charge
	return nil
}

// UpdateCache stores the cached saldo and esMoroso projection.
func (r *ChargeRepository) UpdateCache(ctx context.Context, id string, balance decimal.Decimal, delinquent bool, at time.Time) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	charge, ok := r.data[id]
	if !ok {
		return billing.ErrChargeNotFound
	}
	charge.Balance = balance
	charge.Delinquent = delinquent
	charge.UpdatedAt = at.UTC()
	r.data[id] = charge
	return nil
}

func (r *ChargeRepository) filter(keep func(billing.Charge) bool) []billing.Charge {
	r.mu.RLock()
	var result []billing.Charge
	for _, charge := range r.data {
		if keep(charge) {
			result = append(result, charge)
		}
	}
	r.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool {
		if result[i].MemberID != result[j].MemberID {
			return result[i].MemberID < result[j].MemberID
		}
		if result[i].Period != result[j].Period {
			return result[i].Period < result[j].Period
		}
		return result[i].ID < result[j].ID
	})
	return result
}
