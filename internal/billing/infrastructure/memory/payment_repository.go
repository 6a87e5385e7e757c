package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	billing "jpusap-cobranzas/internal/billing/domain"
)

// PaymentRepository is an in-memory payment store.
type PaymentRepository struct {
	mu   sync.RWMutex
	data map[string]billing.Payment
}

// NewPaymentRepository constructs a repository.
func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{data: make(map[string]billing.Payment)}
}

// Get loads a payment or returns nil when missing.
func (r *PaymentRepository) Get(ctx context.Context, id string) (*billing.Payment, error) {
	_ = ctx
	r.mu.RLock()
	payment, ok := r.data[id]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return &payment, nil
}

// Create inserts all payments or none.
func (r *PaymentRepository) Create(ctx context.Context, payments ...billing.Payment) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, payment := range payments {
		if err := payment.Validate(); err != nil {
			return err
		}
		if _, exists := r.data[payment.ID]; exists {
			return fmt.Errorf("payment repo: duplicate id %s", payment.ID)
		}
	}
	for _, payment := range payments {
		r.data[payment.ID] = payment
	}
	return nil
}

// ListByMember returns all payments of a member.
func (r *PaymentRepository) ListByMember(ctx context.Context, tenantID, memberID string) ([]billing.Payment, error) {
	_ = ctx
	return r.filter(func(p billing.Payment) bool {
		return p.TenantID == tenantID && p.MemberID == memberID
	}), nil
}

// ListByCharges returns payments applied to any of the charges.
func (r *PaymentRepository) ListByCharges(ctx context.Context, tenantID string, chargeIDs []string) ([]billing.Payment, error) {
	_ = ctx
	wanted := make(map[string]struct{}, len(chargeIDs))
	for _, id := range chargeIDs {
		wanted[id] = struct{}{}
	}
	return r.filter(func(p billing.Payment) bool {
		_, ok := wanted[p.ChargeID]
		return ok && p.TenantID == tenantID
	}), nil
}

// ListByTenant returns every tenant payment.
func (r *PaymentRepository) ListByTenant(ctx context.Context, tenantID string) ([]billing.Payment, error) {
	_ = ctx
	return r.filter(func(p billing.Payment) bool {
		return p.TenantID == tenantID
	}), nil
}

// Transition stores a status change when the stored payment is still pending at expectedVersion.
func (r *PaymentRepository) Transition(ctx context.Context, payment billing.Payment, expectedVersion int) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.data[payment.ID]
	if !ok {
		return billing.ErrPaymentNotFound
	}
	if stored.Version != expectedVersion || stored.Status != billing.PaymentPending {
		return billing.ErrConcurrentModification
	}
	payment.Version = expectedVersion + 1
	r.data[payment.ID] = payment
	return nil
}

// Delete removes a payment.
func (r *PaymentRepository) Delete(ctx context.Context, id string) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[id]; !ok {
		return billing.ErrPaymentNotFound
	}
	delete(r.data, id)
	return nil
}

func (r *PaymentRepository) filter(keep func(billing.Payment) bool) []billing.Payment {
	r.mu.RLock()
	var result []billing.Payment
	for _, payment := range r.data {
		if keep(payment) {
			result = append(result, payment)
		}
	}
	r.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool {
		if !result[i].PaidAt.Equal(result[j].PaidAt) {
			return result[i].PaidAt.Before(result[j].PaidAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}
