package memory

import (
	"context"
	"sort"
	"sync"

	billing "jpusap-cobranzas/internal/billing/domain"
)

// MemberRepository is an in-memory member registry.
type MemberRepository struct {
	mu   sync.RWMutex
	data map[string]billing.Member
}

// NewMemberRepository constructs a repository.
func NewMemberRepository() *MemberRepository {
	return &MemberRepository{data: make(map[string]billing.Member)}
}

// Put inserts or replaces members.
func (r *MemberRepository) Put(members ...billing.Member) {
	r.mu.Lock()
	for _, member := range members {
		r.data[member.ID] = member
	}
	r.mu.Unlock()
}

// Get loads a member or returns nil when missing.
func (r *MemberRepository) Get(ctx context.Context, id string) (*billing.Member, error) {
	_ = ctx
	r.mu.RLock()
	member, ok := r.data[id]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return &member, nil
}

// List returns the tenant's members ordered by id.
func (r *MemberRepository) List(ctx context.Context, tenantID string) ([]billing.Member, error) {
	_ = ctx
	r.mu.RLock()
	var result []billing.Member
	for _, member := range r.data {
		if member.TenantID == tenantID {
			result = append(result, member)
		}
	}
	r.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}
