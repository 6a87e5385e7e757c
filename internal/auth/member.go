package auth

import (
	"context"

	billing "jpusap-cobranzas/internal/billing/domain"
)

// MemberReader loads members for tenant checks.
type MemberReader interface {
	Get(ctx context.Context, id string) (*billing.Member, error)
}

// MemberTenantChecker validates member tenant ownership.
type MemberTenantChecker interface {
	EnsureMemberTenant(ctx context.Context, tenantID, memberID string) error
}

// MemberChecker checks member ownership using the member registry.
type MemberChecker struct {
	members MemberReader
}

// NewMemberChecker constructs a MemberChecker.
func NewMemberChecker(members MemberReader) *MemberChecker {
	if members == nil {
		return nil
	}
	return &MemberChecker{members: members}
}

// EnsureMemberTenant verifies the member belongs to tenant.
func (c *MemberChecker) EnsureMemberTenant(ctx context.Context, tenantID, memberID string) error {
	if c == nil || c.members == nil {
		return nil
	}
	if tenantID == "" || memberID == "" {
		return nil
	}
	member, err := c.members.Get(ctx, memberID)
	if err != nil {
		return err
	}
	if member == nil {
		return ErrNotFound
	}
	if member.TenantID != tenantID {
		return ErrTenantMismatch
	}
	return nil
}
