package postgres

import (
	"context"
	"database/sql"
	"errors"

	billing "jpusap-cobranzas/internal/billing/domain"
)

// MemberRepository reads the member registry.
type MemberRepository struct {
	db *sql.DB
}

// NewMemberRepository constructs a repository.
func NewMemberRepository(db *sql.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

// Upsert inserts or updates member contact records.
func (r *MemberRepository) Upsert(ctx context.Context, members ...billing.Member) error {
	if r == nil || r.db == nil {
		return errors.New("member repo: nil db")
	}
	for _, member := range members {
		if member.ID == "" {
			return billing.ErrEmptyMemberID
		}
		_, err := r.db.ExecContext(ctx, `
INSERT INTO members (id, tenant_id, full_name, phone, address)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (id) DO UPDATE SET
	full_name = EXCLUDED.full_name,
	phone = EXCLUDED.phone,
	address = EXCLUDED.address`,
			member.ID, member.TenantID, member.FullName, member.Phone, member.Address)
		if err != nil {
			return err
		}
	}
	return nil
}

// Get fetches a member; nil when missing.
func (r *MemberRepository) Get(ctx context.Context, id string) (*billing.Member, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("member repo: nil db")
	}
	var member billing.Member
	err := r.db.QueryRowContext(ctx, `
SELECT id, tenant_id, full_name, phone, address
FROM members
WHERE id = $1`, id).Scan(&member.ID, &member.TenantID, &member.FullName, &member.Phone, &member.Address)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// List returns the tenant's members ordered by id.
func (r *MemberRepository) List(ctx context.Context, tenantID string) ([]billing.Member, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("member repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, tenant_id, full_name, phone, address
FROM members
WHERE tenant_id = $1
ORDER BY id ASC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []billing.Member
	for rows.Next() {
		var member billing.Member
		if err := rows.Scan(&member.ID, &member.TenantID, &member.FullName, &member.Phone, &member.Address); err != nil {
			return nil, err
		}
		result = append(result, member)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
