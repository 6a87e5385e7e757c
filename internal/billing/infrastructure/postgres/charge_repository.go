package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	billing "jpusap-cobranzas/internal/billing/domain"
)

const chargeColumns = `id, tenant_id, empadronado_id, periodo, monto_original, COALESCE(saldo, monto_original),
	fecha_vencimiento, anulado, es_moroso, void_reason, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// ChargeRepository persists charges in postgres.
type ChargeRepository struct {
	db *sql.DB
}

// NewChargeRepository constructs a repository.
func NewChargeRepository(db *sql.DB) *ChargeRepository {
	return &ChargeRepository{db: db}
}

// Upsert inserts or replaces charges. Used by imports and seeding; the monthly
// generation job owns charge creation in production.
func (r *ChargeRepository) Upsert(ctx context.Context, charges ...billing.Charge) error {
	if r == nil || r.db == nil {
		return errors.New("charge repo: nil db")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, charge := range charges {
		if err := charge.Validate(); err != nil {
			_ = tx.Rollback()
			return err
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO charges (
	id, tenant_id, empadronado_id, periodo, monto_original, saldo,
	fecha_vencimiento, anulado, es_moroso, void_reason, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (id) DO UPDATE SET
	monto_original = EXCLUDED.monto_original,
	saldo = EXCLUDED.saldo,
	fecha_vencimiento = EXCLUDED.fecha_vencimiento,
	anulado = EXCLUDED.anulado,
	es_moroso = EXCLUDED.es_moroso,
	void_reason = EXCLUDED.void_reason,
	updated_at = EXCLUDED.updated_at`,
			charge.ID, charge.TenantID, charge.MemberID, string(charge.Period), charge.OriginalAmount, charge.Balance,
			charge.DueAt, charge.Voided, charge.Delinquent, charge.VoidReason, charge.CreatedAt, charge.UpdatedAt,
		)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Get fetches a charge; nil when missing.
func (r *ChargeRepository) Get(ctx context.Context, id string) (*billing.Charge, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("charge repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+chargeColumns+`
FROM charges
WHERE id = $1
LIMIT 1`, id)
	return scanCharge(row)
}

// ListByMember returns a member's charges within the period range.
func (r *ChargeRepository) ListByMember(ctx context.Context, tenantID, memberID string, periods billing.PeriodRange) ([]billing.Charge, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("charge repo: nil db")
	}
	return r.query(ctx, `
SELECT `+chargeColumns+`
FROM charges
WHERE tenant_id = $1 AND empadronado_id = $2
	AND ($3 = '' OR periodo >= $3) AND ($4 = '' OR periodo <= $4)
ORDER BY periodo ASC, id ASC`, tenantID, memberID, string(periods.From), string(periods.To))
}

// ListByTenant returns tenant charges within the period range.
func (r *ChargeRepository) ListByTenant(ctx context.Context, tenantID string, periods billing.PeriodRange) ([]billing.Charge, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("charge repo: nil db")
	}
	return r.query(ctx, `
SELECT `+chargeColumns+`
FROM charges
WHERE tenant_id = $1
	AND ($2 = '' OR periodo >= $2) AND ($3 = '' OR periodo <= $3)
ORDER BY empadronado_id ASC, periodo ASC, id ASC`, tenantID, string(periods.From), string(periods.To))
}

// MarkVoided voids a charge. A second void keeps the first reason.
func (r *ChargeRepository) MarkVoided(ctx context.Context, id, reason string, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("charge repo: nil db")
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE charges
SET anulado = TRUE,
	void_reason = CASE WHEN anulado THEN void_reason ELSE $2 END,
	es_moroso = FALSE,
	updated_at = $3
WHERE id = $1`, id, reason, at.UTC())
	if err != nil {
		return err
	}
	return requireRow(res, billing.ErrChargeNotFound)
}

// UpdateCache writes the cached saldo and es_moroso projection.
func (r *ChargeRepository) UpdateCache(ctx context.Context, id string, balance decimal.Decimal, delinquent bool, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("charge repo: nil db")
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE charges
SET saldo = $2, es_moroso = $3, updated_at = $4
WHERE id = $1`, id, balance, delinquent, at.UTC())
	if err != nil {
		return err
	}
	return requireRow(res, billing.ErrChargeNotFound)
}

func (r *ChargeRepository) query(ctx context.Context, query string, args ...any) ([]billing.Charge, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []billing.Charge
	for rows.Next() {
		charge, err := scanCharge(rows)
		if err != nil {
			return nil, err
		}
		if charge != nil {
			result = append(result, *charge)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanCharge(row rowScanner) (*billing.Charge, error) {
	var (
		charge billing.Charge
		period string
	)
	err := row.Scan(
		&charge.ID, &charge.TenantID, &charge.MemberID, &period, &charge.OriginalAmount, &charge.Balance,
		&charge.DueAt, &charge.Voided, &charge.Delinquent, &charge.VoidReason, &charge.CreatedAt, &charge.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	parsed, err := billing.ParsePeriod(period)
	if err != nil {
		return nil, err
	}
	charge.Period = parsed
	charge.DueAt = charge.DueAt.UTC()
	charge.CreatedAt = charge.CreatedAt.UTC()
	charge.UpdatedAt = charge.UpdatedAt.UTC()
	return &charge, nil
}

func requireRow(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notFound
	}
	return nil
}
