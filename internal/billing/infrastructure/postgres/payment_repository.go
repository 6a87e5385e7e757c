package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	billing "jpusap-cobranzas/internal/billing/domain"
)

const paymentColumns = `id, tenant_id, charge_id, empadronado_id, monto, estado, metodo_pago,
	fecha_pago_registrada, reference, approved_by, approved_at, rejection_reason, rejected_at,
	version, created_at`

// PaymentRepository persists payments in postgres.
type PaymentRepository struct {
	db *sql.DB
}

// NewPaymentRepository constructs a repository.
func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Get fetches a payment; nil when missing.
func (r *PaymentRepository) Get(ctx context.Context, id string) (*billing.Payment, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("payment repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+paymentColumns+`
FROM payments
WHERE id = $1
LIMIT 1`, id)
	return scanPayment(row)
}

// Create inserts all payments in one transaction.
func (r *PaymentRepository) Create(ctx context.Context, payments ...billing.Payment) error {
	if r == nil || r.db == nil {
		return errors.New("payment repo: nil db")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, payment := range payments {
		if err := payment.Validate(); err != nil {
			_ = tx.Rollback()
			return err
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO payments (
	id, tenant_id, charge_id, empadronado_id, monto, estado, metodo_pago,
	fecha_pago_registrada, reference, approved_by, approved_at, rejection_reason, rejected_at,
	version, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
			payment.ID, payment.TenantID, payment.ChargeID, payment.MemberID, payment.Amount,
			string(payment.Status), string(payment.Method), payment.PaidAt, payment.Reference,
			payment.ApprovedBy, nullTime(payment.ApprovedAt), payment.RejectionReason, nullTime(payment.RejectedAt),
			payment.Version, payment.CreatedAt,
		)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("payment repo: insert %s: %w", payment.ID, err)
		}
	}
	return tx.Commit()
}

// ListByMember returns the member's payments ordered by payment date.
func (r *PaymentRepository) ListByMember(ctx context.Context, tenantID, memberID string) ([]billing.Payment, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("payment repo: nil db")
	}
	return r.query(ctx, `
SELECT `+paymentColumns+`
FROM payments
WHERE tenant_id = $1 AND empadronado_id = $2
ORDER BY fecha_pago_registrada ASC, id ASC`, tenantID, memberID)
}

// ListByCharges returns payments referencing any of the charge ids.
func (r *PaymentRepository) ListByCharges(ctx context.Context, tenantID string, chargeIDs []string) ([]billing.Payment, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("payment repo: nil db")
	}
	if len(chargeIDs) == 0 {
		return nil, nil
	}
	return r.query(ctx, `
SELECT `+paymentColumns+`
FROM payments
WHERE tenant_id = $1 AND charge_id = ANY($2)
ORDER BY fecha_pago_registrada ASC, id ASC`, tenantID, chargeIDs)
}

// ListByTenant returns every tenant payment.
func (r *PaymentRepository) ListByTenant(ctx context.Context, tenantID string) ([]billing.Payment, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("payment repo: nil db")
	}
	return r.query(ctx, `
SELECT `+paymentColumns+`
FROM payments
WHERE tenant_id = $1
ORDER BY fecha_pago_registrada ASC, id ASC`, tenantID)
}

// Transition applies a status change guarded by version and pending status.
func (r *PaymentRepository) Transition(ctx context.Context, payment billing.Payment, expectedVersion int) error {
	if r == nil || r.db == nil {
		return errors.New("payment repo: nil db")
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE payments
SET estado = $3, approved_by = $4, approved_at = $5, rejection_reason = $6, rejected_at = $7,
	version = version + 1
WHERE id = $1 AND version = $2 AND estado = 'pendiente'`,
		payment.ID, expectedVersion, string(payment.Status), payment.ApprovedBy, nullTime(payment.ApprovedAt),
		payment.RejectionReason, nullTime(payment.RejectedAt),
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM payments WHERE id = $1)`, payment.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return billing.ErrPaymentNotFound
	}
	return billing.ErrConcurrentModification
}

// Delete removes a payment regardless of its state.
func (r *PaymentRepository) Delete(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return errors.New("payment repo: nil db")
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res, billing.ErrPaymentNotFound)
}

func (r *PaymentRepository) query(ctx context.Context, query string, args ...any) ([]billing.Payment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []billing.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		if payment != nil {
			result = append(result, *payment)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanPayment(row rowScanner) (*billing.Payment, error) {
	var (
		payment                billing.Payment
		status, method         string
		approvedAt, rejectedAt sql.NullTime
	)
	err := row.Scan(
		&payment.ID, &payment.TenantID, &payment.ChargeID, &payment.MemberID, &payment.Amount,
		&status, &method, &payment.PaidAt, &payment.Reference,
		&payment.ApprovedBy, &approvedAt, &payment.RejectionReason, &rejectedAt,
		&payment.Version, &payment.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if payment.Status, err = billing.ParsePaymentStatus(status); err != nil {
		return nil, fmt.Errorf("payment %s: %w", payment.ID, err)
	}
	if payment.Method, err = billing.ParsePaymentMethod(method); err != nil {
		return nil, fmt.Errorf("payment %s: %w", payment.ID, err)
	}
	if approvedAt.Valid {
		payment.ApprovedAt = approvedAt.Time.UTC()
	}
	if rejectedAt.Valid {
		payment.RejectedAt = rejectedAt.Time.UTC()
	}
	payment.PaidAt = payment.PaidAt.UTC()
	payment.CreatedAt = payment.CreatedAt.UTC()
	return &payment, nil
}

func nullTime(value time.Time) sql.NullTime {
	if value.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value.UTC(), Valid: true}
}
