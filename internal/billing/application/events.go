package application

import (
	"time"

	"github.com/shopspring/decimal"

	billing "jpusap-cobranzas/internal/billing/domain"
)

// PaymentRegistered is emitted for every new payment, one per charge for split payments.
type PaymentRegistered struct {
	TenantID   string                `json:"tenant_id"`
	PaymentID  string                `json:"payment_id"`
	ChargeID   string                `json:"charge_id"`
	MemberID   string                `json:"empadronado_id"`
	Amount     decimal.Decimal       `json:"monto"`
	Method     billing.PaymentMethod `json:"metodo_pago"`
	Reference  string                `json:"reference,omitempty"`
	OccurredAt time.Time             `json:"occurred_at"`
}

func (PaymentRegistered) EventType() string { return "billing.payment.registered" }

// PaymentApproved is emitted when a pending payment is approved.
type PaymentApproved struct {
	TenantID   string          `json:"tenant_id"`
	PaymentID  string          `json:"payment_id"`
	ChargeID   string          `json:"charge_id"`
	MemberID   string          `json:"empadronado_id"`
	Amount     decimal.Decimal `json:"monto"`
	ApprovedBy string          `json:"approved_by"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func (PaymentApproved) EventType() string { return "billing.payment.approved" }

// PaymentRejected is emitted when a pending payment is rejected.
type PaymentRejected struct {
	TenantID   string          `json:"tenant_id"`
	PaymentID  string          `json:"payment_id"`
	ChargeID   string          `json:"charge_id"`
	MemberID   string          `json:"empadronado_id"`
	Amount     decimal.Decimal `json:"monto"`
	Reason     string          `json:"reason"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func (PaymentRejected) EventType() string { return "billing.payment.rejected" }

// PaymentDeleted is emitted when a payment is removed in any state.
type PaymentDeleted struct {
	TenantID       string                `json:"tenant_id"`
	PaymentID      string                `json:"payment_id"`
	ChargeID       string                `json:"charge_id"`
	MemberID       string                `json:"empadronado_id"`
	Amount         decimal.Decimal       `json:"monto"`
	PreviousStatus billing.PaymentStatus `json:"previous_status"`
	OccurredAt     time.Time             `json:"occurred_at"`
}

func (PaymentDeleted) EventType() string { return "billing.payment.deleted" }

// ChargeVoided is emitted when a charge is voided.
type ChargeVoided struct {
	TenantID   string         `json:"tenant_id"`
	ChargeID   string         `json:"charge_id"`
	MemberID   string         `json:"empadronado_id"`
	Period     billing.Period `json:"periodo"`
	Reason     string         `json:"reason"`
	OccurredAt time.Time      `json:"occurred_at"`
}

func (ChargeVoided) EventType() string { return "billing.charge.voided" }
