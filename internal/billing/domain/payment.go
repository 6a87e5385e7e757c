package billing

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the payment lifecycle state (estado).
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pendiente"
	PaymentApproved PaymentStatus = "aprobado"
	PaymentRejected PaymentStatus = "rechazado"
)

// ParsePaymentStatus validates a stored or requested status.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	switch PaymentStatus(strings.ToLower(strings.TrimSpace(value))) {
	case PaymentPending:
		return PaymentPending, nil
	case PaymentApproved:
		return PaymentApproved, nil
	case PaymentRejected:
		return PaymentRejected, nil
	default:
		return "", ErrInvalidStatus
	}
}

// CountsTowardCharge reports whether payments in this state cover a charge.
func (s PaymentStatus) CountsTowardCharge() bool {
	return s == PaymentPending || s == PaymentApproved
}

// PaymentMethod is how the member paid (metodoPago).
type PaymentMethod string

const (
	MethodCash     PaymentMethod = "efectivo"
	MethodTransfer PaymentMethod = "transferencia"
	MethodYape     PaymentMethod = "yape"
	MethodPlin     PaymentMethod = "plin"
	MethodDeposit  PaymentMethod = "deposito"
	MethodOther    PaymentMethod = "otro"
)

// ParsePaymentMethod validates a payment method. Empty means otro.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	normalized := PaymentMethod(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case "":
		return MethodOther, nil
	case MethodCash, MethodTransfer, MethodYape, MethodPlin, MethodDeposit, MethodOther:
		return normalized, nil
	default:
		return "", ErrInvalidMethod
	}
}

// Payment is one remittance applied toward one charge.
type Payment struct {
	ID              string          `json:"id"`
	TenantID        string          `json:"tenant_id"`
	ChargeID        string          `json:"charge_id"`
	MemberID        string          `json:"empadronado_id"`
	Amount          decimal.Decimal `json:"monto"`
	Status          PaymentStatus   `json:"estado"`
	Method          PaymentMethod   `json:"metodo_pago"`
	PaidAt          time.Time       `json:"fecha_pago_registrada"`
	Reference       string          `json:"reference,omitempty"`
	ApprovedBy      string          `json:"approved_by,omitempty"`
	ApprovedAt      time.Time       `json:"approved_at"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	RejectedAt      time.Time       `json:"rejected_at"`
	Version         int             `json:"version"`
	CreatedAt       time.Time       `json:"created_at"`
}

// MarshalJSON leaves approved_at and rejected_at out until the transition happens.
func (p Payment) MarshalJSON() ([]byte, error) {
	type wire Payment
	return json.Marshal(struct {
		wire
		ApprovedAt *time.Time `json:"approved_at,omitempty"`
		RejectedAt *time.Time `json:"rejected_at,omitempty"`
	}{wire(p), optionalTime(p.ApprovedAt), optionalTime(p.RejectedAt)})
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Validate checks required fields. Malformed amounts are rejected at write time.
func (p Payment) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrEmptyPaymentID
	}
	if strings.TrimSpace(p.ChargeID) == "" {
		return ErrEmptyChargeID
	}
	if strings.TrimSpace(p.MemberID) == "" {
		return ErrEmptyMemberID
	}
	if !p.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if _, err := ParsePaymentStatus(string(p.Status)); err != nil {
		return err
	}
	if _, err := ParsePaymentMethod(string(p.Method)); err != nil {
		return err
	}
	return nil
}

// Approve moves a pending payment to aprobado.
func (p *Payment) Approve(approverID string, at time.Time) error {
	if p == nil {
		return ErrPaymentNotFound
	}
	if p.Status != PaymentPending {
		return ErrInvalidTransition
	}
	approverID = strings.TrimSpace(approverID)
	if approverID == "" {
		return ErrEmptyApprover
	}
	p.Status = PaymentApproved
	p.ApprovedBy = approverID
	p.ApprovedAt = at.UTC()
	return nil
}

// Reject moves a pending payment to rechazado with a mandatory reason.
func (p *Payment) Reject(reason string, at time.Time) error {
	if p == nil {
		return ErrPaymentNotFound
	}
	if p.Status != PaymentPending {
		return ErrInvalidTransition
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrRejectionReasonRequired
	}
	p.Status = PaymentRejected
	p.RejectionReason = reason
	p.RejectedAt = at.UTC()
	return nil
}
