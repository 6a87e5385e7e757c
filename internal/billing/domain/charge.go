package billing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Charge is one billing obligation for one member for one period.
type Charge struct {
	ID             string          `json:"id"`
	TenantID       string          `json:"tenant_id"`
	MemberID       string          `json:"empadronado_id"`
	Period         Period          `json:"periodo"`
	OriginalAmount decimal.Decimal `json:"monto_original"`
	// Balance is the cached saldo. It is a projection of the live computation.
	Balance    decimal.Decimal `json:"saldo"`
	DueAt      time.Time       `json:"fecha_vencimiento"`
	Voided     bool            `json:"anulado"`
	Delinquent bool            `json:"es_moroso"`
	VoidReason string          `json:"void_reason,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Validate checks required fields and amounts.
func (c Charge) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return ErrEmptyChargeID
	}
	if strings.TrimSpace(c.MemberID) == "" {
		return ErrEmptyMemberID
	}
	if _, err := ParsePeriod(string(c.Period)); err != nil {
		return err
	}
	if c.OriginalAmount.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

// Void marks the charge voided. Voiding is the only deletion mechanism for charges.
func (c *Charge) Void(reason string, at time.Time) {
	if c == nil || c.Voided {
		return
	}
	c.Voided = true
	c.VoidReason = strings.TrimSpace(reason)
	c.Delinquent = false
	c.UpdatedAt = at.UTC()
}
