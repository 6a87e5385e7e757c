package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	billing "jpusap-cobranzas/internal/billing/domain"
	"jpusap-cobranzas/internal/observability/metrics"
)

// ImportLine is one parsed row of a payment sheet. Row is the 1-based sheet row.
type ImportLine struct {
	Row       int
	Period    billing.Period
	MemberID  string
	Amount    decimal.Decimal
	Method    billing.PaymentMethod
	PaidAt    time.Time
	Reference string
}

// ImportRowError reports why a sheet row was not imported.
type ImportRowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ImportReport summarizes a payment import.
type ImportReport struct {
	Imported []billing.Payment `json:"imported"`
	Errors   []ImportRowError  `json:"errors"`
}

// Import registers one pending payment per line against the member's charge for the line's
// period. Lines fail independently; a bad row never blocks the others.
func (s *PaymentService) Import(ctx context.Context, lines []ImportLine) (*ImportReport, error) {
	tenantID, err := s.opts.tenant(ctx)
	if err != nil {
		return nil, err
	}
	report := &ImportReport{}
	touched := make(map[string]struct{})
	now := s.opts.clock.Now().UTC()

	for _, line := range lines {
		payment, err := s.importLine(ctx, tenantID, line, now)
		if err != nil {
			report.Errors = append(report.Errors, ImportRowError{Row: line.Row, Message: err.Error()})
			continue
		}
		report.Imported = append(report.Imported, *payment)
		touched[payment.MemberID] = struct{}{}
	}
	metrics.AddImportRows(metrics.ResultSuccess, len(report.Imported))
	metrics.AddImportRows(metrics.ResultError, len(report.Errors))

	for memberID := range touched {
		s.refresh(ctx, tenantID, memberID)
	}
	for _, payment := range report.Imported {
		s.opts.publish(ctx, registeredEvent(payment))
	}
	return report, nil
}

func (s *PaymentService) importLine(ctx context.Context, tenantID string, line ImportLine, now time.Time) (*billing.Payment, error) {
	memberID := strings.TrimSpace(line.MemberID)
	if memberID == "" {
		return nil, billing.ErrEmptyMemberID
	}
	if !line.Amount.IsPositive() {
		return nil, billing.ErrInvalidAmount
	}
	method, err := billing.ParsePaymentMethod(string(line.Method))
	if err != nil {
		return nil, err
	}
	charges, err := s.charges.ListByMember(ctx, tenantID, memberID, billing.PeriodRange{From: line.Period, To: line.Period})
	if err != nil {
		return nil, err
	}
	var target *billing.Charge
	for i := range charges {
		if !charges[i].Voided {
			target = &charges[i]
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("%w: %s %s", billing.ErrChargeNotFound, memberID, line.Period)
	}
	payment := s.newPayment(tenantID, memberID, target.ID, line.Amount, method, line.PaidAt, line.Reference, now)
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, err
	}
	return &payment, nil
}
