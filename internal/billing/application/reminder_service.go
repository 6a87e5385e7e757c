package application

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	billing "jpusap-cobranzas/internal/billing/domain"
	"jpusap-cobranzas/internal/observability/metrics"
)

// ReminderService turns the debtor report into reminders.
type ReminderService struct {
	debts    *DebtService
	notifier ReminderNotifier
	minTier  billing.Tier
	opts     options
}

// NewReminderService constructs the service. minTier is the threshold used by the daily run.
func NewReminderService(debts *DebtService, notifier ReminderNotifier, minTier billing.Tier, opts ...Option) (*ReminderService, error) {
	if debts == nil {
		return nil, errors.New("reminder service: nil debt service")
	}
	if notifier == nil {
		return nil, errors.New("reminder service: nil notifier")
	}
	if _, ok := billing.ParseTier(string(minTier)); !ok {
		minTier = billing.TierDelinquent
	}
	return &ReminderService{debts: debts, notifier: notifier, minTier: minTier, opts: buildOptions(opts)}, nil
}

// SendDebtorReminders notifies every debtor matching filter. Members without a phone
// number are counted as skipped.
func (s *ReminderService) SendDebtorReminders(ctx context.Context, filter DebtorFilter) (ReminderResult, error) {
	report, err := s.debts.DebtorReport(ctx, filter)
	if err != nil {
		return ReminderResult{}, err
	}
	var result ReminderResult
	reminders := make([]Reminder, 0, len(report.Rows))
	for _, row := range report.Rows {
		if row.Debt.OverdueCount == 0 {
			continue
		}
		phone := strings.TrimSpace(row.Member.Phone)
		if phone == "" {
			result.Skipped++
			continue
		}
		reminders = append(reminders, BuildReminder(report.TenantID, row, phone))
	}

	if len(reminders) > 0 {
		sent, err := s.notifier.Notify(ctx, reminders)
		result.Sent += sent.Sent
		result.Skipped += sent.Skipped
		result.Failed += sent.Failed
		if err != nil {
			s.record(result)
			return result, err
		}
	}
	s.record(result)
	s.opts.logger.Info("debtor reminders",
		zap.String("tenant_id", report.TenantID),
		zap.Int("sent", result.Sent),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed))
	return result, nil
}

// RunDaily implements DailyJob.
func (s *ReminderService) RunDaily(ctx context.Context, tenantID string, now time.Time) error {
	ctx = withJobTenant(ctx, tenantID)
	_, err := s.SendDebtorReminders(ctx, DebtorFilter{MinTier: s.minTier, Now: now})
	return err
}

func (s *ReminderService) record(result ReminderResult) {
	metrics.AddReminders(metrics.ReminderSent, result.Sent)
	metrics.AddReminders(metrics.ReminderSkipped, result.Skipped)
	metrics.AddReminders(metrics.ReminderFailed, result.Failed)
}

// BuildReminder projects a debtor row into a reminder, listing overdue periods oldest first.
func BuildReminder(tenantID string, row DebtorRow, phone string) Reminder {
	periods := make([]billing.Period, 0, row.Debt.OverdueCount)
	for _, state := range row.Debt.Charges {
		if state.Overdue {
			periods = append(periods, state.Charge.Period)
		}
	}
	return Reminder{
		TenantID:     tenantID,
		MemberID:     row.Debt.MemberID,
		MemberName:   row.Member.DisplayName(),
		Phone:        phone,
		Tier:         row.Debt.Tier,
		OverdueCount: row.Debt.OverdueCount,
		DebtTotal:    row.Debt.DebtTotal,
		Periods:      periods,
	}
}
