package application

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"jpusap-cobranzas/internal/auth"
	billing "jpusap-cobranzas/internal/billing/domain"
	"jpusap-cobranzas/internal/observability/metrics"
)

// DebtorFilter selects rows of the debtor report.
type DebtorFilter struct {
	// MinTier defaults to atrasado, which leaves out members who are current.
	MinTier billing.Tier
	Periods billing.PeriodRange
	Now     time.Time
	Limit   int
}

// DebtorRow is one member of the debtor report.
type DebtorRow struct {
	Member billing.Member     `json:"member"`
	Debt   billing.MemberDebt `json:"debt"`
}

// DebtorReport is the tenant-wide debt listing.
type DebtorReport struct {
	TenantID     string          `json:"tenant_id"`
	GeneratedAt  time.Time       `json:"generated_at"`
	MinTier      billing.Tier    `json:"min_tier"`
	Rows         []DebtorRow     `json:"rows"`
	TotalDebt    decimal.Decimal `json:"total_debt"`
	TierCounts   map[string]int  `json:"tier_counts"`
	MembersTotal int             `json:"members_total"`
}

// MemberStatement is the account statement of one member.
type MemberStatement struct {
	TenantID    string             `json:"tenant_id"`
	Member      billing.Member     `json:"member"`
	Debt        billing.MemberDebt `json:"debt"`
	Payments    []billing.Payment  `json:"payments"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// DebtService answers debt queries with the live reconciliation.
type DebtService struct {
	charges  billing.ChargeRepository
	payments billing.PaymentRepository
	members  billing.MemberRepository
	opts     options
}

// NewDebtService constructs the service.
func NewDebtService(charges billing.ChargeRepository, payments billing.PaymentRepository, members billing.MemberRepository, opts ...Option) (*DebtService, error) {
	if charges == nil {
		return nil, errors.New("debt service: nil charge repository")
	}
	if payments == nil {
		return nil, errors.New("debt service: nil payment repository")
	}
	if members == nil {
		return nil, errors.New("debt service: nil member repository")
	}
	return &DebtService{charges: charges, payments: payments, members: members, opts: buildOptions(opts)}, nil
}

// MemberDebt reconciles one member at now. A zero now means the service clock.
func (s *DebtService) MemberDebt(ctx context.Context, memberID string, now time.Time) (billing.MemberDebt, error) {
	started := time.Now()
	tenantID, err := s.opts.tenant(ctx)
	if err != nil {
		return billing.MemberDebt{}, err
	}
	if memberID == "" {
		return billing.MemberDebt{}, billing.ErrEmptyMemberID
	}
	if now.IsZero() {
		now = s.opts.clock.Now()
	}
	charges, payments, err := s.loadMember(ctx, tenantID, memberID)
	if err != nil {
		metrics.ObserveReconcile("member", metrics.ResultError, time.Since(started))
		return billing.MemberDebt{}, err
	}
	debt := billing.Reconcile(memberID, charges, payments, now)
	metrics.ObserveReconcile("member", metrics.ResultSuccess, time.Since(started))
	return debt, nil
}

// Statement builds the member statement: debt plus the payment history.
func (s *DebtService) Statement(ctx context.Context, memberID string, now time.Time) (*MemberStatement, error) {
	tenantID, err := s.opts.tenant(ctx)
	if err != nil {
		return nil, err
	}
	if memberID == "" {
		return nil, billing.ErrEmptyMemberID
	}
	if now.IsZero() {
		now = s.opts.clock.Now()
	}
	member, err := s.members.Get(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, billing.ErrMemberNotFound
	}
	if member.TenantID != tenantID {
		return nil, auth.ErrTenantMismatch
	}
	charges, payments, err := s.loadMember(ctx, tenantID, memberID)
	if err != nil {
		return nil, err
	}
	return &MemberStatement{
		TenantID:    tenantID,
		Member:      *member,
		Debt:        billing.Reconcile(memberID, charges, payments, now),
		Payments:    payments,
		GeneratedAt: now.UTC(),
	}, nil
}

// DebtorReport reconciles the whole tenant and lists members at or above MinTier,
// largest debt first.
func (s *DebtService) DebtorReport(ctx context.Context, filter DebtorFilter) (*DebtorReport, error) {
	started := time.Now()
	tenantID, err := s.opts.tenant(ctx)
	if err != nil {
		return nil, err
	}
	if err := filter.Periods.Validate(); err != nil {
		return nil, err
	}
	minTier := filter.MinTier
	if minTier == "" {
		minTier = billing.TierLate
	}
	now := filter.Now
	if now.IsZero() {
		now = s.opts.clock.Now()
	}

	var (
		charges  []billing.Charge
		payments []billing.Payment
		members  []billing.Member
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		charges, err = s.charges.ListByTenant(gctx, tenantID, filter.Periods)
		return err
	})
	g.Go(func() error {
		var err error
		payments, err = s.payments.ListByTenant(gctx, tenantID)
		return err
	})
	g.Go(func() error {
		var err error
		members, err = s.members.List(gctx, tenantID)
		return err
	})
	if err := g.Wait(); err != nil {
		metrics.ObserveReconcile("tenant", metrics.ResultError, time.Since(started))
		return nil, err
	}

	byID := make(map[string]billing.Member, len(members))
	for _, member := range members {
		byID[member.ID] = member
	}

	report := &DebtorReport{
		TenantID:    tenantID,
		GeneratedAt: now.UTC(),
		MinTier:     minTier,
		TotalDebt:   decimal.Zero,
		TierCounts:  make(map[string]int),
	}
	for _, debt := range billing.ReconcileAll(charges, payments, now) {
		report.MembersTotal++
		report.TierCounts[string(debt.Tier)]++
		if !debt.Tier.AtLeast(minTier) {
			continue
		}
		member, ok := byID[debt.MemberID]
		if !ok {
			member = billing.Member{ID: debt.MemberID, TenantID: tenantID}
		}
		report.Rows = append(report.Rows, DebtorRow{Member: member, Debt: debt})
		report.TotalDebt = report.TotalDebt.Add(debt.DebtTotal)
	}
	sort.SliceStable(report.Rows, func(i, j int) bool {
		a, b := report.Rows[i].Debt, report.Rows[j].Debt
		if cmp := a.DebtTotal.Cmp(b.DebtTotal); cmp != 0 {
			return cmp > 0
		}
		return a.MemberID < b.MemberID
	})
	if filter.Limit > 0 && len(report.Rows) > filter.Limit {
		report.Rows = report.Rows[:filter.Limit]
	}
	metrics.ObserveReconcile("tenant", metrics.ResultSuccess, time.Since(started))
	return report, nil
}

// loadMember fetches charges and payments concurrently.
func (s *DebtService) loadMember(ctx context.Context, tenantID, memberID string) ([]billing.Charge, []billing.Payment, error) {
	var (
		charges  []billing.Charge
		payments []billing.Payment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		charges, err = s.charges.ListByMember(gctx, tenantID, memberID, billing.PeriodRange{})
		return err
	})
	g.Go(func() error {
		var err error
		payments, err = s.payments.ListByMember(gctx, tenantID, memberID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return charges, payments, nil
}

