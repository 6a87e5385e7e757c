package application

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"jpusap-cobranzas/internal/auth"
	billing "jpusap-cobranzas/internal/billing/domain"
)

// EventPublisher emits billing domain events.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Reminder is one debtor notice.
type Reminder struct {
	TenantID     string           `json:"tenant_id"`
	MemberID     string           `json:"empadronado_id"`
	MemberName   string           `json:"member_name"`
	Phone        string           `json:"phone"`
	Tier         billing.Tier     `json:"tier"`
	OverdueCount int              `json:"overdue_count"`
	DebtTotal    decimal.Decimal  `json:"debt_total"`
	Periods      []billing.Period `json:"periods"`
}

// ReminderResult counts reminder outcomes.
type ReminderResult struct {
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// ReminderNotifier delivers reminders.
type ReminderNotifier interface {
	Notify(ctx context.Context, reminders []Reminder) (ReminderResult, error)
}

type options struct {
	publisher EventPublisher
	clock     Clock
	logger    *zap.Logger
	tenantID  string
}

// Option configures the billing services.
type Option func(*options)

// WithPublisher sets the event publisher. Without one no events are emitted.
func WithPublisher(publisher EventPublisher) Option {
	return func(o *options) {
		if publisher != nil {
			o.publisher = publisher
		}
	}
}

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithDefaultTenant sets the tenant used when the context carries none (CLI and jobs).
func WithDefaultTenant(tenantID string) Option {
	return func(o *options) {
		o.tenantID = tenantID
	}
}

func buildOptions(opts []Option) options {
	o := options{clock: SystemClock{}, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) tenant(ctx context.Context) (string, error) {
	tenantID := auth.TenantOr(ctx, o.tenantID)
	if tenantID == "" {
		return "", billing.ErrEmptyTenantID
	}
	return tenantID, nil
}

func (o options) publish(ctx context.Context, event any) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.Publish(ctx, event); err != nil {
		o.logger.Warn("publish event failed", zap.String("event", eventName(event)), zap.Error(err))
	}
}

func eventName(event any) string {
	if named, ok := event.(interface{ EventType() string }); ok {
		return named.EventType()
	}
	return "unknown"
}

// withJobTenant scopes background work to a tenant.
func withJobTenant(ctx context.Context, tenantID string) context.Context {
	return auth.WithIdentity(ctx, tenantID, auth.RoleAdmin, "scheduler")
}
