package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DailyJob is a unit of work run once a day per tenant.
type DailyJob interface {
	RunDaily(ctx context.Context, tenantID string, now time.Time) error
}

// Scheduler runs daily jobs at HH:MM (UTC) for each configured tenant. A run missed while
// the process was down is caught up on the first tick after the scheduled time.
type Scheduler struct {
	jobs     map[string]DailyJob
	tenants  []string
	hour     int
	minute   int
	interval time.Duration
	clock    Clock
	logger   *zap.Logger

	mu      sync.Mutex
	lastRun map[string]string
}

// NewScheduler constructs a Scheduler. dailyAt uses the 15:04 layout.
func NewScheduler(jobs map[string]DailyJob, tenants []string, dailyAt string, opts ...Option) (*Scheduler, error) {
	if len(jobs) == 0 {
		return nil, fmt.Errorf("scheduler: no jobs")
	}
	hour, minute, err := parseDailyAt(dailyAt)
	if err != nil {
		return nil, fmt.Errorf("scheduler: daily_at %q: %w", dailyAt, err)
	}
	o := buildOptions(opts)
	return &Scheduler{
		jobs:     jobs,
		tenants:  tenants,
		hour:     hour,
		minute:   minute,
		interval: time.Minute,
		clock:    o.clock,
		logger:   o.logger,
		lastRun:  make(map[string]string),
	}, nil
}

// Start runs the loop until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx, s.clock.Now().UTC())
		}
	}
}

// Tick runs every job that is due at now and has not yet run today.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	if !s.due(now) {
		return
	}
	day := now.Format("2006-01-02")
	for name, job := range s.jobs {
		for _, tenantID := range s.tenants {
			if tenantID == "" {
				continue
			}
			key := name + "|" + tenantID
			s.mu.Lock()
			done := s.lastRun[key] == day
			if !done {
				s.lastRun[key] = day
			}
			s.mu.Unlock()
			if done {
				continue
			}
			if err := job.RunDaily(ctx, tenantID, now); err != nil {
				s.logger.Error("scheduled job failed",
					zap.String("job", name),
					zap.String("tenant_id", tenantID),
					zap.Error(err))
				continue
			}
			s.logger.Info("scheduled job done", zap.String("job", name), zap.String("tenant_id", tenantID))
		}
	}
}

func (s *Scheduler) due(now time.Time) bool {
	scheduled := time.Date(now.Year(), now.Month(), now.Day(), s.hour, s.minute, 0, 0, time.UTC)
	return !now.Before(scheduled)
}

func parseDailyAt(value string) (int, int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}
