package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"jpusap-cobranzas/internal/audit"
	"jpusap-cobranzas/internal/auth"
	billingapp "jpusap-cobranzas/internal/billing/application"
	billing "jpusap-cobranzas/internal/billing/domain"
	"jpusap-cobranzas/internal/billing/infrastructure/memory"
	billingrepo "jpusap-cobranzas/internal/billing/infrastructure/postgres"
	"jpusap-cobranzas/internal/billing/interfaces"
	"jpusap-cobranzas/internal/config"
	"jpusap-cobranzas/internal/eventing"
	eventingkafka "jpusap-cobranzas/internal/eventing/infrastructure/kafka"
	eventingrepo "jpusap-cobranzas/internal/eventing/infrastructure/postgres"
	"jpusap-cobranzas/internal/notify"
	"jpusap-cobranzas/internal/observability/metrics"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// app holds the wired services shared by every subcommand.
type app struct {
	cfg    config.Config
	logger *zap.Logger

	db         *sql.DB
	members    auth.MemberReader
	audit      audit.Logger
	dispatcher *eventing.Dispatcher
	closers    []func() error

	refresher *billingapp.CacheRefresher
	payments  *billingapp.PaymentService
	charges   *billingapp.ChargeService
	debts     *billingapp.DebtService
	reminders *billingapp.ReminderService
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}
	return zcfg.Build()
}

func buildApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	var (
		chargeRepo  billing.ChargeRepository
		paymentRepo billing.PaymentRepository
		memberRepo  billing.MemberRepository
	)
	switch cfg.Store {
	case config.StorePostgres:
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db open: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			a.close()
			return nil, fmt.Errorf("db ping: %w", err)
		}
		a.db = db
		chargeRepo = billingrepo.NewChargeRepository(db)
		paymentRepo = billingrepo.NewPaymentRepository(db)
		members := billingrepo.NewMemberRepository(db)
		memberRepo, a.members = members, members
		a.audit = audit.NewRepository(db)
	default:
		store := memory.NewStore()
		if cfg.SeedFile != "" {
			if err := store.LoadSeedFile(cfg.SeedFile); err != nil {
				return nil, err
			}
			logger.Info("seed loaded", zap.String("file", cfg.SeedFile))
		}
		chargeRepo, paymentRepo, memberRepo = store.Charges, store.Payments, store.Members
		a.members = store.Members
		a.audit = audit.NewZapLogger(logger)
	}

	metrics.Init(a.db, logger)

	publisher, err := a.buildPublisher()
	if err != nil {
		a.close()
		return nil, err
	}

	opts := []billingapp.Option{
		billingapp.WithPublisher(publisher),
		billingapp.WithLogger(logger),
		billingapp.WithDefaultTenant(cfg.TenantID),
	}
	if a.refresher, err = billingapp.NewCacheRefresher(chargeRepo, paymentRepo, opts...); err != nil {
		a.close()
		return nil, err
	}
	if a.payments, err = billingapp.NewPaymentService(chargeRepo, paymentRepo, a.refresher, opts...); err != nil {
		a.close()
		return nil, err
	}
	if a.charges, err = billingapp.NewChargeService(chargeRepo, paymentRepo, a.refresher, opts...); err != nil {
		a.close()
		return nil, err
	}
	if a.debts, err = billingapp.NewDebtService(chargeRepo, paymentRepo, memberRepo, opts...); err != nil {
		a.close()
		return nil, err
	}
	if a.reminders, err = a.buildReminders(opts); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// buildPublisher routes domain events to Kafka when brokers are configured and to the log
// otherwise. With a database the events go through the outbox first.
func (a *app) buildPublisher() (*eventing.Publisher, error) {
	var sink eventing.Sink = eventing.NewLogSink(a.logger)
	if len(a.cfg.Kafka.Brokers) > 0 {
		kafkaSink, err := eventingkafka.NewSink(a.cfg.Kafka.Brokers, a.cfg.Kafka.Topic)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, kafkaSink.Close)
		sink = kafkaSink
	}
	if a.db == nil {
		return eventing.NewDirectPublisher(sink, a.cfg.TenantID)
	}
	outbox := eventingrepo.NewOutboxStore(a.db)
	a.dispatcher = eventing.NewDispatcher(outbox, sink, a.cfg.Outbox.MaxAttempts, a.logger)
	return eventing.NewOutboxPublisher(outbox, a.dispatcher, a.cfg.TenantID)
}

func (a *app) buildReminders(opts []billingapp.Option) (*billingapp.ReminderService, error) {
	rc := a.cfg.Reminders
	logChannel := notify.NewLogChannel(a.logger)
	var channel notify.Channel = logChannel
	if rc.WebhookURL != "" {
		webhook, err := notify.NewWebhookChannel(rc.WebhookURL,
			notify.WithToken(rc.Token),
			notify.WithHTTPClient(&http.Client{Timeout: 2 * rc.Timeout}),
		)
		if err != nil {
			return nil, err
		}
		// The log channel keeps a local trail of what the gateway was asked to send.
		channel = notify.NewMultiChannel(webhook, logChannel)
	}
	template, err := notify.NewTemplate(rc.Template)
	if err != nil {
		return nil, err
	}
	notifier, err := notify.NewNotifier(channel, template,
		notify.WithLogger(a.logger),
		notify.WithRequestTimeout(rc.Timeout),
		notify.WithCooldown(rc.Cooldown),
		notify.WithDedupeWindow(rc.DedupeWindow),
		notify.WithBatching(rc.BatchSize, rc.BatchPause),
		notify.WithConcurrency(rc.Concurrency),
		notify.WithAssociation(a.cfg.Association, a.cfg.PaymentInfo),
	)
	if err != nil {
		return nil, err
	}
	minTier, ok := billing.ParseTier(a.cfg.Schedule.ReminderMinTier)
	if !ok {
		return nil, fmt.Errorf("reminders: %w: %q", billing.ErrInvalidTier, a.cfg.Schedule.ReminderMinTier)
	}
	return billingapp.NewReminderService(a.debts, notifier, minTier, opts...)
}

func (a *app) scheduler() (*billingapp.Scheduler, error) {
	jobs := make(map[string]billingapp.DailyJob)
	if a.cfg.Schedule.RefreshCache {
		jobs["refresh-cache"] = a.refresher
	}
	if a.cfg.Schedule.Reminders {
		jobs["reminders"] = a.reminders
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return billingapp.NewScheduler(jobs, a.cfg.Tenants, a.cfg.Schedule.DailyAt, billingapp.WithLogger(a.logger))
}

func (a *app) router() (http.Handler, error) {
	handler, err := interfaces.NewHandler(interfaces.Services{
		Payments:  a.payments,
		Charges:   a.charges,
		Debts:     a.debts,
		Reminders: a.reminders,
		Refresher: a.refresher,
	},
		interfaces.WithMemberChecker(auth.NewMemberChecker(a.members)),
		interfaces.WithAuditLogger(a.audit),
		interfaces.WithLogger(a.logger),
		interfaces.WithDefaultTenant(a.cfg.TenantID),
		interfaces.WithAssociationName(a.cfg.Association),
	)
	if err != nil {
		return nil, err
	}

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", a.healthz).Methods(http.MethodGet)
	handler.Register(router)

	var root http.Handler = router
	if a.cfg.AuthEnabled {
		policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
		mw := auth.NewMiddleware([]byte(a.cfg.JWTSecret), policy,
			auth.WithTenants(a.cfg.Tenants...),
			auth.WithDenyLogger(a.logger),
		)
		root = mw.Wrap(root)
	} else {
		a.logger.Warn("auth disabled, every request runs as the default tenant")
	}
	return interfaces.AccessLog(a.logger)(root), nil
}

func (a *app) healthz(w http.ResponseWriter, r *http.Request) {
	if a.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.db.PingContext(ctx); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
