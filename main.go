package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jpusap-cobranzas/internal/auth"
	billingapp "jpusap-cobranzas/internal/billing/application"
	billing "jpusap-cobranzas/internal/billing/domain"
	"jpusap-cobranzas/internal/config"
)

var (
	configFile string

	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "cobranzas",
	Short: "JPUSAP collections service",
	Long: `Charge and payment reconciliation for the JPUSAP association.

Serves the billing API, refreshes the cached balances and sends debtor reminders.
Configuration comes from defaults, an optional YAML file, .env and the environment.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			if err := os.Setenv("JPUSAP_CONFIG", configFile); err != nil {
				return err
			}
		}
		var err error
		if cfg, err = config.Load(); err != nil {
			return err
		}
		if logger, err = newLogger(cfg.Log); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the outbox dispatcher and the daily scheduler",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var refreshCmd = &cobra.Command{
	Use:   "refresh-cache",
	Short: "Recompute cached saldo and esMoroso from live payments",
	Args:  cobra.NoArgs,
	RunE:  runRefresh,
}

var remindCmd = &cobra.Command{
	Use:   "remind",
	Short: "Send reminders to debtors at or above a tier",
	Args:  cobra.NoArgs,
	RunE:  runRemind,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a signed access token",
	Args:  cobra.NoArgs,
	RunE:  runToken,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file (overrides JPUSAP_CONFIG)")

	refreshCmd.Flags().StringSlice("tenant", nil, "tenants to refresh (default: configured tenants)")
	remindCmd.Flags().String("tenant", "", "tenant to remind (default: configured tenant)")
	remindCmd.Flags().String("min-tier", "", "minimum tier: atrasado, moroso or deudor")
	tokenCmd.Flags().String("tenant", "", "tenant claim (default: configured tenant)")
	tokenCmd.Flags().String("role", string(auth.RoleViewer), "role claim: viewer, operator, approver or admin")
	tokenCmd.Flags().String("subject", "cli", "subject claim")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")

	rootCmd.AddCommand(serveCmd, refreshCmd, remindCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()

	if a.dispatcher != nil {
		go a.dispatcher.Run(ctx, cfg.Outbox.Interval)
	}
	scheduler, err := a.scheduler()
	if err != nil {
		return err
	}
	if scheduler != nil {
		go scheduler.Start(ctx)
	}

	handler, err := a.router()
	if err != nil {
		return err
	}
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.Store))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return server.Shutdown(shutdownCtx)
}

func runRefresh(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	tenants, _ := cmd.Flags().GetStringSlice("tenant")
	if len(tenants) == 0 {
		tenants = cfg.Tenants
	}
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	for _, tenantID := range tenants {
		updated, err := a.refresher.Refresh(ctx, tenantID)
		if err != nil {
			return fmt.Errorf("refresh %s: %w", tenantID, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d charges updated\n", tenantID, updated)
	}
	return nil
}

func runRemind(cmd *cobra.Command, _ []string) error {
	tenantID, _ := cmd.Flags().GetString("tenant")
	if tenantID == "" {
		tenantID = cfg.TenantID
	}
	tierFlag, _ := cmd.Flags().GetString("min-tier")
	if tierFlag == "" {
		tierFlag = cfg.Schedule.ReminderMinTier
	}
	minTier, ok := billing.ParseTier(strings.ToLower(tierFlag))
	if !ok {
		return fmt.Errorf("%w: %q", billing.ErrInvalidTier, tierFlag)
	}

	a, err := buildApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := auth.WithIdentity(cmd.Context(), tenantID, auth.RoleAdmin, "cli")
	result, err := a.reminders.SendDebtorReminders(ctx, billingapp.DebtorFilter{
		MinTier: minTier,
		Now:     time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func runToken(cmd *cobra.Command, _ []string) error {
	tenantID, _ := cmd.Flags().GetString("tenant")
	if tenantID == "" {
		tenantID = cfg.TenantID
	}
	roleFlag, _ := cmd.Flags().GetString("role")
	role, ok := auth.NormalizeRole(roleFlag)
	if !ok {
		return fmt.Errorf("unknown role %q", roleFlag)
	}
	subject, _ := cmd.Flags().GetString("subject")
	ttl, _ := cmd.Flags().GetDuration("ttl")
	if cfg.JWTSecret == "" {
		return errors.New("token: AUTH_JWT_SECRET is not set")
	}
	token, err := auth.IssueJWT([]byte(cfg.JWTSecret), tenantID, role, subject, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
