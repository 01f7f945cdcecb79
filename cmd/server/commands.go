package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"amlcore/internal/platform/config"
	"amlcore/internal/platform/httpserver"
	"amlcore/internal/platform/logger"
	"amlcore/internal/platform/metrics"
	"amlcore/internal/platform/postgres"
	id "amlcore/pkg/domain"
	"amlcore/pkg/platform/middleware/auth"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the metrics endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			if err := errors.Join(cfg.RequireDatabase(), cfg.RequireAuth()); err != nil {
				return err
			}
			migrateFirst, _ := cmd.Flags().GetBool("migrate")
			return serve(cmd.Context(), cfg, migrateFirst)
		},
	}
	cmd.Flags().Bool("migrate", false, "apply pending migrations before serving")
	return cmd
}

func serve(parent context.Context, cfg config.Server, migrateFirst bool) error {
	log := logger.New(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()
	a, err := build(ctx, cfg, log, reg, migrateFirst)
	if err != nil {
		return err
	}
	defer a.Close()

	api := httpserver.New(cfg.Addr, a.router)
	metricsSrv := httpserver.New(cfg.MetricsAddr, metrics.Handler(reg))

	log.Info("starting amlcore",
		"addr", cfg.Addr,
		"metrics_addr", cfg.MetricsAddr,
		"reporting_currency", cfg.Rates.ReportingCurrency,
		"jurisdiction", cfg.Location.String(),
		"audit_forwarding", cfg.Kafka.Enabled(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpserver.Run(gctx, api, log) })
	g.Go(func() error { return httpserver.Run(gctx, metricsSrv, log) })
	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		return err
	}
	return nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			if err := cfg.RequireDatabase(); err != nil {
				return err
			}
			log := logger.New(cfg.LogLevel)
			db, err := postgres.Open(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()
			return postgres.Migrate(db, log)
		},
	}
}

// tokenCmd issues a bearer token for an owner, for operators and local testing.
func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token [owner-id]",
		Short: "Issue a bearer token for an owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			if err := cfg.RequireAuth(); err != nil {
				return err
			}
			owner, err := id.ParseOwnerID(args[0])
			if err != nil {
				return err
			}
			ttl, _ := cmd.Flags().GetDuration("ttl")
			token, err := auth.NewTokenService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer).Issue(owner, time.Now(), ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().Duration("ttl", time.Hour, "token lifetime")
	return cmd
}
